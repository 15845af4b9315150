// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/postdeck/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error
}

// AccountRepository は連携SNSアカウントの永続化インターフェース。
// デフォルトフラグの書き換えはAccountGroupStore経由でのみ行う。
type AccountRepository interface {
	// Create はアカウントを作成する。
	Create(ctx context.Context, account *model.Account) error

	// FindByID は指定IDのアカウントを取得する。論理削除済みも含む。
	// 見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// ListByUserID はユーザーの未削除アカウントをplatform、created_at順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Account, error)

	// ListActive はグループの未削除アカウントを返す。ロックは取得しない。
	ListActive(ctx context.Context, group model.AccountGroup) ([]*model.Account, error)

	// SoftDelete はユーザーが所有する未削除アカウントを論理削除する。
	// 対象が存在しない場合はfalseを返す。is_defaultは変更しない。
	SoftDelete(ctx context.Context, userID, accountID string, at time.Time) (bool, error)
}

// AccountGroupStore はグループ単位の排他トランザクションを提供する。
type AccountGroupStore interface {
	// WithGroupLock はグループの行ロックを取得したトランザクション内でfnを実行する。
	// fnがエラーを返した場合はロールバックし、成功時はコミットする。
	WithGroupLock(ctx context.Context, group model.AccountGroup, fn func(ctx context.Context, tx AccountGroupTx) error) error

	// ListGroups は未削除アカウントが存在する（user_id, platform）の組を返す。
	ListGroups(ctx context.Context) ([]model.AccountGroup, error)
}

// AccountGroupTx はロック済みグループに対する操作。
// 操作対象はWithGroupLockに渡したグループの未削除アカウントに限定される。
type AccountGroupTx interface {
	// ListActive はグループの未削除アカウントを返す。
	ListActive(ctx context.Context) ([]*model.Account, error)

	// Insert はグループにアカウントを作成する。accountはロック中のグループに属する必要がある。
	Insert(ctx context.Context, account *model.Account) error

	// SetDefaultFlag はアカウントのis_defaultを更新する。
	// 値が変化する行のみ更新しupdated_atをatにする。更新した場合にtrueを返す。
	SetDefaultFlag(ctx context.Context, accountID string, isDefault bool, at time.Time) (bool, error)
}

// DeletedAccountPurger は保持期間を過ぎた論理削除済みアカウントを物理削除する。
type DeletedAccountPurger interface {
	// PurgeDeletedBefore はdeleted_atがbeforeより前のアカウントを削除し、削除件数を返す。
	PurgeDeletedBefore(ctx context.Context, before time.Time) (int64, error)
}
