// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Platform は連携先SNSの識別子を表す。
type Platform string

const (
	// PlatformTwitter はTwitter（X）。
	PlatformTwitter Platform = "twitter"
	// PlatformLinkedIn はLinkedIn。
	PlatformLinkedIn Platform = "linkedin"
	// PlatformFacebook はFacebook。
	PlatformFacebook Platform = "facebook"
	// PlatformInstagram はInstagram。
	PlatformInstagram Platform = "instagram"
	// PlatformThreads はThreads。
	PlatformThreads Platform = "threads"
)

// Platforms はサポートする全プラットフォームを返す。
// social_accountsテーブルのCHECK制約と同じ集合。
func Platforms() []Platform {
	return []Platform{
		PlatformTwitter,
		PlatformLinkedIn,
		PlatformFacebook,
		PlatformInstagram,
		PlatformThreads,
	}
}

// Valid はサポート対象のプラットフォームかどうかを返す。
func (p Platform) Valid() bool {
	for _, known := range Platforms() {
		if p == known {
			return true
		}
	}
	return false
}

// ParsePlatform は文字列をPlatformに変換する。
// 前後の空白と大文字小文字は無視する。未知の値はINVALID_PLATFORMエラーになる。
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", NewInvalidPlatformError(s)
	}
	return p, nil
}

// Account はユーザーが連携したSNSアカウントを表す。
// DeletedAtが設定されたアカウントは論理削除済みで、デフォルト判定の対象外となる。
type Account struct {
	ID        string
	UserID    string
	Platform  Platform
	Handle    string
	IsDefault bool
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// IsDeleted は論理削除済みかどうかを返す。
func (a *Account) IsDeleted() bool {
	return a.DeletedAt != nil
}

// Group はアカウントが属する（ユーザー, プラットフォーム）グループを返す。
func (a *Account) Group() AccountGroup {
	return AccountGroup{UserID: a.UserID, Platform: a.Platform}
}

// AccountGroup は同一ユーザー・同一プラットフォームの未削除アカウント集合を識別する。
// デフォルトアカウントの一意性はグループ単位で保証され、グループ同士は干渉しない。
type AccountGroup struct {
	UserID   string
	Platform Platform
}

// String はログ出力用の表現を返す。
func (g AccountGroup) String() string {
	return g.UserID + "/" + string(g.Platform)
}
