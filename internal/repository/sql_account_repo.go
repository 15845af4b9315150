package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/postdeck/internal/database"
	"github.com/hitoshi/postdeck/internal/model"
)

const accountColumns = `id, user_id, platform, handle, is_default, created_at, updated_at, deleted_at`

// SQLAccountRepo はdatabase/sqlを使用したアカウントリポジトリ。
// AccountRepositoryとAccountGroupStoreの両方を実装する。
type SQLAccountRepo struct {
	db     *sql.DB
	driver database.Driver
}

// NewSQLAccountRepo はSQLAccountRepoを生成する。
// driverはグループロックの取得方法の選択に使用する。
func NewSQLAccountRepo(db *sql.DB, driver database.Driver) *SQLAccountRepo {
	return &SQLAccountRepo{db: db, driver: driver}
}

// Create はアカウントを作成する。
func (r *SQLAccountRepo) Create(ctx context.Context, a *model.Account) error {
	return insertAccount(ctx, r.db, a)
}

func insertAccount(ctx context.Context, q database.DBTX, a *model.Account) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO social_accounts (id, user_id, platform, handle, is_default, created_at, updated_at, deleted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.UserID, string(a.Platform), a.Handle, a.IsDefault,
		dbTime(a.CreatedAt), dbTime(a.UpdatedAt), nullTime(a.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// FindByID は指定IDのアカウントを取得する。論理削除済みも含む。見つからない場合はnilを返す。
func (r *SQLAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM social_accounts WHERE id = $1`,
		id,
	)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}
	return a, nil
}

// ListByUserID はユーザーの未削除アカウントを返す。
func (r *SQLAccountRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM social_accounts
		 WHERE user_id = $1 AND deleted_at IS NULL
		 ORDER BY platform, created_at, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts by user: %w", err)
	}
	return collectAccounts(rows)
}

// ListActive はグループの未削除アカウントを返す。
func (r *SQLAccountRepo) ListActive(ctx context.Context, group model.AccountGroup) ([]*model.Account, error) {
	return listActive(ctx, r.db, group)
}

// SoftDelete はユーザーが所有する未削除アカウントを論理削除する。
func (r *SQLAccountRepo) SoftDelete(ctx context.Context, userID, accountID string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE social_accounts SET deleted_at = $1
		 WHERE id = $2 AND user_id = $3 AND deleted_at IS NULL`,
		dbTime(at), accountID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to soft delete account: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// WithGroupLock はグループをロックしたトランザクション内でfnを実行する。
// PostgreSQLではグループの未削除行をid順にFOR UPDATEでロックする。
// SQLiteではIMMEDIATEトランザクションの書き込みロックで直列化される。
func (r *SQLAccountRepo) WithGroupLock(ctx context.Context, group model.AccountGroup, fn func(ctx context.Context, tx AccountGroupTx) error) error {
	return database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx database.DBTX) error {
		if r.driver.LocksRows() {
			if err := lockGroup(ctx, tx, group); err != nil {
				return err
			}
		}
		return fn(ctx, &sqlGroupTx{tx: tx, group: group})
	})
}

// ListGroups は未削除アカウントが存在する（user_id, platform）の組を返す。
func (r *SQLAccountRepo) ListGroups(ctx context.Context) ([]model.AccountGroup, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT user_id, platform FROM social_accounts
		 WHERE deleted_at IS NULL
		 ORDER BY user_id, platform`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list account groups: %w", err)
	}
	defer rows.Close()

	var groups []model.AccountGroup
	for rows.Next() {
		var (
			g        model.AccountGroup
			platform string
		)
		if err := rows.Scan(&g.UserID, &platform); err != nil {
			return nil, fmt.Errorf("failed to scan account group: %w", err)
		}
		g.Platform = model.Platform(platform)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate account groups: %w", err)
	}
	return groups, nil
}

// lockGroup はグループの未削除行に行ロックを取得する。
// 行が無いグループでも直列化されるよう、先にグループ単位のアドバイザリロックを取る。
// ロック順序をidで固定し、同一グループへの並行トランザクション間のデッドロックを避ける。
func lockGroup(ctx context.Context, tx database.DBTX, group model.AccountGroup) error {
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`,
		group.String(),
	); err != nil {
		return fmt.Errorf("failed to lock account group %s: %w", group, err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM social_accounts
		 WHERE user_id = $1 AND platform = $2 AND deleted_at IS NULL
		 ORDER BY id
		 FOR UPDATE`,
		group.UserID, string(group.Platform),
	)
	if err != nil {
		return fmt.Errorf("failed to lock account group %s: %w", group, err)
	}
	defer rows.Close()

	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to lock account group %s: %w", group, err)
	}
	return nil
}

// sqlGroupTx はロック済みグループに対するトランザクション操作。
type sqlGroupTx struct {
	tx    database.DBTX
	group model.AccountGroup
}

// ListActive はグループの未削除アカウントを返す。
func (g *sqlGroupTx) ListActive(ctx context.Context) ([]*model.Account, error) {
	return listActive(ctx, g.tx, g.group)
}

// Insert はロック中のグループにアカウントを追加する。
func (g *sqlGroupTx) Insert(ctx context.Context, a *model.Account) error {
	if a.Group() != g.group {
		return fmt.Errorf("account %s does not belong to locked group %s", a.ID, g.group)
	}
	return insertAccount(ctx, g.tx, a)
}

// SetDefaultFlag はis_defaultが変化する場合のみ行を更新する。
func (g *sqlGroupTx) SetDefaultFlag(ctx context.Context, accountID string, isDefault bool, at time.Time) (bool, error) {
	result, err := g.tx.ExecContext(ctx,
		`UPDATE social_accounts SET is_default = $1, updated_at = $2
		 WHERE id = $3 AND user_id = $4 AND platform = $5
		   AND deleted_at IS NULL AND is_default <> $1`,
		isDefault, dbTime(at), accountID, g.group.UserID, string(g.group.Platform),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update default flag: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// PurgeDeletedBefore はdeleted_atがbeforeより前の論理削除済みアカウントを物理削除する。
// 時刻の比較はGo側で行う。
func (r *SQLAccountRepo) PurgeDeletedBefore(ctx context.Context, before time.Time) (int64, error) {
	var purged int64
	err := database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx database.DBTX) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, deleted_at FROM social_accounts WHERE deleted_at IS NOT NULL ORDER BY id`,
		)
		if err != nil {
			return fmt.Errorf("failed to list deleted accounts: %w", err)
		}
		var ids []string
		for rows.Next() {
			var (
				id        string
				deletedAt time.Time
			)
			if err := rows.Scan(&id, &deletedAt); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan deleted account: %w", err)
			}
			if deletedAt.Before(before) {
				ids = append(ids, id)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("failed to iterate deleted accounts: %w", err)
		}
		rows.Close()

		for _, id := range ids {
			result, err := tx.ExecContext(ctx,
				`DELETE FROM social_accounts WHERE id = $1 AND deleted_at IS NOT NULL`, id,
			)
			if err != nil {
				return fmt.Errorf("failed to purge account %s: %w", id, err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			purged += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return purged, nil
}

func listActive(ctx context.Context, q database.DBTX, group model.AccountGroup) ([]*model.Account, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM social_accounts
		 WHERE user_id = $1 AND platform = $2 AND deleted_at IS NULL
		 ORDER BY id`,
		group.UserID, string(group.Platform),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts of group %s: %w", group, err)
	}
	return collectAccounts(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(s rowScanner) (*model.Account, error) {
	var (
		a         model.Account
		platform  string
		deletedAt sql.NullTime
	)
	if err := s.Scan(&a.ID, &a.UserID, &platform, &a.Handle, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	a.Platform = model.Platform(platform)
	if deletedAt.Valid {
		t := deletedAt.Time
		a.DeletedAt = &t
	}
	return &a, nil
}

func collectAccounts(rows *sql.Rows) ([]*model.Account, error) {
	defer rows.Close()

	var accounts []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accounts, nil
}

// dbTime はドライバ間で往復しても値が変わらない精度にそろえる。
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return dbTime(*t)
}

// compile-time interface check
var (
	_ AccountRepository    = (*SQLAccountRepo)(nil)
	_ AccountGroupStore    = (*SQLAccountRepo)(nil)
	_ DeletedAccountPurger = (*SQLAccountRepo)(nil)
)
