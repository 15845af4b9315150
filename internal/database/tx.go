package database

import (
	"context"
	"database/sql"
)

// DBTX はリポジトリが利用するdatabase/sqlの部分集合。
// *sql.DB と *sql.Tx の両方が満たす。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// WithTx はトランザクションを開始してfnを実行する。
// fnがエラーを返した場合とpanicした場合はロールバックし、成功時はコミットする。
// panicはロールバック後に再送出する。
// ctxがキャンセルされた場合、database/sqlがトランザクションをロールバックする。
func WithTx(ctx context.Context, db TxBeginner, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}
