package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
)

// 再試行で解消しうるSQLSTATE。
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// SQLiteのプライマリリザルトコード。
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// IsRetryable はerrが一時的な競合（直列化失敗、デッドロック、ビジー）によるものかを返す。
// lib/pq、pgx、modernc.org/sqlite のいずれのドライバエラーにも対応する。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return isRetryableSQLState(string(pqErr.Code))
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isRetryableSQLState(pgErr.Code)
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return true
		}
	}

	return false
}

func isRetryableSQLState(code string) bool {
	return code == sqlStateSerializationFailure || code == sqlStateDeadlockDetected
}
