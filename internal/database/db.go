package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Driver はデータベースドライバの種別を表す。
type Driver string

const (
	// DriverPostgres はlib/pqを使用するPostgreSQL接続。
	DriverPostgres Driver = "postgres"
	// DriverPGX はpgx stdlibを使用するPostgreSQL接続。
	DriverPGX Driver = "pgx"
	// DriverSQLite はmodernc.org/sqliteを使用する組み込みSQLite接続。
	DriverSQLite Driver = "sqlite"
)

const sqliteScheme = "sqlite://"

// sqliteParams はSQLite接続に付与するDSNパラメータ。
// _txlock=immediate によりトランザクション開始時点で書き込みロックを取得する。
const sqliteParams = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"

// ParseDriver は文字列をDriverに変換する。
func ParseDriver(s string) (Driver, error) {
	switch d := Driver(strings.ToLower(strings.TrimSpace(s))); d {
	case DriverPostgres, DriverPGX, DriverSQLite:
		return d, nil
	default:
		return "", fmt.Errorf("unsupported database driver: %q", s)
	}
}

// DetectDriver は接続URLのスキームからDriverを推定する。
// sqlite:// で始まる場合はSQLite、それ以外はlib/pqのPostgreSQLとみなす。
func DetectDriver(databaseURL string) Driver {
	if strings.HasPrefix(databaseURL, sqliteScheme) {
		return DriverSQLite
	}
	return DriverPostgres
}

// LocksRows はSELECT ... FOR UPDATEによる行ロックをサポートするかを返す。
// SQLiteは行ロックを持たず、IMMEDIATEトランザクションでデータベース全体を直列化する。
func (d Driver) LocksRows() bool {
	return d == DriverPostgres || d == DriverPGX
}

// migrationsDir は埋め込みマイグレーションのディレクトリ名を返す。
func (d Driver) migrationsDir() string {
	if d == DriverSQLite {
		return "sqlite"
	}
	return "postgres"
}

// SQLitePath は sqlite:///path/to.db 形式のURLからファイルパスを取り出す。
func SQLitePath(databaseURL string) (string, error) {
	path := strings.TrimPrefix(databaseURL, sqliteScheme)
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("sqlite database path is empty: %q", databaseURL)
	}
	return path, nil
}

// Open はドライバに応じたデータベース接続を開く。
// sql.Openは接続を試行しないため、実際の接続確認にはdb.Ping()を使用すること。
func Open(driver Driver, databaseURL string) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch driver {
	case DriverPostgres:
		db, err = sql.Open("postgres", databaseURL)
	case DriverPGX:
		db, err = sql.Open("pgx", databaseURL)
	case DriverSQLite:
		path, perr := SQLitePath(databaseURL)
		if perr != nil {
			return nil, perr
		}
		db, err = sql.Open("sqlite", "file:"+path+"?"+sqliteParams)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return db, nil
}
