// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// NewMigrator はマイグレーション実行用のmigrateインスタンスを生成する。
// ドライバごとに方言別のマイグレーションディレクトリを使用する。
// pgxドライバの場合もマイグレーションはpostgresドライバで実行する。
func NewMigrator(driver Driver, databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations/"+driver.migrationsDir())
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	targetURL, err := migrateURL(driver, databaseURL)
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, targetURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunMigrations はすべてのマイグレーションを適用する。
// すでに最新の場合はエラーなしで返る。
func RunMigrations(driver Driver, databaseURL string) error {
	m, err := NewMigrator(driver, databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// migrateURL はgolang-migrateが解釈する接続URLを返す。
func migrateURL(driver Driver, databaseURL string) (string, error) {
	if driver != DriverSQLite {
		return databaseURL, nil
	}
	path, err := SQLitePath(databaseURL)
	if err != nil {
		return "", err
	}
	return sqliteScheme + path, nil
}
