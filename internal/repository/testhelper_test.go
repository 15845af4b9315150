package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/postdeck/internal/database"
	"github.com/hitoshi/postdeck/internal/model"
)

// setupSQLiteDB はマイグレーション適用済みのSQLiteデータベースを準備する。
func setupSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := "sqlite://" + filepath.Join(t.TempDir(), "repo.db")
	require.NoError(t, database.RunMigrations(database.DriverSQLite, dbURL))

	db, err := database.Open(database.DriverSQLite, dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createTestUser(t *testing.T, db *sql.DB) *model.User {
	t.Helper()

	now := time.Now().UTC()
	id := uuid.NewString()
	u := &model.User{
		ID:        id,
		Email:     id + "@example.com",
		Name:      "Test User",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, NewSQLUserRepo(db).Create(context.Background(), u))
	return u
}

func createTestAccount(t *testing.T, repo *SQLAccountRepo, userID string, platform model.Platform, isDefault bool, updatedAt time.Time) *model.Account {
	t.Helper()

	a := &model.Account{
		ID:        uuid.NewString(),
		UserID:    userID,
		Platform:  platform,
		Handle:    "@handle",
		IsDefault: isDefault,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
	require.NoError(t, repo.Create(context.Background(), a))
	return a
}
