package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hitoshi/postdeck/internal/model"
)

func TestSQLUserRepo_CreateAndFind(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewSQLUserRepo(db)
	ctx := context.Background()

	u := createTestUser(t, db)

	got, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, u.Email, got.Email)
	require.Equal(t, u.Name, got.Name)
	require.WithinDuration(t, u.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestSQLUserRepo_FindByID_NotFound(t *testing.T) {
	repo := NewSQLUserRepo(setupSQLiteDB(t))

	got, err := repo.FindByID(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSQLUserRepo_Create_DuplicateEmail(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewSQLUserRepo(db)
	u := createTestUser(t, db)

	dup := &model.User{ID: "other", Email: u.Email, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.Error(t, repo.Create(context.Background(), dup))
}
