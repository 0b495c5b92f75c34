package repository_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-planner/internal/repository"
	"task-planner/internal/testutil"
)

func TestUserRepository_UpsertFromTelegram(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewUserRepository(testutil.NewDB(t))

	created, err := repo.UpsertFromTelegram(ctx, 42, 100, "Anna", "Petrova", "anna")
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, int64(100), created.ChatID)

	updated, err := repo.UpsertFromTelegram(ctx, 42, 200, "Anna", "", "anna_p")
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)

	stored, err := repo.FindByTelegramID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(200), stored.ChatID)
	assert.Empty(t, stored.LastName)
	assert.Equal(t, "anna_p", stored.Username)

	_, err = repo.UpsertFromTelegram(ctx, 43, 300, "Ivan", "", "")
	require.NoError(t, err)
	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestNewDB_CreatesDatabaseDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "planner.db")

	db, err := repository.NewDB(path, nil)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
