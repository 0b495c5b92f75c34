// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"

	"task-planner/internal/model"
	"task-planner/internal/repository"
)

var dbSeq atomic.Int64

// NewDB opens a migrated in-memory database private to the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	db, err := repository.NewDB(dsn, nil)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("test db handle: %v", err)
	}
	// One connection keeps the shared in-memory database free of table locks.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// NewUser stores a user with the given Telegram id.
func NewUser(t *testing.T, db *gorm.DB, telegramID int64) *model.User {
	t.Helper()

	user, err := repository.NewUserRepository(db).UpsertFromTelegram(context.Background(), telegramID, telegramID, "Test", "", "tester")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}
