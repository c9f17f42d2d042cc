// Package testutil builds throwaway databases for package tests.
package testutil

import (
	"fmt"
	"testing"

	"anoa.com/threadline/internal/bootstrap"
	"anoa.com/threadline/internal/entity"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a migrated and seeded in-memory sqlite database private to t.
// The pool holds one connection so concurrent callers serialize instead of
// failing with SQLITE_BUSY.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := bootstrap.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := bootstrap.SeedInteractionTypes(db); err != nil {
		t.Fatalf("seed interaction types: %v", err)
	}
	return db
}

// SeedUser inserts a user with the given name.
func SeedUser(t testing.TB, db *gorm.DB, username string) *entity.User {
	t.Helper()
	u := &entity.User{Username: username}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

// SeedPost inserts a post authored by authorID.
func SeedPost(t testing.TB, db *gorm.DB, authorID uint) *entity.Post {
	t.Helper()
	p := &entity.Post{AuthorID: authorID, Title: "post", Content: "body"}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed post: %v", err)
	}
	return p
}
