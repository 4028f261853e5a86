// Package testutil provides test helpers for setting up stores, creating
// fixtures, and making assertions.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"khata/internal/docstore"
	"khata/internal/docstore/gormstore"
	"khata/internal/docstore/memory"
)

// dbCounter ensures each test gets a unique in-memory database.
var dbCounter atomic.Int64

// SetupTestStore creates an in-memory document store.
func SetupTestStore(t *testing.T) *memory.Store {
	t.Helper()
	return memory.New()
}

// SetupTestGormStore creates a GORM-backed store on an isolated in-memory
// SQLite database with the documents table migrated.
func SetupTestGormStore(t *testing.T) *gormstore.Store {
	t.Helper()

	n := dbCounter.Add(1)
	dsn := fmt.Sprintf("file:docstore%d?mode=memory&cache=shared", n)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	store := gormstore.New(db)
	if err := store.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err != nil {
			t.Errorf("failed to get underlying DB for teardown: %v", err)
			return
		}
		if err := sqlDB.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})

	return store
}

// FailingStore wraps a Store and makes atomic units fail on demand, for
// verifying that an aborted unit leaves no partial state behind.
type FailingStore struct {
	docstore.Store
	Err              error
	FailTransactions bool
	FailBatches      bool
	FailUpdates      bool
}

// NewFailingStore wraps inner with all failure switches off.
func NewFailingStore(inner docstore.Store, err error) *FailingStore {
	return &FailingStore{Store: inner, Err: err}
}

// RunTransaction fails without committing when FailTransactions is set.
func (f *FailingStore) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	if f.FailTransactions {
		return f.Err
	}
	return f.Store.RunTransaction(ctx, fn)
}

// RunBatch fails without committing when FailBatches is set.
func (f *FailingStore) RunBatch(ctx context.Context, fn func(b docstore.Batch) error) error {
	if f.FailBatches {
		return f.Err
	}
	return f.Store.RunBatch(ctx, fn)
}

// Update fails without writing when FailUpdates is set.
func (f *FailingStore) Update(ctx context.Context, path, key string, fields docstore.Fields) error {
	if f.FailUpdates {
		return f.Err
	}
	return f.Store.Update(ctx, path, key, fields)
}
