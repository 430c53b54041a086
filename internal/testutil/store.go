package testutil

import (
	"path/filepath"
	"testing"

	"github.com/andrewblevins/space-sub000/internal/kv"
)

// NewTestStore creates an in-memory key-value store. The store is closed
// when the test completes.
func NewTestStore(t *testing.T) *kv.MemoryStore {
	t.Helper()

	store := kv.NewMemoryStore()
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewTestSQLiteStore creates a SQLite-backed key-value store in a temp
// directory with schema applied. The store is closed when the test
// completes.
func NewTestSQLiteStore(t *testing.T) *kv.SQLiteStore {
	t.Helper()

	store, err := kv.OpenSQLite(filepath.Join(t.TempDir(), "space.db"), kv.DefaultMaxValueBytes)
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
