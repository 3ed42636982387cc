// Package testutil provides shared test helpers for setting up vaults,
// indexes, and registries.
package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/dagaz/internal/cache"
	"github.com/starford/dagaz/internal/index"
	"github.com/starford/dagaz/internal/lockmgr"
	"github.com/starford/dagaz/internal/registry"
	"github.com/starford/dagaz/internal/storage"
	"github.com/starford/dagaz/internal/syncer"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "dagaz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with a storage.Provider.
func TestVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// TestDeps wires a full set of syncer dependencies in a temp directory.
func TestDeps(t *testing.T) (syncer.Deps, string) {
	t.Helper()
	vaultDir, store := TestVault(t)
	db := TestDB(t)

	stateDir := t.TempDir()
	locks := lockmgr.NewManager()
	reg := registry.New(filepath.Join(stateDir, "registry.json"), locks)
	metaCache := cache.NewStorage(filepath.Join(stateDir, "cache.json"))

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	return syncer.Deps{
		Store:    store,
		Index:    db,
		Registry: reg,
		Cache:    metaCache,
		Logger:   logger,
	}, vaultDir
}
