package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/atomicio"
	"github.com/starford/dagaz/internal/lockmgr"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewManager(lockmgr.NewManager(), logger)
}

func TestCommitAppliesOps(t *testing.T) {
	m := testManager(t)
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")

	tx, err := m.Begin(context.Background(), a, b)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	tx.Stage("write a", func() error { return atomicio.WriteFile(a, []byte("A"), 0o644) })
	tx.Stage("write b", func() error { return atomicio.WriteFile(b, []byte("B"), 0o644) })

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	for path, want := range map[string]string{a: "A", b: "B"} {
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
}

func TestCommitFailureRestoresBackups(t *testing.T) {
	m := testManager(t)
	dir := t.TempDir()
	existing := filepath.Join(dir, "existing.json")
	fresh := filepath.Join(dir, "fresh.json")
	_ = os.WriteFile(existing, []byte("before"), 0o644)

	tx, err := m.Begin(context.Background(), existing, fresh)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	tx.Stage("overwrite existing", func() error { return atomicio.WriteFile(existing, []byte("after"), 0o644) })
	tx.Stage("create fresh", func() error { return atomicio.WriteFile(fresh, []byte("new"), 0o644) })
	tx.Stage("boom", func() error { return fmt.Errorf("deliberate failure") })

	err = tx.Commit()
	if err == nil {
		t.Fatal("Commit should have failed")
	}

	got, readErr := os.ReadFile(existing)
	if readErr != nil {
		t.Fatalf("read existing: %v", readErr)
	}
	if string(got) != "before" {
		t.Errorf("existing = %q, want pre-transaction content", got)
	}
	if _, statErr := os.Stat(fresh); !os.IsNotExist(statErr) {
		t.Error("fresh file should have been removed by rollback")
	}
}

func TestLocksReleasedAfterCommit(t *testing.T) {
	locks := lockmgr.NewManager()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	m := NewManager(locks, logger)
	path := filepath.Join(t.TempDir(), "f.json")

	tx, err := m.Begin(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if locks.Len() != 1 {
		t.Errorf("Len = %d during tx, want 1", locks.Len())
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if locks.Len() != 0 {
		t.Errorf("Len = %d after commit, want 0", locks.Len())
	}
}

func TestRollbackReleasesWithoutApplying(t *testing.T) {
	m := testManager(t)
	path := filepath.Join(t.TempDir(), "f.json")

	tx, err := m.Begin(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	tx.Stage("never runs", func() error { return atomicio.WriteFile(path, []byte("x"), 0o644) })

	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("staged op should not have run")
	}
}

func TestFinishedTxRejectsReuse(t *testing.T) {
	m := testManager(t)
	path := filepath.Join(t.TempDir(), "f.json")

	tx, _ := m.Begin(context.Background(), path)
	_ = tx.Commit()

	if err := tx.Commit(); !errors.Is(err, apperr.ErrTxDone) {
		t.Errorf("second Commit err = %v, want ErrTxDone", err)
	}
	if err := tx.Rollback(); !errors.Is(err, apperr.ErrTxDone) {
		t.Errorf("Rollback after Commit err = %v, want ErrTxDone", err)
	}
}

func TestDuplicatePathsCollapse(t *testing.T) {
	m := testManager(t)
	path := filepath.Join(t.TempDir(), "dup.json")

	// The same file listed twice must not self-deadlock.
	tx, err := m.Begin(context.Background(), path, path)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestOverlappingTransactionsNoDeadlock(t *testing.T) {
	m := testManager(t)
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")

	// Two goroutines repeatedly take the same pair in opposite argument
	// order. Sorted acquisition means they serialize instead of deadlocking.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for _, order := range [][]string{{a, b}, {b, a}} {
		wg.Add(1)
		go func(paths []string) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				tx, err := m.Begin(ctx, paths...)
				if err != nil {
					t.Errorf("Begin: %v", err)
					return
				}
				if err := tx.Commit(); err != nil {
					t.Errorf("Commit: %v", err)
					return
				}
			}
		}(order)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("transactions deadlocked")
	}
}

func TestBeginTimeoutReleasesPartialLocks(t *testing.T) {
	locks := lockmgr.NewManager()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	m := NewManager(locks, logger)
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")

	// Hold b so the transaction can take a but not b.
	if err := locks.Acquire(context.Background(), b, "blocker"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := m.Begin(ctx, a, b); !errors.Is(err, apperr.ErrLockTimeout) {
		t.Fatalf("Begin err = %v, want ErrLockTimeout", err)
	}

	// Only the blocker's entry should remain.
	if locks.Len() != 1 {
		t.Errorf("Len = %d, want 1", locks.Len())
	}
	_ = locks.Release(b, "blocker")
}
