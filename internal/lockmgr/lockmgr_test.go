package lockmgr

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/dagaz/internal/apperr"
)

func TestAcquireRelease(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	if err := m.Acquire(ctx, "/tmp/a.json", "owner-1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
	if err := m.Release("/tmp/a.json", "owner-1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d after release, want 0", m.Len())
	}
}

func TestReentrantAcquire(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := m.Acquire(ctx, "x", "owner"); err != nil {
			t.Fatalf("Acquire #%d: %v", i, err)
		}
	}
	// Not fully released until every hold is dropped.
	for i := 0; i < 2; i++ {
		if err := m.Release("x", "owner"); err != nil {
			t.Fatalf("Release #%d: %v", i, err)
		}
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1 while still held", m.Len())
	}
	if err := m.Release("x", "owner"); err != nil {
		t.Fatalf("final Release: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0", m.Len())
	}
}

func TestAcquireTimeout(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	if err := m.Acquire(ctx, "busy", "holder"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { _ = m.Release("busy", "holder") })

	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	err := m.Acquire(shortCtx, "busy", "waiter")
	if !errors.Is(err, apperr.ErrLockTimeout) {
		t.Errorf("err = %v, want ErrLockTimeout", err)
	}
	// The failed waiter must not leak a registry entry.
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}

func TestReleaseByNonOwner(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	_ = m.Acquire(ctx, "y", "alice")
	if err := m.Release("y", "mallory"); !errors.Is(err, apperr.ErrNotLockOwner) {
		t.Errorf("err = %v, want ErrNotLockOwner", err)
	}
	if err := m.Release("y", "alice"); err != nil {
		t.Fatalf("Release by owner: %v", err)
	}
}

func TestReleaseUnknownPath(t *testing.T) {
	m := NewManager()
	if err := m.Release("/never/locked", "anyone"); !errors.Is(err, apperr.ErrNotLockOwner) {
		t.Errorf("err = %v, want ErrNotLockOwner", err)
	}
}

func TestNormalizeSharesLock(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	abs, _ := filepath.Abs("data/reg.json")
	if err := m.Acquire(ctx, "data/reg.json", "a"); err != nil {
		t.Fatalf("Acquire relative: %v", err)
	}

	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	// The absolute spelling must hit the same lock.
	if err := m.Acquire(shortCtx, abs, "b"); !errors.Is(err, apperr.ErrLockTimeout) {
		t.Errorf("expected ErrLockTimeout for same file, got %v", err)
	}
	_ = m.Release(abs, "a")
}

func TestBlockedWaiterProceedsAfterRelease(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	if err := m.Acquire(ctx, "contended", "first"); err != nil {
		t.Fatal(err)
	}

	acquired := make(chan struct{})
	go func() {
		if err := m.Acquire(ctx, "contended", "second"); err == nil {
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second owner acquired while lock held")
	case <-time.After(50 * time.Millisecond):
	}

	_ = m.Release("contended", "first")

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never acquired after release")
	}
	_ = m.Release("contended", "second")
}

func TestWithLock(t *testing.T) {
	m := NewManager()
	ran := false
	err := m.WithLock(context.Background(), "wl", "o", func() error {
		ran = true
		if m.Len() != 1 {
			t.Errorf("Len = %d inside WithLock, want 1", m.Len())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	if !ran {
		t.Error("fn not called")
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d after WithLock, want 0", m.Len())
	}
}

func TestConcurrentCounter(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			owner := string(rune('a' + id))
			for j := 0; j < 50; j++ {
				if err := m.Acquire(ctx, "counter", owner); err != nil {
					t.Error(err)
					return
				}
				counter++
				_ = m.Release("counter", owner)
			}
		}(i)
	}
	wg.Wait()

	if counter != 1000 {
		t.Errorf("counter = %d, want 1000 (lost updates)", counter)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0", m.Len())
	}
}
