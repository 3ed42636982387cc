// Package lockmgr provides per-path reentrant file locks with acquire
// timeouts and owner tracking, behind a process-wide ref-counted registry.
//
// The locks coordinate goroutines within a single process; they do not
// protect against other processes touching the same files.
package lockmgr

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/starford/dagaz/internal/apperr"
)

// FileLock is a reentrant lock tied to one normalized path. The same
// owner may acquire it repeatedly; it is released when the hold count
// drops back to zero.
type FileLock struct {
	path string

	mu    sync.Mutex
	owner string
	holds int
	freed chan struct{} // closed and replaced on every full release
}

func newFileLock(path string) *FileLock {
	return &FileLock{path: path, freed: make(chan struct{})}
}

// Path returns the normalized path this lock guards.
func (l *FileLock) Path() string { return l.path }

// Owner returns the current owner ID, or empty when unheld.
func (l *FileLock) Owner() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner
}

// HoldCount returns the current reentrant hold depth.
func (l *FileLock) HoldCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holds
}

// Acquire takes the lock for owner, waiting until the lock is free or
// ctx expires. Re-acquisition by the current owner increments the hold
// count and returns immediately.
func (l *FileLock) Acquire(ctx context.Context, owner string) error {
	if owner == "" {
		return fmt.Errorf("lockmgr: empty owner for %s", l.path)
	}
	for {
		l.mu.Lock()
		if l.holds == 0 || l.owner == owner {
			l.owner = owner
			l.holds++
			l.mu.Unlock()
			return nil
		}
		wait := l.freed
		l.mu.Unlock()

		select {
		case <-wait:
			// Lock was fully released; retry.
		case <-ctx.Done():
			return fmt.Errorf("lockmgr: %s held by %s: %w", l.path, l.Owner(), apperr.ErrLockTimeout)
		}
	}
}

// Release drops one hold for owner. The last release clears ownership
// and wakes all waiters. Releasing a lock held by someone else (or not
// held at all) returns apperr.ErrNotLockOwner.
func (l *FileLock) Release(owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holds == 0 || l.owner != owner {
		return fmt.Errorf("lockmgr: release %s by %s: %w", l.path, owner, apperr.ErrNotLockOwner)
	}
	l.holds--
	if l.holds == 0 {
		l.owner = ""
		close(l.freed)
		l.freed = make(chan struct{})
	}
	return nil
}

type lockEntry struct {
	lock     *FileLock
	refCount int
}

// Manager maps normalized absolute paths to FileLocks. Entries are
// reference counted so the map does not grow without bound.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

// NewManager creates an empty lock manager.
func NewManager() *Manager {
	return &Manager{locks: make(map[string]*lockEntry)}
}

// Normalize resolves path to a cleaned absolute form so that different
// spellings of the same file share one lock.
func Normalize(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// Acquire locks path for owner, blocking until free or ctx expires.
func (m *Manager) Acquire(ctx context.Context, path, owner string) error {
	key := Normalize(path)

	m.mu.Lock()
	entry, ok := m.locks[key]
	if !ok {
		entry = &lockEntry{lock: newFileLock(key)}
		m.locks[key] = entry
	}
	entry.refCount++
	m.mu.Unlock()

	if err := entry.lock.Acquire(ctx, owner); err != nil {
		m.unref(key)
		return err
	}
	return nil
}

// Release drops one hold on path for owner.
func (m *Manager) Release(path, owner string) error {
	key := Normalize(path)

	m.mu.Lock()
	entry, ok := m.locks[key]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("lockmgr: release unknown path %s: %w", key, apperr.ErrNotLockOwner)
	}

	if err := entry.lock.Release(owner); err != nil {
		return err
	}
	m.unref(key)
	return nil
}

// WithLock runs fn while holding the lock for path.
func (m *Manager) WithLock(ctx context.Context, path, owner string, fn func() error) error {
	if err := m.Acquire(ctx, path, owner); err != nil {
		return err
	}
	defer m.Release(path, owner) //nolint:errcheck // owner just acquired it
	return fn()
}

// Len returns the number of live lock entries.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *Manager) unref(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.locks[key]
	if !ok {
		return
	}
	entry.refCount--
	if entry.refCount <= 0 {
		delete(m.locks, key)
	}
}
