// Package txn provides multi-file transactions on top of the lock
// manager and atomic file operations.
//
// A transaction locks its file set up front, in sorted path order so two
// transactions over overlapping sets cannot deadlock. Staged operations
// run at Commit; the first failure restores per-file backups taken just
// before execution and the error is reported to the caller.
package txn

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/atomicio"
	"github.com/starford/dagaz/internal/lockmgr"
)

// Op is one staged operation. Name appears in logs and errors.
type Op struct {
	Name  string
	Apply func() error
}

// Manager begins transactions against a shared lock manager.
type Manager struct {
	locks  *lockmgr.Manager
	logger *slog.Logger
}

// NewManager creates a transaction manager.
func NewManager(locks *lockmgr.Manager, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{locks: locks, logger: logger}
}

// Tx is a single transaction. Not safe for concurrent use.
type Tx struct {
	id    string
	mgr   *Manager
	paths []string // normalized, sorted, deduplicated
	ops   []Op
	done  bool
}

// Begin starts a transaction covering paths. All locks are acquired
// before Begin returns; on any acquisition failure the locks taken so
// far are released and the error is returned.
func (m *Manager) Begin(ctx context.Context, paths ...string) (*Tx, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("txn: no paths")
	}

	id := uuid.NewString()

	seen := make(map[string]struct{}, len(paths))
	normalized := make([]string, 0, len(paths))
	for _, p := range paths {
		key := lockmgr.Normalize(p)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		normalized = append(normalized, key)
	}
	sort.Strings(normalized)

	for i, p := range normalized {
		if err := m.locks.Acquire(ctx, p, id); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = m.locks.Release(normalized[j], id)
			}
			return nil, fmt.Errorf("txn %s: lock %s: %w", id, p, err)
		}
	}

	m.logger.Debug("txn: begin", slog.String("id", id), slog.Int("paths", len(normalized)))
	return &Tx{id: id, mgr: m, paths: normalized}, nil
}

// ID returns the transaction's unique identifier. It is also the owner
// ID under which the transaction holds its locks.
func (t *Tx) ID() string { return t.id }

// Stage queues an operation to run at Commit.
func (t *Tx) Stage(name string, apply func() error) {
	t.ops = append(t.ops, Op{Name: name, Apply: apply})
}

// Commit takes backups of every file in the lock set, runs the staged
// operations in order, and releases the locks. If any operation fails,
// all backups are restored before the locks are released and the
// operation's error is returned.
func (t *Tx) Commit() error {
	if t.done {
		return apperr.ErrTxDone
	}
	t.done = true
	defer t.release()

	restores := make([]func() error, 0, len(t.paths))
	for _, p := range t.paths {
		restore, err := atomicio.Backup(p)
		if err != nil {
			return fmt.Errorf("txn %s: backup %s: %w", t.id, p, err)
		}
		restores = append(restores, restore)
	}

	for _, op := range t.ops {
		if err := op.Apply(); err != nil {
			t.mgr.logger.Warn("txn: rolling back",
				slog.String("id", t.id),
				slog.String("op", op.Name),
				slog.String("error", err.Error()))
			for i := len(restores) - 1; i >= 0; i-- {
				if rErr := restores[i](); rErr != nil {
					t.mgr.logger.Error("txn: restore failed",
						slog.String("id", t.id),
						slog.String("error", rErr.Error()))
				}
			}
			return fmt.Errorf("txn %s: op %s: %w", t.id, op.Name, err)
		}
	}

	t.mgr.logger.Debug("txn: committed", slog.String("id", t.id), slog.Int("ops", len(t.ops)))
	return nil
}

// Rollback abandons the transaction without running any staged
// operation and releases its locks.
func (t *Tx) Rollback() error {
	if t.done {
		return apperr.ErrTxDone
	}
	t.done = true
	t.release()
	t.mgr.logger.Debug("txn: rolled back", slog.String("id", t.id))
	return nil
}

func (t *Tx) release() {
	for i := len(t.paths) - 1; i >= 0; i-- {
		if err := t.mgr.locks.Release(t.paths[i], t.id); err != nil {
			t.mgr.logger.Error("txn: release failed",
				slog.String("id", t.id),
				slog.String("path", t.paths[i]),
				slog.String("error", err.Error()))
		}
	}
}
