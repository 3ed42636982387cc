// Package registry maintains the JSON-file-backed document registry:
// a map of vault path → document metadata with duplicate detection by
// content checksum.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/atomicio"
	"github.com/starford/dagaz/internal/lockmgr"
)

const fileVersion = 1

// DocumentInfo is the registered metadata for one document.
type DocumentInfo struct {
	Path         string    `json:"path"`
	Title        string    `json:"title,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	Checksum     string    `json:"checksum"`
	Size         int64     `json:"size"`
	UpdatedAt    time.Time `json:"updated_at"`
	RegisteredAt time.Time `json:"registered_at"`
}

// registryFile is the persisted shape.
type registryFile struct {
	Version   int                     `json:"version"`
	Documents map[string]DocumentInfo `json:"documents"`
}

// Registry is a thread-safe document registry persisted as one JSON
// file. Writes to the file are serialized through the lock manager so
// the registry file can participate in multi-file transactions.
type Registry struct {
	path  string
	locks *lockmgr.Manager

	mu   sync.RWMutex
	docs map[string]DocumentInfo
}

// New creates a registry persisted at path, coordinating file access
// through locks.
func New(path string, locks *lockmgr.Manager) *Registry {
	return &Registry{
		path:  path,
		locks: locks,
		docs:  make(map[string]DocumentInfo),
	}
}

// Path returns the registry file path.
func (r *Registry) Path() string { return r.path }

// Load reads the registry file into memory. A missing file leaves the
// registry empty.
func (r *Registry) Load() error {
	var f registryFile
	if err := atomicio.ReadJSON(r.path, &f); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if f.Version != fileVersion {
		return fmt.Errorf("registry: unsupported file version %d in %s", f.Version, r.path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = f.Documents
	if r.docs == nil {
		r.docs = make(map[string]DocumentInfo)
	}
	return nil
}

// Flush atomically writes the registry file under its file lock. Each
// call locks under a fresh owner ID, so concurrent flushes serialize
// instead of piggybacking on lock reentrancy.
func (r *Registry) Flush(ctx context.Context) error {
	return r.locks.WithLock(ctx, r.path, uuid.NewString(), r.FlushLocked)
}

// FlushLocked writes the registry file without taking the file lock.
// It is for callers that already hold the lock, such as a transaction
// whose lock set includes the registry file.
func (r *Registry) FlushLocked() error {
	r.mu.RLock()
	f := registryFile{Version: fileVersion, Documents: make(map[string]DocumentInfo, len(r.docs))}
	for k, v := range r.docs {
		f.Documents[k] = v
	}
	r.mu.RUnlock()

	return atomicio.WriteJSON(r.path, f)
}

// Register adds or replaces the entry for info.Path, stamping
// RegisteredAt on first registration.
func (r *Registry) Register(info DocumentInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.docs[info.Path]; ok {
		info.RegisteredAt = prev.RegisteredAt
	} else {
		info.RegisteredAt = time.Now()
	}
	r.docs[info.Path] = info
}

// Get returns the entry for path.
func (r *Registry) Get(path string) (DocumentInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.docs[path]
	if !ok {
		return DocumentInfo{}, fmt.Errorf("registry: %s: %w", path, apperr.ErrNotFound)
	}
	return info, nil
}

// Remove deletes the entry for path.
func (r *Registry) Remove(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[path]; !ok {
		return fmt.Errorf("registry: %s: %w", path, apperr.ErrNotFound)
	}
	delete(r.docs, path)
	return nil
}

// List returns all entries sorted by path.
func (r *Registry) List() []DocumentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DocumentInfo, 0, len(r.docs))
	for _, info := range r.docs {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// FindByChecksum returns every entry whose content checksum matches,
// sorted by path. Identical content always yields the same result set,
// which is how duplicate documents are detected.
func (r *Registry) FindByChecksum(sum string) []DocumentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []DocumentInfo
	for _, info := range r.docs {
		if info.Checksum == sum {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Len returns the number of registered documents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}
