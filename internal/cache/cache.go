// Package cache keeps file metadata (size, mtime, checksum) in memory
// and persists it as a JSON snapshot written atomically.
package cache

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/starford/dagaz/internal/atomicio"
)

// Entry records the observed state of one file.
type Entry struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	Checksum string    `json:"checksum"`
	CachedAt time.Time `json:"cached_at"`
}

// snapshot is the on-disk shape of the cache file.
type snapshot struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

const snapshotVersion = 1

// Storage is a thread-safe path → Entry cache backed by a JSON file.
type Storage struct {
	path string

	mu      sync.RWMutex
	entries map[string]Entry
}

// NewStorage creates a cache persisted at path. The file is created on
// the first Flush.
func NewStorage(path string) *Storage {
	return &Storage{path: path, entries: make(map[string]Entry)}
}

// Load reads the snapshot file into memory. A missing file is not an
// error and leaves the cache empty.
func (s *Storage) Load() error {
	var snap snapshot
	if err := atomicio.ReadJSON(s.path, &snap); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("cache: unsupported snapshot version %d in %s", snap.Version, s.path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = snap.Entries
	if s.entries == nil {
		s.entries = make(map[string]Entry)
	}
	return nil
}

// Flush atomically writes the current entries to the snapshot file.
func (s *Storage) Flush() error {
	s.mu.RLock()
	snap := snapshot{Version: snapshotVersion, Entries: make(map[string]Entry, len(s.entries))}
	for k, v := range s.entries {
		snap.Entries[k] = v
	}
	s.mu.RUnlock()

	return atomicio.WriteJSON(s.path, snap)
}

// Put records an entry for path, stamping CachedAt.
func (s *Storage) Put(e Entry) {
	e.CachedAt = time.Now()
	s.mu.Lock()
	s.entries[e.Path] = e
	s.mu.Unlock()
}

// Get returns the entry for path, if any.
func (s *Storage) Get(path string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[path]
	return e, ok
}

// Delete removes the entry for path.
func (s *Storage) Delete(path string) {
	s.mu.Lock()
	delete(s.entries, path)
	s.mu.Unlock()
}

// Paths returns the cached paths in sorted order.
func (s *Storage) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for p := range s.entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of cached entries.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stale reports whether the entry for path no longer matches the file
// at absPath on disk. A missing entry, a failed stat, or a size/mtime
// mismatch all count as stale.
func (s *Storage) Stale(path, absPath string) bool {
	e, ok := s.Get(path)
	if !ok {
		return true
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return true
	}
	return info.Size() != e.Size || !info.ModTime().Equal(e.ModTime)
}
