// Package docservice coordinates vault storage, the registry, the
// search index, and the metadata cache behind one service type.
//
// Mutations run inside a transaction covering the document file and the
// registry file, so a failure part-way leaves both untouched.
package docservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/cache"
	"github.com/starford/dagaz/internal/checksum"
	"github.com/starford/dagaz/internal/index"
	"github.com/starford/dagaz/internal/parser"
	"github.com/starford/dagaz/internal/registry"
	"github.com/starford/dagaz/internal/storage"
	"github.com/starford/dagaz/internal/syncer"
	"github.com/starford/dagaz/internal/txn"
)

// DocumentDetail is the full representation of a document.
type DocumentDetail struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Checksum    string         `json:"checksum"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Backlinks   []string       `json:"backlinks"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// DocumentListItem is a lightweight item in a list response.
type DocumentListItem struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service is the document service.
type Service struct {
	store  storage.Provider
	db     index.DocumentIndex
	reg    *registry.Registry
	cache  *cache.Storage
	txns   *txn.Manager
	logger *slog.Logger
}

// NewService creates a document service.
func NewService(store storage.Provider, db index.DocumentIndex, reg *registry.Registry, c *cache.Storage, txns *txn.Manager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, db: db, reg: reg, cache: c, txns: txns, logger: logger}
}

// deps bundles the service's stores for the syncer helpers.
func (s *Service) deps() syncer.Deps {
	return syncer.Deps{Store: s.store, Index: s.db, Registry: s.reg, Cache: s.cache, Logger: s.logger}
}

// GetDocument reads a document from storage, parses it, and enriches it
// with backlinks.
func (s *Service) GetDocument(_ context.Context, path string) (*DocumentDetail, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.buildDetail(path, data)
}

// CreateDocument writes a new document and registers it. The existence
// check, the write, and the registry update all happen inside one
// transaction holding the document's file lock, so two concurrent
// creates of the same path cannot both pass the check.
func (s *Service) CreateDocument(ctx context.Context, path string, content []byte) (*DocumentDetail, error) {
	if err := s.mutate(ctx, path, func() error {
		if _, err := s.store.Read(path); err == nil {
			return apperr.ErrAlreadyExists
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := s.store.Write(path, content); err != nil {
			return err
		}
		return syncer.IndexFile(s.deps(), path, content)
	}); err != nil {
		return nil, err
	}
	return s.buildDetail(path, content)
}

// UpdateDocument writes updated content with optimistic concurrency:
// a non-empty ifMatch must equal the current content checksum. The
// read-and-compare runs under the document's file lock, so a writer
// that lost the race re-reads the committed checksum and conflicts.
func (s *Service) UpdateDocument(ctx context.Context, path string, content []byte, ifMatch string) (*DocumentDetail, error) {
	if err := s.mutate(ctx, path, func() error {
		existing, err := s.store.Read(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return apperr.ErrNotFound
			}
			return err
		}
		if ifMatch != "" && ifMatch != checksum.Sum(existing) {
			return apperr.ErrConflict
		}
		if err := s.store.Write(path, content); err != nil {
			return err
		}
		return syncer.IndexFile(s.deps(), path, content)
	}); err != nil {
		return nil, err
	}
	return s.buildDetail(path, content)
}

// DeleteDocument removes a document from storage, registry, index, and
// cache. The existence check runs under the document's file lock.
func (s *Service) DeleteDocument(ctx context.Context, path string) error {
	return s.mutate(ctx, path, func() error {
		if _, err := s.store.Read(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return apperr.ErrNotFound
			}
			return err
		}
		if err := s.store.Delete(path); err != nil {
			return err
		}
		syncer.Purge(s.deps(), path)
		return nil
	})
}

// mutate runs op inside a transaction covering the document file and
// the registry file, then persists the registry while the lock is held.
func (s *Service) mutate(ctx context.Context, path string, op func() error) error {
	abs, err := s.store.Abs(path)
	if err != nil {
		return err
	}

	t, err := s.txns.Begin(ctx, abs, s.reg.Path())
	if err != nil {
		return err
	}
	t.Stage("apply", op)
	t.Stage("flush registry", s.reg.FlushLocked)

	if err := t.Commit(); err != nil {
		// Registry state in memory may be ahead of the restored files;
		// reload from the rolled-back registry file.
		if loadErr := s.reg.Load(); loadErr != nil {
			return fmt.Errorf("%w (registry reload: %v)", err, loadErr)
		}
		return err
	}
	return nil
}

// ListDocuments returns paginated documents with optional tag filter.
func (s *Service) ListDocuments(_ context.Context, limit, offset int, tag, sort string) ([]DocumentListItem, int, error) {
	rows, total, err := s.db.ListDocuments(limit, offset, tag, sort)
	if err != nil {
		return nil, 0, err
	}
	items := make([]DocumentListItem, len(rows))
	for i, r := range rows {
		items[i] = DocumentListItem{
			Path:      r.Path,
			Title:     r.Title,
			Checksum:  r.Checksum,
			Tags:      nonNilSlice(r.Tags),
			UpdatedAt: r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Graph returns all nodes and edges of the cross-reference graph.
func (s *Service) Graph(_ context.Context) ([]index.GraphNode, []index.GraphEdge, error) {
	return s.db.Graph()
}

// Backlinks returns all document paths that reference the given target.
func (s *Service) Backlinks(_ context.Context, target string) ([]string, error) {
	return s.db.Backlinks(target)
}

// Registry exposes registered metadata for lookup endpoints.
func (s *Service) Registry() *registry.Registry { return s.reg }

// buildDetail constructs a DocumentDetail from raw data without
// re-reading the file.
func (s *Service) buildDetail(path string, data []byte) (*DocumentDetail, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	bl, err := s.db.Backlinks(path)
	if err != nil {
		return nil, err
	}
	return &DocumentDetail{
		Path:        path,
		Title:       res.Title,
		Content:     string(data),
		Checksum:    checksum.Sum(data),
		Tags:        nonNilSlice(res.Tags),
		Frontmatter: res.Frontmatter,
		Backlinks:   nonNilSlice(bl),
		UpdatedAt:   time.Now(),
	}, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
