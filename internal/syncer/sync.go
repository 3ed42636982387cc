// Package syncer keeps the index, registry, and metadata cache in step
// with the document files on disk.
package syncer

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/starford/dagaz/internal/cache"
	"github.com/starford/dagaz/internal/checksum"
	"github.com/starford/dagaz/internal/index"
	"github.com/starford/dagaz/internal/parser"
	"github.com/starford/dagaz/internal/registry"
	"github.com/starford/dagaz/internal/storage"
)

// Deps bundles the stores a sync pass operates on.
type Deps struct {
	Store    storage.Provider
	Index    index.DocumentIndex
	Registry *registry.Registry
	Cache    *cache.Storage
	Logger   *slog.Logger
}

// Sync walks the vault and brings the index, registry, and cache up to
// date: new and changed files are parsed and upserted, entries whose
// files are gone are removed. Individual file failures are logged and
// skipped.
func Sync(ctx context.Context, d Deps) error {
	metas, err := d.Store.List("")
	if err != nil {
		return err
	}

	checksums, err := d.Index.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum && !staleInCache(d, m.Path) {
			continue
		}

		data, err := d.Store.Read(m.Path)
		if err != nil {
			d.Logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexFile(d, m.Path, data); err != nil {
			d.Logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			d.Logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove entries for files no longer on disk.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			Purge(d, p)
			d.Logger.Debug("sync: removed stale", slog.String("path", p))
		}
	}

	if err := d.Registry.Flush(ctx); err != nil {
		d.Logger.Warn("sync: registry flush failed", slog.String("error", err.Error()))
	}
	if err := d.Cache.Flush(); err != nil {
		d.Logger.Warn("sync: cache flush failed", slog.String("error", err.Error()))
	}
	return nil
}

// IndexFile parses data and upserts it into the index, registry, and cache.
func IndexFile(d Deps, path string, data []byte) error {
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	cs := checksum.Sum(data)
	now := time.Now()

	if err := d.Index.UpsertDocument(index.DocumentRow{
		Path:      path,
		Title:     res.Title,
		Checksum:  cs,
		Tags:      res.Tags,
		UpdatedAt: now,
	}, res.Body, res.Refs); err != nil {
		return err
	}

	d.Registry.Register(registry.DocumentInfo{
		Path:      path,
		Title:     res.Title,
		Tags:      res.Tags,
		Checksum:  cs,
		Size:      int64(len(data)),
		UpdatedAt: now,
	})

	if abs, absErr := d.Store.Abs(path); absErr == nil {
		d.Cache.Put(cacheEntry(path, abs, cs, int64(len(data))))
	}
	return nil
}

// Purge removes path from the index, registry, and cache.
func Purge(d Deps, path string) {
	if err := d.Index.DeleteDocument(path); err != nil {
		d.Logger.Warn("sync: index delete failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	if err := d.Registry.Remove(path); err != nil {
		d.Logger.Debug("sync: registry remove", slog.String("path", path), slog.String("error", err.Error()))
	}
	d.Cache.Delete(path)
}

func cacheEntry(path, abs, cs string, size int64) cache.Entry {
	e := cache.Entry{Path: path, Checksum: cs, Size: size}
	if info, err := os.Stat(abs); err == nil {
		e.Size = info.Size()
		e.ModTime = info.ModTime()
	}
	return e
}

func staleInCache(d Deps, path string) bool {
	abs, err := d.Store.Abs(path)
	if err != nil {
		return true
	}
	return d.Cache.Stale(path, abs)
}
