package syncer

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventCallback is called after a watcher-driven change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, path string)

// Watch starts an fsnotify watcher on the vault root and processes file
// change events until ctx is cancelled. It calls cb (if non-nil) after
// each successful mutation.
//
// New directories created at runtime are added to the watch list.
// Rename events trigger a debounced reconciliation pass that removes
// entries whose files no longer exist on disk.
func Watch(ctx context.Context, d Deps, vaultRoot string, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, vaultRoot); err != nil {
		return err
	}

	d.Logger.Info("watcher: started", slog.String("root", vaultRoot))

	// reconcileTimer debounces rename reconciliation.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			d.Logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(ctx, d, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			// New directories: start watching and index their contents.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						d.Logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						d.Logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					indexNewDir(d, vaultRoot, absPath, cb)
					continue
				}
			}

			// Only process .md files from here on.
			if !strings.HasSuffix(absPath, ".md") {
				continue
			}

			rel, relErr := filepath.Rel(vaultRoot, absPath)
			if relErr != nil {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				data, readErr := d.Store.Read(rel)
				if readErr != nil {
					d.Logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", readErr.Error()))
					continue
				}
				if idxErr := IndexFile(d, rel, data); idxErr != nil {
					d.Logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
					continue
				}
				kind := "updated"
				if ev.Op&fsnotify.Create != 0 {
					kind = "created"
				}
				d.Logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
				if cb != nil {
					cb(kind, rel)
				}

			case ev.Op&fsnotify.Remove != 0:
				Purge(d, rel)
				d.Logger.Debug("watcher: deleted", slog.String("path", rel))
				if cb != nil {
					cb("deleted", rel)
				}

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the OLD path only. The new
				// path arrives as a separate Create event if it stays
				// within a watched dir. Purge the old entry now and
				// schedule a reconciliation pass for stragglers.
				Purge(d, rel)
				d.Logger.Debug("watcher: rename old purged", slog.String("path", rel))
				if cb != nil {
					cb("deleted", rel)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			d.Logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile does a lightweight sync using batch lookups: removes index
// entries without a file on disk, indexes on-disk files that changed.
func reconcile(ctx context.Context, d Deps, cb EventCallback) {
	checksums, err := d.Index.AllChecksums()
	if err != nil {
		d.Logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}

	metas, err := d.Store.List("")
	if err != nil {
		d.Logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			Purge(d, p)
			d.Logger.Debug("reconcile: removed stale", slog.String("path", p))
			if cb != nil {
				cb("deleted", p)
			}
		}
	}

	for p, cs := range disk {
		if checksums[p] == cs {
			continue
		}
		data, readErr := d.Store.Read(p)
		if readErr != nil {
			continue
		}
		if idxErr := IndexFile(d, p, data); idxErr == nil {
			d.Logger.Debug("reconcile: indexed new", slog.String("path", p))
			if cb != nil {
				cb("created", p)
			}
		}
	}

	if err := d.Registry.Flush(ctx); err != nil {
		d.Logger.Warn("reconcile: registry flush failed", slog.String("error", err.Error()))
	}
}

// indexNewDir indexes any .md files found in a newly created directory.
func indexNewDir(d Deps, vaultRoot, dirPath string, cb EventCallback) {
	_ = filepath.WalkDir(dirPath, func(path string, de fs.DirEntry, err error) error {
		if err != nil || de.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		rel, relErr := filepath.Rel(vaultRoot, path)
		if relErr != nil {
			return nil
		}
		data, readErr := d.Store.Read(rel)
		if readErr != nil {
			return nil
		}
		if idxErr := IndexFile(d, rel, data); idxErr == nil {
			d.Logger.Debug("watcher: indexed from new dir", slog.String("path", rel))
			if cb != nil {
				cb("created", rel)
			}
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
