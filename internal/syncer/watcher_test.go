package syncer_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/dagaz/internal/syncer"
	"github.com/starford/dagaz/internal/testutil"
)

// eventually polls fn until it returns true or the timeout expires.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Fatal(msg)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) callback(kind, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+":"+path)
}

func (r *eventRecorder) has(ev string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == ev {
			return true
		}
	}
	return false
}

func startWatcher(t *testing.T) (syncer.Deps, string, *eventRecorder) {
	t.Helper()
	d, vaultDir := testutil.TestDeps(t)
	rec := &eventRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := syncer.Watch(ctx, d, vaultDir, rec.callback); err != nil {
			t.Errorf("Watch: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Give the watcher a moment to register its watches.
	time.Sleep(100 * time.Millisecond)
	return d, vaultDir, rec
}

func TestWatcherIndexesCreatedFile(t *testing.T) {
	d, vaultDir, rec := startWatcher(t)

	if err := os.WriteFile(filepath.Join(vaultDir, "new.md"), []byte("# New Doc\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		_, err := d.Index.GetDocument("new.md")
		return err == nil
	}, "file was not indexed")

	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return rec.has("created:new.md") || rec.has("updated:new.md")
	}, "no create callback fired")
}

func TestWatcherPurgesRemovedFile(t *testing.T) {
	d, vaultDir, rec := startWatcher(t)

	path := filepath.Join(vaultDir, "doc.md")
	if err := os.WriteFile(path, []byte("# Doc\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		_, err := d.Index.GetDocument("doc.md")
		return err == nil
	}, "file was not indexed")

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		paths, err := d.Index.AllPaths()
		if err != nil {
			return false
		}
		_, ok := paths["doc.md"]
		return !ok
	}, "index entry not purged after remove")

	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return rec.has("deleted:doc.md")
	}, "no delete callback fired")
}

func TestWatcherHandlesNewDirectory(t *testing.T) {
	d, vaultDir, _ := startWatcher(t)

	subDir := filepath.Join(vaultDir, "notes")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatal(err)
	}
	// Let the watcher pick up the new directory before writing into it.
	time.Sleep(200 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(subDir, "inner.md"), []byte("# Inner\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		_, err := d.Index.GetDocument(filepath.Join("notes", "inner.md"))
		return err == nil
	}, "file in new directory was not indexed")
}

func TestWatcherRenameReconciles(t *testing.T) {
	d, vaultDir, _ := startWatcher(t)

	oldPath := filepath.Join(vaultDir, "old.md")
	if err := os.WriteFile(oldPath, []byte("# Doc\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		_, err := d.Index.GetDocument("old.md")
		return err == nil
	}, "file was not indexed")

	if err := os.Rename(oldPath, filepath.Join(vaultDir, "renamed.md")); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		paths, err := d.Index.AllPaths()
		if err != nil {
			return false
		}
		_, oldOK := paths["old.md"]
		_, newOK := paths["renamed.md"]
		return !oldOK && newOK
	}, "rename was not reconciled")
}

func TestWatcherIgnoresNonMarkdown(t *testing.T) {
	d, vaultDir, _ := startWatcher(t)

	if err := os.WriteFile(filepath.Join(vaultDir, "data.txt"), []byte("not markdown"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)

	if paths, _ := d.Index.AllPaths(); len(paths) != 0 {
		t.Errorf("non-markdown file indexed: %v", paths)
	}
}
