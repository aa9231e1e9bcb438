//go:build linux

package watching

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/wanman/gerber/internal/autoscan"
	"github.com/wanman/gerber/internal/content"
)

// fakeManager is an in-memory content.Manager that records every call for
// assertions against a small recording fake rather than a mock framework.
type fakeManager struct {
	mu      sync.Mutex
	added   []string
	removed []string
	moved   [][2]string
	rescans []uuid.UUID
}

func (f *fakeManager) AddFile(path string, _ content.AddOptions) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, path)
}

func (f *fakeManager) RemoveObjectByPath(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, path)
}

func (f *fakeManager) HandleMove(fromPath, toPath string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moved = append(f.moved, [2]string{fromPath, toPath})
}

func (f *fakeManager) RescanDirectory(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rescans = append(f.rescans, id)
}

func (f *fakeManager) snapshot() (added, removed []string, moved [][2]string, rescans []uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.added...), append([]string(nil), f.removed...), append([][2]string(nil), f.moved...), append([]uuid.UUID(nil), f.rescans...)
}

// eventually polls cond until it returns true or the deadline passes,
// failing the test otherwise. Watching effects are asynchronous (they cross
// the worker goroutine's poll tick), so tests can't assert immediately after
// a filesystem mutation.
func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", timeout)
	}
}

func newTestWatcher(t *testing.T, mgr content.Manager, list *autoscan.List) *Watcher {
	t.Helper()
	w := New(nil, mgr, list, Config{ImportHiddenFiles: false, FollowSymlinks: false})
	if err := w.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(w.Shutdown)
	return w
}

// waitForStartPoint blocks until the watcher's snapshot shows dir's start
// point at path. Monitor is applied only at the worker's next tick, which can
// be up to pollTimeout away, and the snapshot is refreshed at the end of that
// tick, so a short fixed sleep is not enough.
func waitForStartPoint(t *testing.T, w *Watcher, dir *autoscan.Directory, path string, placeholder bool) {
	t.Helper()
	eventually(t, 3*pollTimeout, func() bool {
		for _, s := range w.Snapshot() {
			if s.AutoscanID == dir.ID.String() && s.IsStartPoint && s.Path == path && s.Placeholder == placeholder {
				return true
			}
		}
		return false
	})
}

func TestSimpleFileAdd(t *testing.T) {
	root := t.TempDir()
	mgr := &fakeManager{}
	list := autoscan.NewList()
	w := newTestWatcher(t, mgr, list)

	dir := &autoscan.Directory{ID: uuid.New(), Path: root, Recursive: false}
	list.Add(dir)
	w.Monitor(dir)
	waitForStartPoint(t, w, dir, root, false)

	target := filepath.Join(root, "a.txt")
	eventually(t, 2*time.Second, func() bool {
		return os.WriteFile(target, []byte("hello"), 0o644) == nil
	})

	eventually(t, 2*time.Second, func() bool {
		added, _, _, _ := mgr.snapshot()
		for _, p := range added {
			if p == target {
				return true
			}
		}
		return false
	})
}

func TestRecursiveSubdirectoryCreate(t *testing.T) {
	root := t.TempDir()
	mgr := &fakeManager{}
	list := autoscan.NewList()
	w := newTestWatcher(t, mgr, list)

	dir := &autoscan.Directory{ID: uuid.New(), Path: root, Recursive: true}
	list.Add(dir)
	w.Monitor(dir)
	waitForStartPoint(t, w, dir, root, false)

	sub := filepath.Join(root, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	target := filepath.Join(sub, "b.txt")
	// Give the worker a tick to install the watch on "nested" before writing
	// into it, then write and wait for the add notification.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(target, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	eventually(t, 2*time.Second, func() bool {
		added, _, _, _ := mgr.snapshot()
		for _, p := range added {
			if p == target {
				return true
			}
		}
		return false
	})
}

func TestPairedMoveWithinWatchedDirectory(t *testing.T) {
	root := t.TempDir()
	mgr := &fakeManager{}
	list := autoscan.NewList()
	w := newTestWatcher(t, mgr, list)

	dir := &autoscan.Directory{ID: uuid.New(), Path: root, Recursive: false}
	list.Add(dir)
	w.Monitor(dir)
	waitForStartPoint(t, w, dir, root, false)

	from := filepath.Join(root, "old.txt")
	to := filepath.Join(root, "new.txt")
	if err := os.WriteFile(from, []byte("hi"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := os.Rename(from, to); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	eventually(t, 2*time.Second, func() bool {
		_, _, moved, _ := mgr.snapshot()
		for _, m := range moved {
			if m[0] == from && m[1] == to {
				return true
			}
		}
		return false
	})

	_, removed, _, _ := mgr.snapshot()
	for _, p := range removed {
		if p == from {
			t.Fatalf("paired move should not also degrade to a remove, got remove(%s)", p)
		}
	}
}

func TestUnpairedMoveDegradesToDelete(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	mgr := &fakeManager{}
	list := autoscan.NewList()
	w := newTestWatcher(t, mgr, list)

	dir := &autoscan.Directory{ID: uuid.New(), Path: root, Recursive: false}
	list.Add(dir)
	w.Monitor(dir)
	waitForStartPoint(t, w, dir, root, false)

	from := filepath.Join(root, "gone.txt")
	to := filepath.Join(outside, "gone.txt")
	if err := os.WriteFile(from, []byte("hi"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := os.Rename(from, to); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	eventually(t, 2*time.Second, func() bool {
		_, removed, _, _ := mgr.snapshot()
		for _, p := range removed {
			if p == from {
				return true
			}
		}
		return false
	})
}

func TestNonexistingPathPromotion(t *testing.T) {
	root := t.TempDir()
	mgr := &fakeManager{}
	list := autoscan.NewList()
	w := newTestWatcher(t, mgr, list)

	missingRoot := filepath.Join(root, "missing", "sub")
	dir := &autoscan.Directory{ID: uuid.New(), Path: missingRoot, Recursive: true}
	list.Add(dir)
	w.Monitor(dir)
	waitForStartPoint(t, w, dir, root, true)

	if err := os.MkdirAll(missingRoot, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	waitForStartPoint(t, w, dir, missingRoot, false)

	target := filepath.Join(missingRoot, "c.txt")
	eventually(t, 2*time.Second, func() bool {
		return os.WriteFile(target, []byte("hi"), 0o644) == nil
	})

	eventually(t, 2*time.Second, func() bool {
		added, _, _, _ := mgr.snapshot()
		for _, p := range added {
			if p == target {
				return true
			}
		}
		return false
	})
}

func TestDispatchBatchOverflowTriggersFullRescan(t *testing.T) {
	mgr := &fakeManager{}
	list := autoscan.NewList()
	dir := &autoscan.Directory{ID: uuid.New(), Path: "/irrelevant", Recursive: false}
	list.Add(dir)

	w := New(nil, mgr, list, Config{})
	w.wds = make(map[int32]*watchNode)
	w.startPoints = make(map[uuid.UUID]int32)

	w.dispatchBatch([]rawEvent{{Mask: unix.IN_Q_OVERFLOW}})

	_, _, _, rescans := mgr.snapshot()
	if len(rescans) != 1 || rescans[0] != dir.ID {
		t.Fatalf("expected a single rescan of %s, got %v", dir.ID, rescans)
	}
}

func TestUnmonitorStopsFurtherNotifications(t *testing.T) {
	root := t.TempDir()
	mgr := &fakeManager{}
	list := autoscan.NewList()
	w := newTestWatcher(t, mgr, list)

	dir := &autoscan.Directory{ID: uuid.New(), Path: root, Recursive: false}
	list.Add(dir)
	w.Monitor(dir)
	waitForStartPoint(t, w, dir, root, false)

	w.Unmonitor(dir)
	eventually(t, 3*pollTimeout, func() bool {
		for _, s := range w.Snapshot() {
			if s.AutoscanID == dir.ID.String() {
				return false
			}
		}
		return true
	})

	target := filepath.Join(root, "after-unmonitor.txt")
	if err := os.WriteFile(target, []byte("hi"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	added, _, _, _ := mgr.snapshot()
	for _, p := range added {
		if p == target {
			t.Fatalf("expected no notification after Unmonitor, got AddFile(%s)", p)
		}
	}
}
