package watching

import (
	"sync"

	"github.com/wanman/gerber/internal/adminapi"
)

// snapshotState is guarded independently of the worker's internal maps so
// that the admin HTTP surface (running on its own goroutines) can read
// current watch state without synchronizing with the worker's hot path.
type snapshotState struct {
	mu    sync.RWMutex
	watch []adminapi.WatchSnapshot
}

// Snapshot implements adminapi.WatchInspector, giving the admin/status HTTP
// surface a read-only view of currently-installed watches.
func (w *Watcher) Snapshot() []adminapi.WatchSnapshot {
	w.snapshot.mu.RLock()
	defer w.snapshot.mu.RUnlock()
	return append([]adminapi.WatchSnapshot(nil), w.snapshot.watch...)
}

// refreshSnapshot recomputes the cached snapshot from the worker-owned wd
// table. Called once per worker tick, after command processing and event
// dispatch, so readers see state that is at most one tick stale.
func (w *Watcher) refreshSnapshot() {
	var views []adminapi.WatchSnapshot
	for _, node := range w.wds {
		for _, aw := range node.autoscanWatches() {
			views = append(views, adminapi.WatchSnapshot{
				Wd:           node.wd,
				Path:         node.path,
				AutoscanID:   aw.autoscanID.String(),
				IsStartPoint: aw.isStartPoint,
				Placeholder:  aw.isPlaceholder(),
			})
		}
		if len(node.autoscanWatches()) == 0 {
			views = append(views, adminapi.WatchSnapshot{Wd: node.wd, Path: node.path})
		}
	}

	w.snapshot.mu.Lock()
	w.snapshot.watch = views
	w.snapshot.mu.Unlock()
}
