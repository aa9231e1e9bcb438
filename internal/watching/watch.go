package watching

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/wanman/gerber/internal/autoscan"
	"github.com/wanman/gerber/internal/content"
	"github.com/wanman/gerber/internal/logging"
)

// pollTimeout is how long the worker blocks on a single inotify read before
// looping back to drain the command queues again.
const pollTimeout = time.Second

// cookiePairingBound caps how many distinct MOVED_FROM cookies a single
// drain cycle will track before evicting the oldest, defending against a
// pathological burst of renames landing in one inotify read.
const cookiePairingBound = 256

// Config carries the configuration knobs the watcher consults.
type Config struct {
	// ImportHiddenFiles mirrors importHiddenFiles: if false, hidden entries
	// are filtered during recursive descent. It is also forwarded to AddFile
	// as IncludeHidden. Kernel events about hidden entries are not filtered.
	ImportHiddenFiles bool
	// FollowSymlinks mirrors followSymlinks: if false, directory symlinks
	// are never watched.
	FollowSymlinks bool
}

// Watcher keeps a set of autoscan directories synchronized with the
// filesystem via inotify. One Watcher owns a single inotify instance and a
// single worker goroutine; all of its internal state (wds, startPoints) is
// touched only from that goroutine. External callers interact exclusively
// through Monitor/Unmonitor/Shutdown, which post commands across the
// mutex-guarded queues.
type Watcher struct {
	logger  *logging.Logger
	content content.Manager
	list    *autoscan.List
	config  Config

	mu             sync.Mutex
	monitorQueue   []*autoscan.Directory
	unmonitorQueue []*autoscan.Directory
	shutdownFlag   bool

	inotify *inotifyFD
	done    chan struct{}

	// wds and startPoints are owned exclusively by the worker goroutine.
	wds         map[int32]*watchNode
	startPoints map[uuid.UUID]int32

	snapshot snapshotState
}

// New creates a Watcher. Call Init to start its worker goroutine.
func New(logger *logging.Logger, manager content.Manager, list *autoscan.List, config Config) *Watcher {
	if logger == nil {
		logger = logging.RootLogger.Sublogger("watching")
	}
	return &Watcher{
		logger:      logger,
		content:     manager,
		list:        list,
		config:      config,
		wds:         make(map[int32]*watchNode),
		startPoints: make(map[uuid.UUID]int32),
	}
}

// Init creates the underlying inotify instance and starts the worker
// goroutine. A failure here is fatal to watching: the caller may choose to
// run without live updates.
func (w *Watcher) Init() error {
	fd, err := newInotifyFD()
	if err != nil {
		return fmt.Errorf("unable to create inotify instance: %w", err)
	}
	w.inotify = fd
	w.done = make(chan struct{})
	go w.run()
	return nil
}

// Shutdown requests termination of the worker goroutine and waits for it to
// exit. Outstanding watches are not individually removed; closing the
// inotify fd releases them all at once. In-flight content notifications are
// not recalled.
func (w *Watcher) Shutdown() {
	w.mu.Lock()
	w.shutdownFlag = true
	w.mu.Unlock()
	<-w.done
}

// Monitor requests that dir be watched. It returns immediately; the watch is
// installed asynchronously by the worker, possibly after a short delay
// bounded by pollTimeout.
func (w *Watcher) Monitor(dir *autoscan.Directory) {
	w.mu.Lock()
	w.monitorQueue = append(w.monitorQueue, dir)
	w.mu.Unlock()
}

// Unmonitor requests that dir stop being watched. It returns immediately.
func (w *Watcher) Unmonitor(dir *autoscan.Directory) {
	w.mu.Lock()
	w.unmonitorQueue = append(w.unmonitorQueue, dir)
	w.mu.Unlock()
}

// run is the worker loop: one cycle drains the command queues, processes
// them (monitor before unmonitor), reads the inotify fd with a short
// timeout, and dispatches whatever events came back. It never blocks on
// anything but the inotify read itself; commands posted while the worker is
// mid-read simply wait for the next tick.
func (w *Watcher) run() {
	defer close(w.done)
	defer w.inotify.close()

	for {
		w.mu.Lock()
		monitorBatch := w.monitorQueue
		w.monitorQueue = nil
		unmonitorBatch := w.unmonitorQueue
		w.unmonitorQueue = nil
		shutdown := w.shutdownFlag
		w.mu.Unlock()

		for _, dir := range monitorBatch {
			w.handleMonitorCommand(dir)
		}
		for _, dir := range unmonitorBatch {
			w.handleUnmonitorCommand(dir)
		}

		events, err := w.inotify.read(pollTimeout)
		if err != nil {
			w.logger.Error(fmt.Errorf("inotify read failed: %w", err))
		} else if len(events) > 0 {
			w.dispatchBatch(events)
		}

		w.refreshSnapshot()

		if shutdown {
			return
		}
	}
}

func (w *Watcher) handleMonitorCommand(dir *autoscan.Directory) {
	if _, already := w.startPoints[dir.ID]; already {
		return // monitor on an already-monitored autoscan is a no-op.
	}
	normalizedRoot := normalizePath(dir.Path)
	w.monitorUnmonitorRecursive(dir.Path, false, dir, normalizedRoot, true)
}

func (w *Watcher) handleUnmonitorCommand(dir *autoscan.Directory) {
	normalizedRoot := normalizePath(dir.Path)
	w.monitorUnmonitorRecursive(dir.Path, true, dir, normalizedRoot, true)
	delete(w.startPoints, dir.ID)
}

// pendingMove is the value stored in the per-drain-cycle cookie map.
type pendingMove struct {
	path string
	// wd is the watch descriptor of the moved directory's own watchNode, or
	// -1 if the moved entry wasn't itself a watched directory.
	wd int32
}

// dispatchBatch processes every event returned by a single inotify read.
// Move pairing by cookie is scoped to this one batch only; anything left
// unpaired once the batch is fully processed is degraded to a delete.
func (w *Watcher) dispatchBatch(events []rawEvent) {
	for _, e := range events {
		if e.Mask&unix.IN_Q_OVERFLOW != 0 {
			w.handleOverflow()
			return
		}
	}

	pending := lru.New(cookiePairingBound)
	var degraded []pendingMove
	// OnEvicted also fires on an explicit Remove (pairing in handleMovedTo,
	// the sweep below), so only evictions made while a MOVED_FROM is being
	// added past the bound are degraded here.
	var addingMovedFrom bool
	pending.OnEvicted = func(_ lru.Key, value interface{}) {
		if addingMovedFrom {
			degraded = append(degraded, value.(pendingMove))
		}
	}

	var cookiesSeen []uint32
	for _, e := range events {
		addingMovedFrom = e.is(unix.IN_MOVED_FROM)
		w.dispatchOne(e, pending, &cookiesSeen)
	}
	addingMovedFrom = false

	for _, cookie := range cookiesSeen {
		if v, ok := pending.Get(lru.Key(cookie)); ok {
			pending.Remove(lru.Key(cookie))
			degraded = append(degraded, v.(pendingMove))
		}
	}

	for _, pm := range degraded {
		w.logger.Debugf("move cookie unpaired within drain cycle, degrading to delete: %s", pm.path)
		w.content.RemoveObjectByPath(pm.path)
	}
}

// handleOverflow handles a kernel-reported queue overflow: the event stream
// can no longer be trusted, so every registered autoscan root is rescanned
// from scratch and dispatchBatch discards every event of this batch.
func (w *Watcher) handleOverflow() {
	w.logger.Warn("inotify event queue overflowed, rescanning all autoscans")
	for _, dir := range w.list.All() {
		w.content.RescanDirectory(dir.ID)
	}
}

// dispatchOne dispatches a single kernel event against the WD table.
func (w *Watcher) dispatchOne(e rawEvent, pending *lru.Cache, cookiesSeen *[]uint32) {
	w.logger.Tracef("inotify event wd=%d mask=%#x cookie=%d name=%q", e.Wd, e.Mask, e.Cookie, e.Name)
	node, ok := w.wds[e.Wd]
	if !ok {
		return // discard: no tracked watch for this wd (already removed).
	}

	if e.is(unix.IN_IGNORED) {
		w.forgetNode(e.Wd)
		return
	}

	childPath := node.path
	if e.Name != "" {
		childPath = filepath.Join(node.path, e.Name)
	}

	if e.is(unix.IN_UNMOUNT) || e.is(unix.IN_DELETE_SELF) || e.is(unix.IN_MOVE_SELF) {
		w.handleSelfRemoval(node)
		return
	}

	if e.is(unix.IN_MOVED_FROM) {
		w.handleMovedFrom(e, node, childPath, pending, cookiesSeen)
		return
	}

	if e.is(unix.IN_MOVED_TO) {
		w.handleMovedTo(e, node, childPath, pending)
		return
	}

	if e.is(unix.IN_CREATE) {
		w.handleCreate(node, childPath, e.isDir())
		if e.isDir() {
			w.recheckNonexistingMonitors(node, e.Name)
		}
		return
	}

	if e.is(unix.IN_CLOSE_WRITE) {
		w.notifyAddForEachAutoscan(node, childPath)
		return
	}

	if e.is(unix.IN_DELETE) {
		w.content.RemoveObjectByPath(childPath)
		return
	}
}

func (w *Watcher) handleMovedFrom(e rawEvent, node *watchNode, childPath string, pending *lru.Cache, cookiesSeen *[]uint32) {
	var wd int32 = -1
	if e.isDir() {
		if moved, ok := w.findNodeByPath(childPath); ok {
			moved.add(&moveWatch{removeWd: moved.wd})
			wd = moved.wd
		}
	}
	pending.Add(lru.Key(e.Cookie), pendingMove{path: childPath, wd: wd})
	*cookiesSeen = append(*cookiesSeen, e.Cookie)
}

func (w *Watcher) handleMovedTo(e rawEvent, node *watchNode, childPath string, pending *lru.Cache) {
	if v, found := pending.Get(lru.Key(e.Cookie)); found {
		pending.Remove(lru.Key(e.Cookie))
		pm := v.(pendingMove)
		w.content.HandleMove(pm.path, childPath)
		if pm.wd >= 0 {
			if movedNode, ok := w.wds[pm.wd]; ok {
				// inotify never reports the new path of a watched
				// directory directly; this is the only chance to refresh
				// its tracked path.
				movedNode.path = childPath
				movedNode.removeMoveByRemoveWd(pm.wd)
			}
		}
	} else {
		w.handleCreate(node, childPath, e.isDir())
	}
	w.recheckNonexistingMonitors(node, e.Name)
}

func (w *Watcher) handleCreate(node *watchNode, childPath string, isDir bool) {
	if isDir {
		for _, aw := range node.autoscanWatches() {
			if aw.isPlaceholder() {
				continue
			}
			dir, ok := w.list.Get(aw.autoscanID)
			if !ok || !dir.Recursive {
				continue
			}
			w.monitorUnmonitorRecursive(childPath, false, dir, aw.normalizedRoot, false)
		}
		return
	}
	w.notifyAddForEachAutoscan(node, childPath)
}

func (w *Watcher) notifyAddForEachAutoscan(node *watchNode, path string) {
	for _, aw := range node.autoscanWatches() {
		if aw.isPlaceholder() {
			continue
		}
		dir, ok := w.list.Get(aw.autoscanID)
		if !ok {
			continue
		}
		w.content.AddFile(path, content.AddOptions{
			Recursive:     false,
			Async:         true,
			IncludeHidden: w.config.ImportHiddenFiles,
			Level:         dir.ScanLevel,
		})
	}
}

// handleSelfRemoval handles DELETE_SELF/MOVE_SELF/UNMOUNT: the WatchNode is
// removed, and any start-point watches on it are remonitored as
// nonexisting, since the autoscan root just disappeared out from under us.
func (w *Watcher) handleSelfRemoval(node *watchNode) {
	type restart struct {
		dir            *autoscan.Directory
		normalizedRoot string
	}
	var restarts []restart
	for _, aw := range node.autoscanWatches() {
		if !aw.isStartPoint {
			continue
		}
		if dir, ok := w.list.Get(aw.autoscanID); ok {
			restarts = append(restarts, restart{dir, aw.normalizedRoot})
		}
		w.removeDescendants(node.wd)
	}
	w.forgetNode(node.wd)
	for _, r := range restarts {
		w.monitorNonexisting(r.dir.Path, r.dir, r.normalizedRoot)
	}
}
