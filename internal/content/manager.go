// Package content implements the ContentManager collaborator that the
// watching subsystem talks to. The watcher's calls into it must never block,
// so Manager enqueues tasks onto a bounded channel served by a small worker
// pool.
package content

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wanman/gerber/internal/autoscan"
	"github.com/wanman/gerber/internal/logging"
)

// AddOptions describes how a file should be imported.
type AddOptions struct {
	// Recursive indicates that, if path is a directory, its contents should
	// also be imported (only ever set when a directory is created under a
	// recursive autoscan).
	Recursive bool
	// Async indicates that the import may be deferred; the watcher always
	// passes true since it can never wait on ContentManager.
	Async bool
	// IncludeHidden indicates whether hidden entries should be imported when
	// Recursive is set.
	IncludeHidden bool
	// Level controls import thoroughness (see autoscan.ScanLevel).
	Level autoscan.ScanLevel
}

// Manager is the interface the watching subsystem depends on. It is kept
// deliberately narrow: exactly the operations the watcher needs to report
// filesystem activity downstream.
type Manager interface {
	// AddFile imports a newly-created or modified path.
	AddFile(path string, opts AddOptions)
	// RemoveObjectByPath removes the database object(s) located at path.
	RemoveObjectByPath(path string)
	// HandleMove renames an existing database object from fromPath to
	// toPath without a remove+add round trip.
	HandleMove(fromPath, toPath string)
	// RescanDirectory requests a full rescan of the given autoscan root,
	// used after IN_Q_OVERFLOW or start-point reappearance.
	RescanDirectory(autoscanID uuid.UUID)
}

// task is the internal unit of work submitted to the worker pool.
type task func(context.Context)

// DefaultManager is the bundled ContentManager implementation. It records
// nothing persistently on its own — a full deployment would forward these
// calls into the SQL content database and UPnP change-notification layer —
// but it does touch the autoscan.Directory's LastModified timestamp when a
// rescan of it runs. AddFile, RemoveObjectByPath and HandleMove do not
// update any timestamp.
type DefaultManager struct {
	logger *logging.Logger
	list   *autoscan.List

	tasks chan task

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewDefaultManager creates a ContentManager backed by a small worker pool.
// workers controls how many goroutines drain the task queue concurrently; if
// non-positive, a default of 4 is used.
func NewDefaultManager(logger *logging.Logger, list *autoscan.List, workers int) *DefaultManager {
	if workers < 1 {
		workers = 4
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &DefaultManager{
		logger: logger,
		list:   list,
		tasks:  make(chan task, 256),
		cancel: cancel,
	}

	m.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go m.work(ctx)
	}

	return m
}

func (m *DefaultManager) work(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-m.tasks:
			if !ok {
				return
			}
			t(ctx)
		}
	}
}

// submit enqueues a task without blocking the caller for more than the time
// it takes to push onto a buffered channel. If the queue is saturated the
// task is dropped and logged rather than blocking the watcher's worker loop.
func (m *DefaultManager) submit(t task) {
	select {
	case m.tasks <- t:
	default:
		m.logger.Warn("content task queue full, dropping task")
	}
}

// AddFile implements Manager.AddFile.
func (m *DefaultManager) AddFile(path string, opts AddOptions) {
	m.submit(func(ctx context.Context) {
		m.logger.Debugf("import %s (recursive=%t hidden=%t level=%s)", path, opts.Recursive, opts.IncludeHidden, opts.Level)
		// A full implementation would parse metadata and insert/update the
		// content database row here, honoring opts.Level for whether derived
		// metadata is recomputed.
	})
}

// RemoveObjectByPath implements Manager.RemoveObjectByPath.
func (m *DefaultManager) RemoveObjectByPath(path string) {
	m.submit(func(ctx context.Context) {
		m.logger.Debugf("remove %s", path)
	})
}

// HandleMove implements Manager.HandleMove.
func (m *DefaultManager) HandleMove(fromPath, toPath string) {
	m.submit(func(ctx context.Context) {
		m.logger.Debugf("move %s -> %s", fromPath, toPath)
	})
}

// RescanDirectory implements Manager.RescanDirectory.
func (m *DefaultManager) RescanDirectory(autoscanID uuid.UUID) {
	m.submit(func(ctx context.Context) {
		dir, ok := m.list.Get(autoscanID)
		if !ok {
			m.logger.Warnf("rescan requested for unknown autoscan %s", autoscanID)
			return
		}
		m.logger.Infof("full rescan of %s", dir.Path)
		dir.Touch(time.Now())
	})
}

// Shutdown stops the worker pool. In-flight tasks are allowed to finish;
// queued-but-unstarted tasks are abandoned.
func (m *DefaultManager) Shutdown() {
	m.cancel()
	m.wg.Wait()
}
