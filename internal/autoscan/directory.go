// Package autoscan defines the user-declared autoscan roots that the
// watching subsystem keeps synchronized with the content database, and the
// in-memory registry of those roots.
package autoscan

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ScanLevel controls how thoroughly an import is performed for a directory
// covered by an autoscan. It is carried through from storage to the content
// pipeline; the watcher itself is indifferent to its value and only
// forwards it.
type ScanLevel int

const (
	// ScanLevelBasic imports new and changed files without recomputing
	// derived metadata for files that already exist in the database.
	ScanLevelBasic ScanLevel = iota
	// ScanLevelFull forces a metadata refresh even for files that look
	// unchanged, e.g. after a CLOSE_WRITE that may not have altered content.
	ScanLevelFull
)

func (l ScanLevel) String() string {
	if l == ScanLevelFull {
		return "full"
	}
	return "basic"
}

// Directory is the user's declared autoscan root. Its identity for the
// purposes of the watcher is its normalized path, not its ID: two Directory
// values with the same path are the same autoscan as far as the watcher is
// concerned.
type Directory struct {
	// ID is an opaque identifier, stable across restarts for persistent
	// autoscans, assigned by Storage.
	ID uuid.UUID
	// Path is the absolute autoscan root as configured by the user. It may
	// not exist on disk at any given moment.
	Path string
	// Recursive indicates whether subdirectories should also be monitored.
	Recursive bool
	// ScanLevel controls import thoroughness; see ScanLevel.
	ScanLevel ScanLevel
	// Persistent indicates whether this autoscan survives a restart (i.e.
	// whether it is reloaded from Storage at startup).
	Persistent bool

	mu           sync.Mutex
	lastModified time.Time
}

// LastModified returns the time last recorded by Touch: the stored value
// loaded from Storage, or the time of the latest rescan. Adds, removes and
// moves do not change it.
func (d *Directory) LastModified() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastModified
}

// Touch updates LastModified to the given time. Called by the content
// pipeline when it runs a rescan of this autoscan, and by Storage when
// loading the stored timestamp.
func (d *Directory) Touch(at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastModified = at
}

func (d *Directory) String() string {
	return fmt.Sprintf("autoscan(%s, path=%s, recursive=%t, level=%s)", d.ID, d.Path, d.Recursive, d.ScanLevel)
}
