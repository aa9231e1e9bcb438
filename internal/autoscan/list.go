package autoscan

import (
	"sync"

	"github.com/google/uuid"
)

// List is the registry of currently-declared autoscan directories. The
// watcher holds a reference to one List and only reads it (Get, All). Add
// and Remove change the registry alone; they do not call
// Watcher.Monitor/Unmonitor.
type List struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]*Directory
}

// NewList creates an empty autoscan registry.
func NewList() *List {
	return &List{byID: make(map[uuid.UUID]*Directory)}
}

// Add registers a new autoscan directory.
func (l *List) Add(d *Directory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byID[d.ID] = d
}

// Remove unregisters an autoscan directory by ID.
func (l *List) Remove(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byID, id)
}

// Get returns the autoscan directory with the given ID, if any.
func (l *List) Get(id uuid.UUID) (*Directory, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.byID[id]
	return d, ok
}

// All returns a snapshot slice of every registered autoscan directory.
func (l *List) All() []*Directory {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make([]*Directory, 0, len(l.byID))
	for _, d := range l.byID {
		result = append(result, d)
	}
	return result
}
