package watching

import "github.com/google/uuid"

// Sentinel parent-wd values.
const (
	// wdRoot marks a WatchNode as an autoscan starting point: it has no
	// watched parent by definition, regardless of whether its filesystem
	// parent happens to also be watched.
	wdRoot int32 = -1
	// wdUnknownParent marks a WatchNode whose filesystem parent is not
	// (yet) a tracked watch.
	wdUnknownParent int32 = -2
)

// watch is the tagged-union element stored on a watchNode: a small
// interface with two concrete variants rather than a class hierarchy with
// dynamic dispatch.
type watch interface {
	isWatch()
}

// autoscanWatch is one autoscan root's claim on a watchNode.
type autoscanWatch struct {
	// autoscanID identifies the owning autoscan.Directory via the registry;
	// holding an ID rather than a pointer avoids a reference cycle between
	// the registry and the watcher.
	autoscanID uuid.UUID
	// normalizedRoot is the autoscan's root after symlink/canonicalization;
	// it is this watch's identity for idempotency checks.
	normalizedRoot string
	// isStartPoint is true iff this watchNode is the root wd of this
	// autoscan (possibly a placeholder sitting above a nonexisting path).
	isStartPoint bool
	// descendants lists every wd created by recursing into this autoscan's
	// subdirectories. Only meaningful when isStartPoint is true.
	descendants map[int32]struct{}
	// nonexistingPath is non-nil and non-empty iff this watch is a
	// placeholder: the ordered path segments below this node's path that did
	// not exist when the autoscan was registered. An empty/nil slice means
	// this is a real, resolved autoscan watch.
	nonexistingPath []string
}

func (*autoscanWatch) isWatch() {}

func (w *autoscanWatch) isPlaceholder() bool {
	return len(w.nonexistingPath) > 0
}

func newAutoscanWatch(id uuid.UUID, normalizedRoot string, isStartPoint bool) *autoscanWatch {
	return &autoscanWatch{
		autoscanID:     id,
		normalizedRoot: normalizedRoot,
		isStartPoint:   isStartPoint,
	}
}

// moveWatch records that the watched directory is being tracked, within a
// short window, to decide whether a later event identifies its move target.
// removeWd is the wd the directory had under its previous path (usually
// identical to the owning node's own wd, since the directory itself didn't
// change watch descriptors — only its recorded path did).
type moveWatch struct {
	removeWd int32
}

func (*moveWatch) isWatch() {}

// watchNode is one live kernel watch descriptor.
type watchNode struct {
	wd       int32
	path     string
	parentWd int32
	watches  []watch
}

func newWatchNode(wd int32, path string, parentWd int32) *watchNode {
	return &watchNode{wd: wd, path: path, parentWd: parentWd}
}

func (n *watchNode) add(w watch) {
	n.watches = append(n.watches, w)
}

// autoscanWatches returns this node's AutoscanWatch entries, in insertion
// order.
func (n *watchNode) autoscanWatches() []*autoscanWatch {
	var result []*autoscanWatch
	for _, w := range n.watches {
		if aw, ok := w.(*autoscanWatch); ok {
			result = append(result, aw)
		}
	}
	return result
}

// moveWatches returns this node's MoveWatch entries, in insertion order.
func (n *watchNode) moveWatches() []*moveWatch {
	var result []*moveWatch
	for _, w := range n.watches {
		if mw, ok := w.(*moveWatch); ok {
			result = append(result, mw)
		}
	}
	return result
}

// findAutoscan returns the AutoscanWatch on this node with the given
// normalized root, if any. Autoscan watches are matched before move watches
// by construction: this method only ever looks at AutoscanWatch entries.
func (n *watchNode) findAutoscan(normalizedRoot string) (*autoscanWatch, bool) {
	for _, w := range n.watches {
		if aw, ok := w.(*autoscanWatch); ok && aw.normalizedRoot == normalizedRoot {
			return aw, true
		}
	}
	return nil, false
}

// removeAutoscan removes the AutoscanWatch with the given normalized root.
// It reports whether anything was removed.
func (n *watchNode) removeAutoscan(normalizedRoot string) bool {
	for i, w := range n.watches {
		if aw, ok := w.(*autoscanWatch); ok && aw.normalizedRoot == normalizedRoot {
			n.watches = append(n.watches[:i], n.watches[i+1:]...)
			return true
		}
	}
	return false
}

// removeMoveByRemoveWd removes the MoveWatch entry with the given removeWd.
// It reports whether anything was removed.
func (n *watchNode) removeMoveByRemoveWd(removeWd int32) bool {
	for i, w := range n.watches {
		if mw, ok := w.(*moveWatch); ok && mw.removeWd == removeWd {
			n.watches = append(n.watches[:i], n.watches[i+1:]...)
			return true
		}
	}
	return false
}

// empty reports whether this node carries no watches at all, meaning it is a
// candidate for destruction.
func (n *watchNode) empty() bool {
	return len(n.watches) == 0
}
