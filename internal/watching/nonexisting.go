package watching

import (
	"path/filepath"

	"github.com/wanman/gerber/internal/autoscan"
)

// deepestExistingAncestor walks up from path until it finds a directory that
// currently exists, returning that ancestor along with the ordered path
// segments below it that are still missing. If path itself exists, the
// returned segment slice is empty.
func (w *Watcher) deepestExistingAncestor(path string) (ancestor string, missing []string) {
	clean := filepath.Clean(path)
	if w.isDirectory(clean) {
		return clean, nil
	}

	var segments []string
	current := clean
	for {
		parent := filepath.Dir(current)
		if parent == current {
			// Reached the filesystem root without finding anything that
			// exists; treat the root itself as the ancestor.
			segments = append(segments, filepath.Base(current))
			reverse(segments)
			return parent, segments
		}
		segments = append(segments, filepath.Base(current))
		if w.isDirectory(parent) {
			reverse(segments)
			return parent, segments
		}
		current = parent
	}
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// descendExisting walks forward from base through segments for as long as
// each successive joined path still exists, returning the furthest point
// reached and whatever segments remain unresolved. An empty remaining slice
// means every segment now exists.
func (w *Watcher) descendExisting(base string, segments []string) (furthest string, remaining []string) {
	current := base
	for i, seg := range segments {
		next := filepath.Join(current, seg)
		if !w.isDirectory(next) {
			return current, segments[i:]
		}
		current = next
	}
	return current, nil
}

// monitorNonexisting installs a placeholder watch on the deepest existing
// ancestor of path, to be promoted later as intervening directories are
// created.
func (w *Watcher) monitorNonexisting(path string, dir *autoscan.Directory, normalizedRoot string) {
	ancestor, missing := w.deepestExistingAncestor(path)
	if len(missing) == 0 {
		// Raced with directory creation between the existence check in
		// monitorDirectory and here; just install for real.
		w.monitorUnmonitorRecursive(path, false, dir, normalizedRoot, true)
		return
	}
	w.installAutoscanWatch(ancestor, dir, normalizedRoot, true, missing)
}

// recheckNonexistingMonitors is called whenever a directory named childName
// is created directly under parent. Any placeholder AutoscanWatch on parent
// whose next expected segment is childName is advanced: either fully
// resolved (the whole remaining path now exists, so the real recursive watch
// is installed) or partially resolved (the placeholder moves down to the new
// directory with a shorter remaining segment list).
func (w *Watcher) recheckNonexistingMonitors(parent *watchNode, childName string) {
	if childName == "" {
		return
	}

	var resolved []*autoscanWatch
	for _, aw := range parent.autoscanWatches() {
		if !aw.isPlaceholder() {
			continue
		}
		if aw.nonexistingPath[0] != childName {
			continue
		}
		resolved = append(resolved, aw)
	}

	for _, aw := range resolved {
		dir, ok := w.list.Get(aw.autoscanID)
		if !ok {
			parent.removeAutoscan(aw.normalizedRoot)
			continue
		}

		child := filepath.Join(parent.path, childName)
		furthest, remaining := w.descendExisting(child, aw.nonexistingPath[1:])

		parent.removeAutoscan(aw.normalizedRoot)
		if parent.empty() {
			w.destroyNode(parent)
		}

		if len(remaining) == 0 {
			w.monitorUnmonitorRecursive(furthest, false, dir, aw.normalizedRoot, true)
			w.content.RescanDirectory(dir.ID)
		} else {
			w.installAutoscanWatch(furthest, dir, aw.normalizedRoot, true, remaining)
		}
	}
}
