package watching

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/wanman/gerber/internal/autoscan"
)

// normalizePath canonicalizes a path for use as an AutoscanWatch identity
// key. Symlinks are intentionally not resolved here — that would require the
// path to exist, and this must also work for nonexisting placeholder roots —
// so normalization is purely lexical.
func normalizePath(path string) string {
	return filepath.Clean(path)
}

// isDirectory reports whether path currently names a directory. Symlinks are
// followed only when the watcher is configured to follow them.
func (w *Watcher) isDirectory(path string) bool {
	var info os.FileInfo
	var err error
	if w.config.FollowSymlinks {
		info, err = os.Stat(path)
	} else {
		info, err = os.Lstat(path)
	}
	if err != nil {
		return false
	}
	return info.IsDir()
}

// listSubdirectories returns the immediate subdirectories of path, honoring
// the hidden-file and symlink-following configuration.
func (w *Watcher) listSubdirectories(path string) []string {
	entries, err := os.ReadDir(path)
	if err != nil {
		w.logger.Debugf("unable to list %s: %v", path, err)
		return nil
	}

	var dirs []string
	for _, entry := range entries {
		name := entry.Name()
		if !w.config.ImportHiddenFiles && strings.HasPrefix(name, ".") {
			continue
		}

		child := filepath.Join(path, name)
		isDir := entry.IsDir()
		if entry.Type()&os.ModeSymlink != 0 {
			if !w.config.FollowSymlinks {
				continue
			}
			isDir = w.isDirectory(child)
		}
		if isDir {
			dirs = append(dirs, child)
		}
	}
	return dirs
}

// findNodeByPath performs a linear scan over the tracked watches: watchNode
// does not index by path, so a handful of operations (move pairing,
// unmonitor) must search for it. This is acceptable given realistic
// watch-tree sizes.
func (w *Watcher) findNodeByPath(path string) (*watchNode, bool) {
	normalized := normalizePath(path)
	for _, node := range w.wds {
		if normalizePath(node.path) == normalized {
			return node, true
		}
	}
	return nil, false
}

// monitorUnmonitorRecursive installs or removes a watch at path, and, when
// dir.Recursive is set, recurses into every existing subdirectory doing the
// same.
func (w *Watcher) monitorUnmonitorRecursive(path string, unmonitor bool, dir *autoscan.Directory, normalizedRoot string, isStartPoint bool) {
	if unmonitor {
		w.unmonitorDirectory(path, normalizedRoot)
		if dir.Recursive {
			for _, child := range w.listSubdirectories(path) {
				w.monitorUnmonitorRecursive(child, true, dir, normalizedRoot, false)
			}
		}
		return
	}

	wd, ok := w.monitorDirectory(path, dir, normalizedRoot, isStartPoint)
	if !ok {
		return
	}
	if !isStartPoint {
		if startWd, found := w.startPoints[dir.ID]; found {
			w.addDescendant(startWd, wd, dir)
		}
	}
	if dir.Recursive {
		for _, child := range w.listSubdirectories(path) {
			w.monitorUnmonitorRecursive(child, false, dir, normalizedRoot, false)
		}
	}
}

// monitorDirectory installs a watch at path, which must currently exist,
// unless this is a start point whose path may legitimately be missing.
func (w *Watcher) monitorDirectory(path string, dir *autoscan.Directory, normalizedRoot string, isStartPoint bool) (int32, bool) {
	if !w.isDirectory(path) {
		if isStartPoint {
			w.monitorNonexisting(path, dir, normalizedRoot)
		}
		return -1, false
	}
	return w.installAutoscanWatch(path, dir, normalizedRoot, isStartPoint, nil)
}

// installAutoscanWatch installs (or attaches to an existing) kernel watch at
// path and attaches an AutoscanWatch entry to it. nonexistingPath is nil for
// a normal resolved install, or the non-empty ordered list of still-missing
// segments when path is the deepest existing ancestor of a placeholder root
// (on first registration, or after a promotion that resolved only part of
// the path).
func (w *Watcher) installAutoscanWatch(path string, dir *autoscan.Directory, normalizedRoot string, isStartPoint bool, nonexistingPath []string) (int32, bool) {
	wd, err := w.inotify.addWatch(path)
	if err != nil {
		w.handleAddWatchError(err, path, dir, normalizedRoot, isStartPoint)
		return -1, false
	}

	node, existing := w.wds[wd]
	if !existing {
		var parentWd int32 = wdUnknownParent
		if isStartPoint {
			parentWd = wdRoot
		} else if parent, ok := w.findNodeByPath(filepath.Dir(path)); ok {
			parentWd = parent.wd
		}
		node = newWatchNode(wd, path, parentWd)
		w.wds[wd] = node
	} else {
		node.path = path
	}

	if aw, found := node.findAutoscan(normalizedRoot); found {
		aw.nonexistingPath = nonexistingPath
		aw.isStartPoint = isStartPoint
	} else {
		aw := newAutoscanWatch(dir.ID, normalizedRoot, isStartPoint)
		aw.nonexistingPath = nonexistingPath
		node.add(aw)
	}

	if isStartPoint {
		w.startPoints[dir.ID] = wd
	}

	return wd, true
}

// handleAddWatchError classifies a failed inotify_add_watch call. ENOENT
// means path vanished between the existence check and the call itself: for
// a start point this is not a permanent loss of the autoscan, so it is
// re-armed as a nonexisting placeholder exactly as if the directory had
// never existed; for any other path it is absorbed, since the owning
// directory's own DELETE event will clean up its bookkeeping. EACCES is
// similarly absorbed — the directory exists but can't be watched, which is
// an ordinary permissions fact rather than a bug. ENOSPC means the host's
// inotify watch limit has been hit, which is unusual enough to surface
// above debug level. Anything else is logged as an unexpected error.
func (w *Watcher) handleAddWatchError(err error, path string, dir *autoscan.Directory, normalizedRoot string, isStartPoint bool) {
	switch {
	case errors.Is(err, unix.ENOENT):
		w.logger.Debugf("add_watch(%s): %v", path, err)
		if isStartPoint {
			w.monitorNonexisting(path, dir, normalizedRoot)
		}
	case errors.Is(err, unix.EACCES):
		w.logger.Debugf("add_watch(%s): %v", path, err)
	case errors.Is(err, unix.ENOSPC):
		w.logger.Warnf("add_watch(%s): inotify watch limit reached: %v", path, err)
	default:
		w.logger.Error(err)
	}
}

// unmonitorDirectory removes the AutoscanWatch matching normalizedRoot from
// the node at path, destroying the node if it carries nothing else.
func (w *Watcher) unmonitorDirectory(path string, normalizedRoot string) {
	node, ok := w.findNodeByPath(path)
	if !ok {
		return
	}
	if aw, found := node.findAutoscan(normalizedRoot); found && aw.isStartPoint {
		w.removeDescendants(node.wd)
	}
	node.removeAutoscan(normalizedRoot)
	if node.empty() {
		w.destroyNode(node)
	}
}
