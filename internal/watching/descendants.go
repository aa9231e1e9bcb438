package watching

import "github.com/wanman/gerber/internal/autoscan"

// addDescendant records childWd as a descendant of the start-point watch
// identified by startWd, for the given autoscan.
func (w *Watcher) addDescendant(startWd int32, childWd int32, dir *autoscan.Directory) {
	node, ok := w.wds[startWd]
	if !ok {
		return
	}
	aw, ok := node.findAutoscan(normalizePath(dir.Path))
	if !ok || !aw.isStartPoint {
		return
	}
	if aw.descendants == nil {
		aw.descendants = make(map[int32]struct{})
	}
	aw.descendants[childWd] = struct{}{}
}

// removeDescendants releases every wd recorded as a descendant of the
// start-point watch at startWd, destroying any node left empty as a result.
// This is called whenever a start point is unmonitored or its root vanishes.
func (w *Watcher) removeDescendants(startWd int32) {
	node, ok := w.wds[startWd]
	if !ok {
		return
	}
	for _, aw := range node.autoscanWatches() {
		if !aw.isStartPoint || len(aw.descendants) == 0 {
			continue
		}
		for childWd := range aw.descendants {
			childNode, ok := w.wds[childWd]
			if !ok {
				continue
			}
			childNode.removeAutoscan(aw.normalizedRoot)
			if childNode.empty() {
				w.destroyNode(childNode)
			}
		}
		aw.descendants = nil
	}
}

// destroyNode removes the kernel watch for node, if still live, and forgets
// it from every bookkeeping structure.
func (w *Watcher) destroyNode(node *watchNode) {
	if w.inotify != nil {
		if err := w.inotify.rmWatch(node.wd); err != nil {
			w.logger.Debugf("rm_watch(%d) for %s: %v", node.wd, node.path, err)
		}
	}
	w.forgetNode(node.wd)
}

// forgetNode erases wd from the WD table and purges it from every start
// point's descendant set. It is the single place responsible for ensuring no
// wd is left dangling in any bookkeeping structure: both intentional
// destruction (destroyNode) and kernel-driven removal (IN_IGNORED, or the
// DELETE_SELF/MOVE_SELF/UNMOUNT handlers) route through here.
func (w *Watcher) forgetNode(wd int32) {
	delete(w.wds, wd)
	w.purgeDescendantEverywhere(wd)
	for id, startWd := range w.startPoints {
		if startWd == wd {
			delete(w.startPoints, id)
		}
	}
}

// purgeDescendantEverywhere removes wd from every start point's descendants
// set. A watchNode carries no back-pointer to the start points that consider
// it a descendant, so this is a linear scan over the (expected to be small)
// set of currently-active start points — acceptable given realistic autoscan
// counts.
func (w *Watcher) purgeDescendantEverywhere(wd int32) {
	for _, startWd := range w.startPoints {
		node, ok := w.wds[startWd]
		if !ok {
			continue
		}
		for _, aw := range node.autoscanWatches() {
			if aw.descendants != nil {
				delete(aw.descendants, wd)
			}
		}
	}
}
