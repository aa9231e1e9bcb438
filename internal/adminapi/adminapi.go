// Package adminapi exposes a minimal read-only HTTP surface for inspecting
// autoscan and watch state. Routed with chi, a small, composable router
// layered over net/http's bare ServeMux.
package adminapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wanman/gerber/internal/autoscan"
)

// WatchSnapshot is a read-only view of one currently-installed kernel watch,
// as reported by the watcher.
type WatchSnapshot struct {
	Wd           int32  `json:"wd"`
	Path         string `json:"path"`
	AutoscanID   string `json:"autoscanId,omitempty"`
	IsStartPoint bool   `json:"isStartPoint,omitempty"`
	Placeholder  bool   `json:"placeholder,omitempty"`
}

// WatchInspector is implemented by the watcher to report its current state
// without exposing its internal types.
type WatchInspector interface {
	Snapshot() []WatchSnapshot
}

// autoscanView is the JSON shape returned for one autoscan directory.
type autoscanView struct {
	ID           string `json:"id"`
	Path         string `json:"path"`
	Recursive    bool   `json:"recursive"`
	ScanLevel    string `json:"scanLevel"`
	Persistent   bool   `json:"persistent"`
	LastModified string `json:"lastModified"`
}

// NewRouter builds the admin HTTP handler. list is read live on every
// request; watches may be nil if the caller doesn't want to expose watch
// internals.
func NewRouter(list *autoscan.List, watches WatchInspector) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/status/autoscans", func(w http.ResponseWriter, r *http.Request) {
		dirs := list.All()
		views := make([]autoscanView, 0, len(dirs))
		for _, d := range dirs {
			views = append(views, autoscanView{
				ID:           d.ID.String(),
				Path:         d.Path,
				Recursive:    d.Recursive,
				ScanLevel:    d.ScanLevel.String(),
				Persistent:   d.Persistent,
				LastModified: d.LastModified().Format(time.RFC3339),
			})
		}
		writeJSON(w, views)
	})

	r.Get("/status/watches", func(w http.ResponseWriter, r *http.Request) {
		if watches == nil {
			writeJSON(w, []WatchSnapshot{})
			return
		}
		writeJSON(w, watches.Snapshot())
	})

	return r
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
