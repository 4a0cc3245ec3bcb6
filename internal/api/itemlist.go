package api

import (
	"net/http"
	"strings"
)

// forceRefresh reports whether the forceRefresh query value asks for a
// fresh listing.
func forceRefresh(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "yes", "true":
		return true
	}
	return false
}

// handleItemList returns the item listing of a controller exactly as
// openHAB sent it. An unknown controller or a listing that could not be
// fetched answers 404.
func (s *Server) handleItemList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("controllerID")

	ctrl, ok := s.bridge.Controller(name)
	if !ok {
		writeNotFound(w, "unknown controller")
		return
	}

	snap, err := ctrl.Directory().Get(r.Context(), forceRefresh(q.Get("forceRefresh")))
	if err != nil || snap == nil {
		s.logger.Debug("item list unavailable", "controller", name, "error", err)
		writeNotFound(w, "item list unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(snap.Raw)
}
