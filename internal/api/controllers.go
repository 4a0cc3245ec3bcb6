package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/openhab-bridge/internal/flow"
	"github.com/nerrad567/openhab-bridge/internal/nodes"
	"github.com/nerrad567/openhab-bridge/internal/openhab"
)

// ControllerView is a controller status with its cached item count.
// Items is -1 while the listing is unknown.
type ControllerView struct {
	openhab.Status
	Items int `json:"items"`
}

func controllerView(c *openhab.Controller) ControllerView {
	v := ControllerView{Status: c.Status(), Items: -1}
	if snap := c.Directory().Cached(); snap != nil {
		v.Items = len(snap.Items)
	}
	return v
}

func (s *Server) handleListControllers(w http.ResponseWriter, _ *http.Request) {
	ctrls := s.bridge.Controllers()
	out := make([]ControllerView, 0, len(ctrls))
	for _, c := range ctrls {
		out = append(out, controllerView(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"controllers": out})
}

func (s *Server) handleGetController(w http.ResponseWriter, r *http.Request) {
	c, ok := s.bridge.Controller(chi.URLParam(r, "name"))
	if !ok {
		writeNotFound(w, "controller not found")
		return
	}
	writeJSON(w, http.StatusOK, controllerView(c))
}

func (s *Server) handleListNodes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"nodes": s.bridge.Nodes()})
}

// handleNodeInput injects the JSON body into a node as a message.
func (s *Server) handleNodeInput(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	msg := nodes.NewMessage()
	for k, v := range body {
		msg[k] = v
	}

	id := chi.URLParam(r, "id")
	if err := s.bridge.Inject(id, msg); err != nil {
		switch {
		case errors.Is(err, flow.ErrUnknownNode):
			writeNotFound(w, "node not found")
		case errors.Is(err, flow.ErrStopped):
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "bridge is stopping")
		default:
			writeInternalError(w, "failed to inject message")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"_msgid": msg.ID()})
}
