package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"fibermap/core-go/internal/editor"
	"fibermap/core-go/internal/topology"
)

// editorFor resolves the {ws} workspace, writing the error response itself.
func (h *Handler) editorFor(w http.ResponseWriter, r *http.Request) (*editor.Editor, bool) {
	if h.workspaces == nil {
		h.writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "storage not configured", nil)
		return nil, false
	}
	ed, err := h.workspaces.Get(r.Context(), chi.URLParam(r, "ws"))
	if err != nil {
		h.writeEditorError(w, r, err)
		return nil, false
	}
	return ed, true
}

// scopeOf reads the scope query parameter, defaulting to working.
func (h *Handler) scopeOf(w http.ResponseWriter, r *http.Request) (editor.Scope, bool) {
	scope, err := editor.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		h.writeEditorError(w, r, err)
		return "", false
	}
	return scope, true
}

func (h *Handler) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	if h.workspaces == nil {
		h.writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "storage not configured", nil)
		return
	}
	ids, err := h.workspaces.Known(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list workspaces failed")
		h.writeError(w, http.StatusInternalServerError, "storage_error", "failed to list workspaces", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"workspaces": ids})
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, ed.Snapshot())
}

type flagsUpdate struct {
	ShowSavedRoutes       *bool `json:"showSavedRoutes,omitempty"`
	IsSavedRoutesEditable *bool `json:"isSavedRoutesEditable,omitempty"`
}

func (h *Handler) handleSetFlags(w http.ResponseWriter, r *http.Request) {
	var req flagsUpdate
	if !h.decodeBody(w, r, &req) {
		return
	}
	ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, ed.SetFlags(req.ShowSavedRoutes, req.IsSavedRoutesEditable))
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}
	res, err := ed.Save(r.Context())
	if err != nil {
		h.writeEditorError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scopeOf(w, r)
	if !ok {
		return
	}
	ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}
	var types []topology.IconType
	if raw := strings.TrimSpace(r.URL.Query().Get("types")); raw != "" {
		parts := strings.Split(raw, ",")
		for _, p := range parts {
			if strings.TrimSpace(p) == "" {
				continue
			}
			if _, ok := topology.ParseIconType(p); !ok {
				h.writeError(w, http.StatusBadRequest, "validation_failed", "unknown icon type", map[string]any{"type": strings.TrimSpace(p)})
				return
			}
		}
		types = topology.NormalizeIconTypes(parts)
	}
	body, err := ed.ExportGeoJSON(scope, types)
	if err != nil {
		h.writeEditorError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if h.opts.Hub == nil {
		h.writeError(w, http.StatusServiceUnavailable, "events_unavailable", "live events not configured", nil)
		return
	}
	if _, ok := h.editorFor(w, r); !ok {
		return
	}
	h.opts.Hub.ServeWS(w, r, chi.URLParam(r, "ws"))
}
