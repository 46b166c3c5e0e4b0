package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"fibermap/core-go/internal/editor"
	"fibermap/core-go/internal/geo"
	"fibermap/core-go/internal/selection"
)

// selectionRequest opens one selection. Which fields are read depends on Kind.
type selectionRequest struct {
	Kind          string           `json:"kind"`
	Scope         string           `json:"scope,omitempty"`
	LineID        string           `json:"lineId,omitempty"`
	WaypointIndex *int             `json:"waypointIndex,omitempty"`
	IconID        string           `json:"iconId,omitempty"`
	PolygonID     string           `json:"polygonId,omitempty"`
	Point         *geo.Point       `json:"point,omitempty"`
	Anchor        selection.Anchor `json:"anchor"`
}

func (h *Handler) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, ed.Selection())
}

func (h *Handler) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, ed.ClearSelection())
}

func (h *Handler) handleSetSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	kind, err := selection.ParseKind(req.Kind)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
		return
	}
	scope, err := editor.ParseScope(req.Scope)
	if err != nil {
		h.writeEditorError(w, r, err)
		return
	}
	ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}

	var st selection.State
	switch kind {
	case selection.Idle:
		st = ed.ClearSelection()
	case selection.LineSelected:
		st, err = ed.SelectLine(scope, req.LineID, req.Anchor)
	case selection.WaypointSelected:
		if req.WaypointIndex == nil {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "waypointIndex is required", nil)
			return
		}
		st, err = ed.SelectWaypoint(scope, req.LineID, *req.WaypointIndex, req.Anchor)
	case selection.SplitterPanelOpen:
		st, err = ed.OpenSplitterPanel(scope, req.IconID, req.Anchor)
	case selection.PolygonSelected:
		st, err = ed.SelectPolygon(req.PolygonID, req.Anchor)
	case selection.ContextMenuOpen:
		if req.Point == nil {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "point is required", nil)
			return
		}
		st, err = ed.OpenContextMenu(*req.Point, req.Anchor)
	}
	if err != nil {
		h.writeEditorError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleSelectionAction(w http.ResponseWriter, r *http.Request) {
	action, err := selection.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
		return
	}
	var params editor.ActionParams
	if r.ContentLength != 0 && !h.decodeBody(w, r, &params) {
		return
	}
	ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}
	res, err := ed.ApplySelectionAction(r.Context(), action, params)
	if err != nil {
		h.writeEditorError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}
