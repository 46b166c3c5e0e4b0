package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fibermap/core-go/internal/editor"
	"fibermap/core-go/internal/geo"
	"fibermap/core-go/internal/topology"
)

type lineCreate struct {
	From geo.Point  `json:"from"`
	To   *geo.Point `json:"to,omitempty"`
}

type waypointInsert struct {
	At    *geo.Point `json:"at,omitempty"`
	Index *int       `json:"index,omitempty"`
}

type iconCreate struct {
	Type     string    `json:"type"`
	Position geo.Point `json:"position"`
	Name     string    `json:"name,omitempty"`
	ImageURL string    `json:"imageUrl,omitempty"`
}

type waypointIconCreate struct {
	Type     string `json:"type"`
	Name     string `json:"name,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

type ratioUpdate struct {
	Ratio string `json:"ratio"`
}

type polygonRename struct {
	Name string `json:"name"`
}

type polygonLock struct {
	Locked bool `json:"locked"`
}

// indexParam parses a non-negative integer URL parameter.
func (h *Handler) indexParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := chi.URLParam(r, name)
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid "+name, map[string]any{name: raw})
		return 0, false
	}
	return n, true
}

// scopedEditor resolves both the scope parameter and the workspace editor.
func (h *Handler) scopedEditor(w http.ResponseWriter, r *http.Request) (*editor.Editor, editor.Scope, bool) {
	scope, ok := h.scopeOf(w, r)
	if !ok {
		return nil, "", false
	}
	ed, ok := h.editorFor(w, r)
	if !ok {
		return nil, "", false
	}
	return ed, scope, true
}

func (h *Handler) handleCreateLine(w http.ResponseWriter, r *http.Request) {
	var req lineCreate
	if !h.decodeBody(w, r, &req) {
		return
	}
	ed, scope, ok := h.scopedEditor(w, r)
	if !ok {
		return
	}
	l, err := ed.CreateLine(r.Context(), scope, req.From, req.To)
	if err != nil {
		h.writeEditorError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, l)
}

func (h *Handler) handleUpdateLine(w http.ResponseWriter, r *http.Request) {
	var req editor.LineUpdate
	if !h.decodeBody(w, r, &req) {
		return
	}
	ed, scope, ok := h.scopedEditor(w, r)
	if !ok {
		return
	}
	l, err := ed.UpdateLine(r.Context(), scope, chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeEditorError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, l)
}

func (h *Handler) handleDeleteLine(w http.ResponseWriter, r *http.Request) {
	ed, scope, ok := h.scopedEditor(w, r)
	if !ok {
		return
	}
	if err := ed.DeleteLine(r.Context(), scope, chi.URLParam(r, "id")); err != nil {
		h.writeEditorError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMoveVertex(w http.ResponseWriter, r *http.Request) {
	v, err := topology.ParseVertex(chi.URLParam(r, "vertex"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
		return
	}
	var req geo.Point
	if !h.decodeBody(w, r, &req) {
		return
	}
	ed, scope, ok := h.scopedEditor(w, r)
	if !ok {
		return
	}
	l, err := ed.MoveVertex(r.Context(), scope, chi.URLParam(r, "id"), v, req)
	if err != nil {
		h.writeEditorError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, l)
}

func (h *Handler) handleInsertWaypoint(w http.ResponseWriter, r *http.Request) {
	var req waypointInsert
	if r.ContentLength != 0 && !h.decodeBody(w, r, &req) {
		return
	}
	ed, scope, ok := h.scopedEditor(w, r)
	if !ok {
		return
	}
	l, err := ed.InsertWaypoint(r.Context(), scope, chi.URLParam(r, "id"), req.At, req.Index)
	if err != nil {
		h.writeEditorError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, l)
}

func (h *Handler) handleDeleteWaypoint(w http.ResponseWriter, r *http.Request) {
	idx, ok := h.indexParam(w, r, "index")
	if !ok {
		return
	}
	ed, scope, ok := h.scopedEditor(w, r)
	if !ok {
		return
	}
	l, err := ed.DeleteWaypoint(r.Context(), scope, chi.URLParam(r, "id"), idx)
	if err != nil {
		h.writeEditorError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, l)
}

func (h *Handler) handleAddIconAtWaypoint(w http.ResponseWriter, r *http.Request) {
	idx, ok := h.indexParam(w, r, "index")
	if !ok {
		return
	}
	var req waypointIconCreate
	if !h.decodeBody(w, r, &req) {
		return
	}
	ed, scope, ok := h.scopedEditor(w, r)
	if !ok {
		return
	}
	ic, err := ed.AddIconAtWaypoint(r.Context(), scope, chi.URLParam(r, "id"), idx, editor.IconSpec{
		Type:     topology.IconType(req.Type),
		Name:     req.Name,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		h.writeEditorError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, ic)
}

func (h *Handler) handlePlaceIcon(w http.ResponseWriter, r *http.Request) {
	var req iconCreate
	if !h.decodeBody(w, r, &req) {
		return
	}
	ed, scope, ok := h.scopedEditor(w, r)
	if !ok {
		return
	}
	ic, err := ed.PlaceIcon(r.Context(), scope, editor.IconSpec{
		Type:     topology.IconType(req.Type),
		Name:     req.Name,
		ImageURL: req.ImageURL,
	}, req.Position)
	if err != nil {
		h.writeEditorError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, ic)
}

func (h *Handler) handleUpdateIcon(w http.ResponseWriter, r *http.Request) {
	var req editor.IconUpdate
	if !h.decodeBody(w, r, &req) {
		return
	}
	ed, scope, ok := h.scopedEditor(w, r)
	if !ok {
		return
	}
	ic, err := ed.UpdateIcon(r.Context(), scope, chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeEditorError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ic)
}

func (h *Handler) handleDeleteIcon(w http.ResponseWriter, r *http.Request) {
	ed, scope, ok := h.scopedEditor(w, r)
	if !ok {
		return
	}
	if err := ed.DeleteIcon(r.Context(), scope, chi.URLParam(r, "id")); err != nil {
		h.writeEditorError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMoveIcon(w http.ResponseWriter, r *http.Request) {
	var req geo.Point
	if !h.decodeBody(w, r, &req) {
		return
	}
	ed, scope, ok := h.scopedEditor(w, r)
	if !ok {
		return
	}
	ic, err := ed.MoveIcon(r.Context(), scope, chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeEditorError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ic)
}

func (h *Handler) handleSetRatio(w http.ResponseWriter, r *http.Request) {
	var req ratioUpdate
	if !h.decodeBody(w, r, &req) {
		return
	}
	ed, scope, ok := h.scopedEditor(w, r)
	if !ok {
		return
	}
	st, err := ed.SetSplitterRatio(r.Context(), scope, chi.URLParam(r, "id"), req.Ratio)
	if err != nil {
		h.writeEditorError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleSplitterStatus(w http.ResponseWriter, r *http.Request) {
	ed, scope, ok := h.scopedEditor(w, r)
	if !ok {
		return
	}
	st, err := ed.SplitterStatus(scope, chi.URLParam(r, "id"))
	if err != nil {
		h.writeEditorError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleAddPolygonPoint(w http.ResponseWriter, r *http.Request) {
	var req geo.Point
	if !h.decodeBody(w, r, &req) {
		return
	}
	ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}
	res, err := ed.AddPolygonPoint(r.Context(), req)
	if err != nil {
		h.writeEditorError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Closed != nil {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, res)
}

func (h *Handler) handleCancelPolygonDraft(w http.ResponseWriter, r *http.Request) {
	ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}
	ed.CancelPolygonDraft()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRenamePolygon(w http.ResponseWriter, r *http.Request) {
	var req polygonRename
	if !h.decodeBody(w, r, &req) {
		return
	}
	ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}
	p, err := ed.RenamePolygon(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		h.writeEditorError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleLockPolygon(w http.ResponseWriter, r *http.Request) {
	var req polygonLock
	if !h.decodeBody(w, r, &req) {
		return
	}
	ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}
	p, err := ed.SetPolygonLocked(r.Context(), chi.URLParam(r, "id"), req.Locked)
	if err != nil {
		h.writeEditorError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleDeletePolygon(w http.ResponseWriter, r *http.Request) {
	ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}
	if err := ed.DeletePolygon(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeEditorError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
