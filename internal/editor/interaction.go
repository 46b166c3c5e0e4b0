package editor

import (
	"context"
	"errors"
	"fmt"

	"fibermap/core-go/internal/geo"
	"fibermap/core-go/internal/selection"
	"fibermap/core-go/internal/topology"
)

func (e *Editor) Selection() selection.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selection.State()
}

func (e *Editor) ClearSelection() selection.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selection.Clear()
	return e.selection.State()
}

// visible returns the store of scope, refusing the saved store while it is hidden.
func (e *Editor) visible(scope Scope) (*topology.Store, error) {
	if scope == ScopeSaved && !e.flags.ShowSaved {
		return nil, fmt.Errorf("%w: saved routes are hidden", ErrInvalidArgument)
	}
	return e.store(scope), nil
}

func (e *Editor) SelectLine(scope Scope, lineID string, at selection.Anchor) (selection.State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.visible(scope)
	if err != nil {
		return selection.State{}, err
	}
	li, err := lineIndex(s, lineID)
	if err != nil {
		return selection.State{}, err
	}
	return e.selection.SelectLine(lineID, li, scope == ScopeSaved, at), nil
}

func (e *Editor) SelectWaypoint(scope Scope, lineID string, index int, at selection.Anchor) (selection.State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.visible(scope)
	if err != nil {
		return selection.State{}, err
	}
	li, err := lineIndex(s, lineID)
	if err != nil {
		return selection.State{}, err
	}
	l := s.Lines[li]
	if index < 0 || index >= len(l.Waypoints) {
		return selection.State{}, fmt.Errorf("%w: line %s has no waypoint %d", ErrNotFound, lineID, index)
	}
	wp := l.Waypoints[index]
	return e.selection.SelectWaypoint(lineID, li, wp.ID, index, scope == ScopeSaved, wp.IconID, at), nil
}

// OpenSplitterPanel opens the configuration panel of an icon.
func (e *Editor) OpenSplitterPanel(scope Scope, iconID string, at selection.Anchor) (selection.State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.visible(scope)
	if err != nil {
		return selection.State{}, err
	}
	if _, err := iconIndex(s, iconID); err != nil {
		return selection.State{}, err
	}
	return e.selection.OpenSplitterPanel(iconID, scope == ScopeSaved, at), nil
}

func (e *Editor) SelectPolygon(polygonID string, at selection.Anchor) (selection.State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pi, err := polygonIndex(e.polygons, polygonID)
	if err != nil {
		return selection.State{}, err
	}
	return e.selection.SelectPolygon(polygonID, pi, at), nil
}

func (e *Editor) OpenContextMenu(p geo.Point, at selection.Anchor) (selection.State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !p.Valid() {
		return selection.State{}, fmt.Errorf("%w: coordinates out of range", ErrInvalidArgument)
	}
	return e.selection.OpenContextMenu(p, at), nil
}

// ActionParams are the extra inputs of place_icon and add_splitter.
type ActionParams struct {
	IconType topology.IconType `json:"iconType,omitempty"`
	Name     string            `json:"name,omitempty"`
	ImageURL string            `json:"imageUrl,omitempty"`
}

// ActionResult reports what an action did. Applied is false when the action did
// not fit the current selection and was ignored.
type ActionResult struct {
	Applied  bool             `json:"applied"`
	Action   selection.Action `json:"action"`
	EntityID string           `json:"entityId,omitempty"`
}

// ApplySelectionAction runs a contextual action against the current selection
// and closes the selection on success. An action that does not fit is ignored.
func (e *Editor) ApplySelectionAction(ctx context.Context, a selection.Action, params ActionParams) (ActionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := ActionResult{Action: a}
	id, err := e.applyAction(ctx, a, params)
	if errors.Is(err, ErrMissingSelection) {
		e.log.Debug().Str("action", string(a)).Str("selection", string(e.selection.State().Kind)).Msg("ignored action without selection")
		return res, nil
	}
	if err != nil {
		return res, err
	}
	e.selection.Clear()
	res.Applied = true
	res.EntityID = id
	return res, nil
}

func (e *Editor) applyAction(ctx context.Context, a selection.Action, params ActionParams) (string, error) {
	st := e.selection.State()
	if !st.Accepts(a) {
		return "", ErrMissingSelection
	}
	scope := ScopeWorking
	if st.Saved {
		scope = ScopeSaved
	}

	switch a {
	case selection.ActionAddWaypoint:
		if e.store(scope).LineIndex(st.LineID) < 0 {
			return "", ErrMissingSelection
		}
		l, err := e.insertWaypoint(ctx, scope, st.LineID, nil, nil)
		if err != nil {
			return "", err
		}
		return l.Waypoints[len(l.Waypoints)-1].ID, nil

	case selection.ActionAddSplitter:
		li, wi := e.selectedWaypoint(scope, st)
		if wi < 0 {
			return "", ErrMissingSelection
		}
		ic, err := e.addIconAtWaypoint(ctx, scope, e.store(scope).Lines[li].ID, wi, IconSpec{Type: topology.IconSplitter, Name: params.Name})
		return ic.ID, err

	case selection.ActionDelete:
		switch st.Kind {
		case selection.LineSelected:
			if e.store(scope).LineIndex(st.LineID) < 0 {
				return "", ErrMissingSelection
			}
			return st.LineID, e.deleteLine(ctx, scope, st.LineID)
		case selection.WaypointSelected:
			_, wi := e.selectedWaypoint(scope, st)
			if wi < 0 {
				return "", ErrMissingSelection
			}
			_, err := e.deleteWaypoint(ctx, scope, st.LineID, wi)
			return st.WaypointID, err
		case selection.SplitterPanelOpen:
			if e.store(scope).IconIndex(st.IconID) < 0 {
				return "", ErrMissingSelection
			}
			return st.IconID, e.deleteIcon(ctx, scope, st.IconID)
		case selection.PolygonSelected:
			if _, err := polygonIndex(e.polygons, st.PolygonID); err != nil {
				return "", ErrMissingSelection
			}
			return st.PolygonID, e.deletePolygon(ctx, st.PolygonID)
		}

	case selection.ActionAddFiber:
		l, err := e.createLine(ctx, ScopeWorking, *st.Point, nil)
		return l.ID, err

	case selection.ActionPlaceIcon:
		t := params.IconType
		if t == "" {
			t = topology.IconCustom
		}
		ic, err := e.placeIcon(ctx, ScopeWorking, IconSpec{Type: t, Name: params.Name, ImageURL: params.ImageURL}, *st.Point)
		return ic.ID, err
	}
	return "", ErrMissingSelection
}

// selectedWaypoint resolves the selected waypoint by id, since indices may
// have shifted since it was selected.
func (e *Editor) selectedWaypoint(scope Scope, st selection.State) (lineIdx, waypointIdx int) {
	s := e.store(scope)
	li := s.LineIndex(st.LineID)
	if li < 0 {
		return -1, -1
	}
	return li, s.Lines[li].WaypointIndex(st.WaypointID)
}
