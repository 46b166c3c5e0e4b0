// Package selection tracks the single entity the user is acting on and where its
// popup is anchored on screen.
package selection

import (
	"fmt"
	"strings"

	"fibermap/core-go/internal/geo"
)

type Kind string

const (
	Idle              Kind = "idle"
	LineSelected      Kind = "line"
	WaypointSelected  Kind = "waypoint"
	SplitterPanelOpen Kind = "splitter_panel"
	PolygonSelected   Kind = "polygon"
	ContextMenuOpen   Kind = "context_menu"
)

func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	switch k {
	case Idle, LineSelected, WaypointSelected, SplitterPanelOpen, PolygonSelected, ContextMenuOpen:
		return k, nil
	}
	return "", fmt.Errorf("unknown selection kind %q", raw)
}

// Anchor is a client pixel position.
type Anchor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// State is one tagged value; only the fields of Kind are meaningful.
type State struct {
	Kind          Kind       `json:"kind"`
	Anchor        Anchor     `json:"anchor"`
	Saved         bool       `json:"saved,omitempty"`
	LineID        string     `json:"lineId,omitempty"`
	LineIndex     int        `json:"lineIndex,omitempty"`
	WaypointID    string     `json:"waypointId,omitempty"`
	WaypointIndex int        `json:"waypointIndex,omitempty"`
	LinkedIconID  string     `json:"linkedIconId,omitempty"`
	IconID        string     `json:"iconId,omitempty"`
	PolygonID     string     `json:"polygonId,omitempty"`
	PolygonIndex  int        `json:"polygonIndex,omitempty"`
	Point         *geo.Point `json:"point,omitempty"`
}

// Machine holds the current selection. The zero value is Idle.
type Machine struct {
	state State
}

func (m *Machine) State() State {
	if m.state.Kind == "" {
		return State{Kind: Idle}
	}
	s := m.state
	if s.Point != nil {
		p := *s.Point
		s.Point = &p
	}
	return s
}

func (m *Machine) Clear() {
	m.state = State{Kind: Idle}
}

func (m *Machine) SelectLine(lineID string, index int, saved bool, at Anchor) State {
	m.state = State{Kind: LineSelected, Anchor: at, LineID: lineID, LineIndex: index, Saved: saved}
	return m.State()
}

func (m *Machine) SelectWaypoint(lineID string, lineIndex int, waypointID string, waypointIndex int, saved bool, linkedIconID string, at Anchor) State {
	m.state = State{
		Kind:          WaypointSelected,
		Anchor:        at,
		LineID:        lineID,
		LineIndex:     lineIndex,
		WaypointID:    waypointID,
		WaypointIndex: waypointIndex,
		Saved:         saved,
		LinkedIconID:  linkedIconID,
	}
	return m.State()
}

func (m *Machine) OpenSplitterPanel(iconID string, saved bool, at Anchor) State {
	m.state = State{Kind: SplitterPanelOpen, Anchor: at, IconID: iconID, Saved: saved}
	return m.State()
}

func (m *Machine) SelectPolygon(polygonID string, index int, at Anchor) State {
	m.state = State{Kind: PolygonSelected, Anchor: at, PolygonID: polygonID, PolygonIndex: index}
	return m.State()
}

func (m *Machine) OpenContextMenu(p geo.Point, at Anchor) State {
	m.state = State{Kind: ContextMenuOpen, Anchor: at, Point: &p}
	return m.State()
}

// Forget drops the selection when it refers to an entity that no longer exists.
func (m *Machine) Forget(id string) {
	s := m.state
	if id == "" {
		return
	}
	if s.LineID == id || s.WaypointID == id || s.IconID == id || s.PolygonID == id || s.LinkedIconID == id {
		m.Clear()
	}
}

// Flags are process state and are not persisted.
type Flags struct {
	ShowSaved     bool `json:"showSavedRoutes"`
	SavedEditable bool `json:"isSavedRoutesEditable"`
}

// Action is a contextual command applied to the current selection.
type Action string

const (
	ActionAddWaypoint Action = "add_waypoint"
	ActionDelete      Action = "delete"
	ActionAddSplitter Action = "add_splitter"
	ActionAddFiber    Action = "add_fiber"
	ActionPlaceIcon   Action = "place_icon"
)

func ParseAction(raw string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(raw)))
	switch a {
	case ActionAddWaypoint, ActionDelete, ActionAddSplitter, ActionAddFiber, ActionPlaceIcon:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", raw)
}

// Accepts reports whether action makes sense for the current selection.
func (s State) Accepts(a Action) bool {
	switch a {
	case ActionAddWaypoint:
		return s.Kind == LineSelected
	case ActionDelete:
		return s.Kind == LineSelected || s.Kind == WaypointSelected || s.Kind == SplitterPanelOpen || s.Kind == PolygonSelected
	case ActionAddSplitter:
		return s.Kind == WaypointSelected
	case ActionAddFiber, ActionPlaceIcon:
		return s.Kind == ContextMenuOpen
	}
	return false
}
