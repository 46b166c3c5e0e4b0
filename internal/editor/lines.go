package editor

import (
	"context"
	"fmt"
	"slices"

	"fibermap/core-go/internal/geo"
	"fibermap/core-go/internal/naming"
	"fibermap/core-go/internal/snapping"
	"fibermap/core-go/internal/splitter"
	"fibermap/core-go/internal/topology"
)

const (
	DefaultStrokeColor = "#0000ff"
	// defaultFiberOffset is the lat/lng offset of the far end of a fiber added
	// from the context menu.
	defaultFiberOffset = 0.0005
)

// LineUpdate carries the editable attributes of a line; nil fields are unchanged.
// An empty name clears it.
type LineUpdate struct {
	Name        *string `json:"name,omitempty"`
	StrokeColor *string `json:"strokeColor,omitempty"`
}

// CreateLine adds a line from from to to. A nil to places the far end a short
// offset away. Both endpoints snap like a drag.
func (e *Editor) CreateLine(ctx context.Context, scope Scope, from geo.Point, to *geo.Point) (topology.Line, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createLine(ctx, scope, from, to)
}

func (e *Editor) createLine(ctx context.Context, scope Scope, from geo.Point, to *geo.Point) (topology.Line, error) {
	end := geo.Point{Lat: from.Lat + defaultFiberOffset, Lng: from.Lng + defaultFiberOffset}
	if to != nil {
		end = *to
	}
	var out topology.Line
	err := e.mutate(ctx, scope, "line.create", func(s *topology.Store) (string, error) {
		if !from.Valid() || !end.Valid() {
			return "", fmt.Errorf("%w: coordinates out of range", ErrInvalidArgument)
		}
		s.AddLine(topology.Line{
			ID:          topology.NewID(),
			From:        from,
			To:          end,
			Waypoints:   []topology.Waypoint{},
			CreatedAt:   e.clock.Now(),
			StrokeColor: DefaultStrokeColor,
		})
		li := len(s.Lines) - 1
		if err := e.settleVertex(s, li, topology.Vertex{Kind: topology.VertexFrom}, from); err != nil {
			return "", err
		}
		if err := e.settleVertex(s, li, topology.Vertex{Kind: topology.VertexTo}, end); err != nil {
			return "", err
		}
		out = s.Lines[li].Clone()
		return out.ID, nil
	})
	return out, err
}

// MoveVertex is the end of a drag of one vertex of a line.
func (e *Editor) MoveVertex(ctx context.Context, scope Scope, lineID string, v topology.Vertex, p geo.Point) (topology.Line, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out topology.Line
	err := e.mutate(ctx, scope, "vertex.move", func(s *topology.Store) (string, error) {
		li, err := lineIndex(s, lineID)
		if err != nil {
			return "", err
		}
		if _, ok := s.Lines[li].Point(v); !ok {
			return "", fmt.Errorf("%w: line %s has no vertex %s", ErrNotFound, lineID, v)
		}
		if !p.Valid() {
			return "", fmt.Errorf("%w: coordinates out of range", ErrInvalidArgument)
		}
		if err := e.settleVertex(s, li, v, p); err != nil {
			return "", err
		}
		out = s.Lines[li].Clone()
		return lineID, nil
	})
	return out, err
}

// settleVertex places vertex v of line li at p. A waypoint decorated by an icon
// carries its icon along. Otherwise the vertex snaps to the nearest icon within
// the radius, which may be refused by the splitter limit, or detaches.
func (e *Editor) settleVertex(s *topology.Store, li int, v topology.Vertex, p geo.Point) error {
	line := &s.Lines[li]
	prev := line.IconAt(v)
	if v.Kind == topology.VertexWaypoint && prev != "" {
		if s.DecoratorOf(line.ID, line.Waypoints[v.Index].ID) == prev {
			s.MoveIcon(s.IconIndex(prev), p)
			return nil
		}
	}

	icon, ok := snapping.NewResolver(s.Icons, e.snap).FindNearestIcon(p)
	if !ok {
		line.SetVertex(v, p, "")
		return nil
	}
	if icon.ID != prev {
		if err := e.connect(s, li, v, icon.ID); err != nil {
			return err
		}
	}
	s.Lines[li].SetVertex(v, icon.Point(), icon.ID)
	return nil
}

// connect applies the splitter rules for attaching vertex v of line li to iconID.
func (e *Editor) connect(s *topology.Store, li int, v topology.Vertex, iconID string) error {
	icon := &s.Icons[s.IconIndex(iconID)]
	if !icon.IsSplitter() {
		return nil
	}
	line := &s.Lines[li]
	if line.AttachedToExcept(iconID, v) {
		return nil
	}
	if e.features.RatioLimits {
		if err := splitter.ValidateConnection(*icon, s.Lines, true); err != nil {
			return err
		}
	}
	if e.features.LineNaming {
		splitter.AssignName(icon, line)
	}
	return nil
}

// InsertWaypoint adds a waypoint to a line. Without a point it uses the midpoint
// of From and the last point before To; without an index it appends.
func (e *Editor) InsertWaypoint(ctx context.Context, scope Scope, lineID string, at *geo.Point, index *int) (topology.Line, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.insertWaypoint(ctx, scope, lineID, at, index)
}

func (e *Editor) insertWaypoint(ctx context.Context, scope Scope, lineID string, at *geo.Point, index *int) (topology.Line, error) {
	var out topology.Line
	err := e.mutate(ctx, scope, "waypoint.insert", func(s *topology.Store) (string, error) {
		li, err := lineIndex(s, lineID)
		if err != nil {
			return "", err
		}
		l := &s.Lines[li]
		var p geo.Point
		if at != nil {
			p = *at
		} else {
			anchor := l.To
			if n := len(l.Waypoints); n > 0 {
				anchor = l.Waypoints[n-1].Point()
			}
			p = geo.Midpoint(l.From, anchor)
		}
		if !p.Valid() {
			return "", fmt.Errorf("%w: coordinates out of range", ErrInvalidArgument)
		}
		pos := len(l.Waypoints)
		if index != nil {
			if *index < 0 || *index > len(l.Waypoints) {
				return "", fmt.Errorf("%w: waypoint index %d out of range", ErrInvalidArgument, *index)
			}
			pos = *index
		}
		wp := topology.Waypoint{ID: topology.NewID(), Lat: p.Lat, Lng: p.Lng}
		l.Waypoints = slices.Insert(l.Waypoints, pos, wp)
		out = l.Clone()
		return wp.ID, nil
	})
	return out, err
}

// DeleteWaypoint removes a waypoint and the icon decorating it.
func (e *Editor) DeleteWaypoint(ctx context.Context, scope Scope, lineID string, index int) (topology.Line, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deleteWaypoint(ctx, scope, lineID, index)
}

func (e *Editor) deleteWaypoint(ctx context.Context, scope Scope, lineID string, index int) (topology.Line, error) {
	var out topology.Line
	var removed string
	err := e.mutate(ctx, scope, "waypoint.delete", func(s *topology.Store) (string, error) {
		li, err := lineIndex(s, lineID)
		if err != nil {
			return "", err
		}
		if index < 0 || index >= len(s.Lines[li].Waypoints) {
			return "", fmt.Errorf("%w: line %s has no waypoint %d", ErrNotFound, lineID, index)
		}
		removed = s.Lines[li].Waypoints[index].ID
		s.RemoveWaypoint(li, index)
		out = s.Lines[s.LineIndex(lineID)].Clone()
		return removed, nil
	})
	if err == nil {
		e.selection.Forget(removed)
	}
	return out, err
}

// DeleteLine removes a line and the icons decorating its waypoints.
func (e *Editor) DeleteLine(ctx context.Context, scope Scope, lineID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deleteLine(ctx, scope, lineID)
}

func (e *Editor) deleteLine(ctx context.Context, scope Scope, lineID string) error {
	err := e.mutate(ctx, scope, "line.delete", func(s *topology.Store) (string, error) {
		if !s.RemoveLine(lineID) {
			return "", fmt.Errorf("%w: line %s", ErrNotFound, lineID)
		}
		return lineID, nil
	})
	if err == nil {
		e.selection.Forget(lineID)
	}
	return err
}

func (e *Editor) UpdateLine(ctx context.Context, scope Scope, lineID string, u LineUpdate) (topology.Line, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out topology.Line
	err := e.mutate(ctx, scope, "line.update", func(s *topology.Store) (string, error) {
		li, err := lineIndex(s, lineID)
		if err != nil {
			return "", err
		}
		l := &s.Lines[li]
		if u.Name != nil {
			name, _ := naming.NormalizeName(*u.Name)
			l.Name = name
		}
		if u.StrokeColor != nil {
			color, ok := naming.NormalizeColor(*u.StrokeColor)
			if !ok {
				return "", fmt.Errorf("%w: invalid stroke color %q", ErrInvalidArgument, *u.StrokeColor)
			}
			l.StrokeColor = color
		}
		out = l.Clone()
		return lineID, nil
	})
	return out, err
}

func lineIndex(s *topology.Store, id string) (int, error) {
	li := s.LineIndex(id)
	if li < 0 {
		return -1, fmt.Errorf("%w: line %s", ErrNotFound, id)
	}
	return li, nil
}
