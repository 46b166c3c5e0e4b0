package editor

import (
	"context"
	"fmt"
	"slices"

	"fibermap/core-go/internal/geo"
	"fibermap/core-go/internal/naming"
	"fibermap/core-go/internal/topology"
)

// DraftResult is the polygon draft after a click. Closed is set when the click
// finished a polygon, in which case Points is empty again.
type DraftResult struct {
	Points []geo.Point       `json:"points"`
	Closed *topology.Polygon `json:"closed,omitempty"`
}

// AddPolygonPoint extends the draft, closing it into a stored polygon when p
// lands near the first point of a draft with at least three points.
func (e *Editor) AddPolygonPoint(ctx context.Context, p geo.Point) (DraftResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.features.Polygons {
		e.observe("polygon.point", ErrFeatureDisabled)
		return DraftResult{}, fmt.Errorf("%w: polygons", ErrFeatureDisabled)
	}
	if !p.Valid() {
		e.observe("polygon.point", ErrInvalidArgument)
		return DraftResult{}, fmt.Errorf("%w: coordinates out of range", ErrInvalidArgument)
	}

	prev := e.draft
	path, closed := e.draft.AddPoint(p)
	if !closed {
		e.observe("polygon.point", nil)
		e.emit("polygon.draft", "", "")
		return DraftResult{Points: e.draft.Points()}, nil
	}

	poly := topology.Polygon{
		ID:        topology.NewID(),
		Path:      path,
		CreatedAt: e.clock.Now(),
	}
	err := e.mutatePolygons(ctx, "polygon.create", func(polys []topology.Polygon) ([]topology.Polygon, string, error) {
		return append(polys, poly), poly.ID, nil
	})
	if err != nil {
		e.draft = prev
		return DraftResult{}, err
	}
	out := poly.Clone()
	return DraftResult{Points: []geo.Point{}, Closed: &out}, nil
}

func (e *Editor) CancelPolygonDraft() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.draft.Cancel()
	e.emit("polygon.draft", "", "")
}

// RenamePolygon sets the name of an unlocked polygon; an empty name clears it.
func (e *Editor) RenamePolygon(ctx context.Context, id, name string) (topology.Polygon, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out topology.Polygon
	err := e.mutatePolygons(ctx, "polygon.rename", func(polys []topology.Polygon) ([]topology.Polygon, string, error) {
		pi, err := polygonIndex(polys, id)
		if err != nil {
			return nil, "", err
		}
		if polys[pi].Locked {
			return nil, "", ErrPolygonLocked
		}
		polys[pi].Name, _ = naming.NormalizeName(name)
		out = polys[pi].Clone()
		return polys, id, nil
	})
	return out, err
}

func (e *Editor) SetPolygonLocked(ctx context.Context, id string, locked bool) (topology.Polygon, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out topology.Polygon
	err := e.mutatePolygons(ctx, "polygon.lock", func(polys []topology.Polygon) ([]topology.Polygon, string, error) {
		pi, err := polygonIndex(polys, id)
		if err != nil {
			return nil, "", err
		}
		polys[pi].Locked = locked
		out = polys[pi].Clone()
		return polys, id, nil
	})
	return out, err
}

func (e *Editor) DeletePolygon(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deletePolygon(ctx, id)
}

func (e *Editor) deletePolygon(ctx context.Context, id string) error {
	err := e.mutatePolygons(ctx, "polygon.delete", func(polys []topology.Polygon) ([]topology.Polygon, string, error) {
		pi, err := polygonIndex(polys, id)
		if err != nil {
			return nil, "", err
		}
		if polys[pi].Locked {
			return nil, "", ErrPolygonLocked
		}
		return slices.Delete(polys, pi, pi+1), id, nil
	})
	if err == nil {
		e.selection.Forget(id)
	}
	return err
}

// mutatePolygons applies fn to a copy of the polygon collection, writes the
// result to storage and commits it.
func (e *Editor) mutatePolygons(ctx context.Context, op string, fn func([]topology.Polygon) ([]topology.Polygon, string, error)) error {
	next := make([]topology.Polygon, len(e.polygons))
	for i, p := range e.polygons {
		next[i] = p.Clone()
	}
	next, id, err := fn(next)
	if err != nil {
		e.observe(op, err)
		return err
	}
	if err := e.persist.WritePolygons(ctx, next); err != nil {
		err = fmt.Errorf("persist polygons: %w", err)
		e.observe(op, err)
		return err
	}
	e.polygons = next
	e.observe(op, nil)
	e.emit(op, "", id)
	return nil
}

func polygonIndex(polys []topology.Polygon, id string) (int, error) {
	for i := range polys {
		if polys[i].ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: polygon %s", ErrNotFound, id)
}
