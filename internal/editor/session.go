package editor

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"fibermap/core-go/internal/geo"
	"fibermap/core-go/internal/selection"
	"fibermap/core-go/internal/topology"
)

// SaveResult reports how many working entities were new to the saved store.
type SaveResult struct {
	Added int             `json:"added"`
	Flags selection.Flags `json:"flags"`
}

// Save merges the working store into the saved store by id, writes it and
// turns saved routes visible. Saving the same working state twice adds nothing.
func (e *Editor) Save(ctx context.Context) (SaveResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	next := e.saved.Clone()
	added, err := e.persist.SaveAll(ctx, next, e.working)
	e.metrics.ObserveSaveDuration(time.Since(start))
	if err != nil {
		err = fmt.Errorf("save topology: %w", err)
		e.observe("save", err)
		return SaveResult{}, err
	}
	e.saved = next
	e.flags.ShowSaved = true
	e.observe("save", nil)
	e.emit("save", ScopeSaved, "")
	e.log.Info().Int("added", added).Int("lines", len(next.Lines)).Int("icons", len(next.Icons)).Msg("saved topology")
	return SaveResult{Added: added, Flags: e.flags}, nil
}

// Layer is the lines and icons of one scope.
type Layer struct {
	Lines []topology.Line `json:"lines"`
	Icons []topology.Icon `json:"icons"`
}

func layerOf(s *topology.Store) *Layer {
	c := s.Clone()
	return &Layer{Lines: c.Lines, Icons: c.Icons}
}

// View is a consistent copy of the editor state.
type View struct {
	Working   *Layer             `json:"working"`
	Saved     *Layer             `json:"saved,omitempty"`
	Polygons  []topology.Polygon `json:"polygons"`
	Draft     []geo.Point        `json:"polygonDraft"`
	Selection selection.State    `json:"selection"`
	Flags     selection.Flags    `json:"flags"`
	Features  Features           `json:"features"`
}

// Snapshot returns the current state. The saved store is included only while
// saved routes are shown.
func (e *Editor) Snapshot() View {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := View{
		Working:   layerOf(e.working),
		Polygons:  make([]topology.Polygon, len(e.polygons)),
		Draft:     e.draft.Points(),
		Selection: e.selection.State(),
		Flags:     e.flags,
		Features:  e.features,
	}
	if v.Draft == nil {
		v.Draft = []geo.Point{}
	}
	for i, p := range e.polygons {
		v.Polygons[i] = p.Clone()
	}
	if e.flags.ShowSaved {
		v.Saved = layerOf(e.saved)
	}
	return v
}

// ExportGeoJSON renders a scope as a feature collection: lines as LineString,
// icons as Point and polygons as Polygon. A non-empty types list keeps only
// icons of those types.
func (e *Editor) ExportGeoJSON(scope Scope, types []topology.IconType) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.store(scope)
	keep := make(map[topology.IconType]bool, len(types))
	for _, t := range types {
		keep[t] = true
	}

	fc := geojson.NewFeatureCollection()
	for _, l := range s.Lines {
		ls := make(orb.LineString, 0, len(l.Waypoints)+2)
		for _, p := range l.FullPath() {
			ls = append(ls, p.Orb())
		}
		f := geojson.NewFeature(ls)
		f.ID = l.ID
		f.Properties["kind"] = "line"
		f.Properties["name"] = l.Name
		f.Properties["strokeColor"] = l.StrokeColor
		f.Properties["createdAt"] = l.CreatedAt.Format(time.RFC3339Nano)
		fc.Append(f)
	}
	for _, ic := range s.Icons {
		if len(keep) > 0 && !keep[ic.Type] {
			continue
		}
		f := geojson.NewFeature(ic.Point().Orb())
		f.ID = ic.ID
		f.Properties["kind"] = "icon"
		f.Properties["type"] = string(ic.Type)
		f.Properties["name"] = ic.Name
		if ic.IsSplitter() && ic.SplitterRatio != "" {
			f.Properties["splitterRatio"] = ic.SplitterRatio
		}
		fc.Append(f)
	}
	for _, p := range e.polygons {
		ring := make(orb.Ring, 0, len(p.Path))
		for _, pt := range p.Path {
			ring = append(ring, pt.Orb())
		}
		f := geojson.NewFeature(orb.Polygon{ring})
		f.ID = p.ID
		f.Properties["kind"] = "polygon"
		f.Properties["name"] = p.Name
		f.Properties["locked"] = p.Locked
		fc.Append(f)
	}

	out, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode geojson: %w", err)
	}
	return out, nil
}
