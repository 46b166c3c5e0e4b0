package editor

import (
	"context"
	"fmt"

	"fibermap/core-go/internal/geo"
	"fibermap/core-go/internal/naming"
	"fibermap/core-go/internal/splitter"
	"fibermap/core-go/internal/topology"
)

// IconSpec describes a new icon.
type IconSpec struct {
	Type     topology.IconType `json:"type"`
	Name     string            `json:"name,omitempty"`
	ImageURL string            `json:"imageUrl,omitempty"`
}

// IconUpdate carries the editable attributes of an icon; nil fields are unchanged.
type IconUpdate struct {
	Name     *string `json:"name,omitempty"`
	ImageURL *string `json:"imageUrl,omitempty"`
}

func newIcon(req IconSpec, p geo.Point) (topology.Icon, error) {
	t, ok := topology.ParseIconType(string(req.Type))
	if !ok {
		return topology.Icon{}, fmt.Errorf("%w: unknown icon type %q", ErrInvalidArgument, req.Type)
	}
	if !p.Valid() {
		return topology.Icon{}, fmt.Errorf("%w: coordinates out of range", ErrInvalidArgument)
	}
	name, _ := naming.NormalizeName(req.Name)
	ic := topology.Icon{
		ID:       topology.NewID(),
		Lat:      p.Lat,
		Lng:      p.Lng,
		Type:     t,
		Name:     name,
		ImageURL: req.ImageURL,
	}
	if ic.IsSplitter() {
		ic.NextLineNumber = 1
	}
	return ic, nil
}

// PlaceIcon drops a free icon at p.
func (e *Editor) PlaceIcon(ctx context.Context, scope Scope, req IconSpec, p geo.Point) (topology.Icon, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.placeIcon(ctx, scope, req, p)
}

func (e *Editor) placeIcon(ctx context.Context, scope Scope, req IconSpec, p geo.Point) (topology.Icon, error) {
	var out topology.Icon
	err := e.mutate(ctx, scope, "icon.place", func(s *topology.Store) (string, error) {
		ic, err := newIcon(req, p)
		if err != nil {
			return "", err
		}
		s.AddIcon(ic)
		out = ic.Clone()
		return ic.ID, nil
	})
	return out, err
}

// AddIconAtWaypoint creates an icon decorating a waypoint. The waypoint is
// attached to it, so a splitter placed this way counts and names its line.
func (e *Editor) AddIconAtWaypoint(ctx context.Context, scope Scope, lineID string, index int, req IconSpec) (topology.Icon, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addIconAtWaypoint(ctx, scope, lineID, index, req)
}

func (e *Editor) addIconAtWaypoint(ctx context.Context, scope Scope, lineID string, index int, req IconSpec) (topology.Icon, error) {
	var out topology.Icon
	err := e.mutate(ctx, scope, "icon.attach", func(s *topology.Store) (string, error) {
		li, err := lineIndex(s, lineID)
		if err != nil {
			return "", err
		}
		if index < 0 || index >= len(s.Lines[li].Waypoints) {
			return "", fmt.Errorf("%w: line %s has no waypoint %d", ErrNotFound, lineID, index)
		}
		wp := s.Lines[li].Waypoints[index]
		if wp.IconID != "" {
			return "", ErrWaypointOccupied
		}
		ic, err := newIcon(req, wp.Point())
		if err != nil {
			return "", err
		}
		ic.LinkedTo = &topology.IconLink{LineID: lineID, WaypointID: wp.ID}
		s.AddIcon(ic)

		v := topology.Vertex{Kind: topology.VertexWaypoint, Index: index}
		if err := e.connect(s, li, v, ic.ID); err != nil {
			return "", err
		}
		s.Lines[li].SetVertex(v, wp.Point(), ic.ID)
		out = s.Icons[s.IconIndex(ic.ID)].Clone()
		return ic.ID, nil
	})
	return out, err
}

// MoveIcon relocates an icon; every vertex attached to it follows.
func (e *Editor) MoveIcon(ctx context.Context, scope Scope, iconID string, p geo.Point) (topology.Icon, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out topology.Icon
	err := e.mutate(ctx, scope, "icon.move", func(s *topology.Store) (string, error) {
		ii, err := iconIndex(s, iconID)
		if err != nil {
			return "", err
		}
		if !p.Valid() {
			return "", fmt.Errorf("%w: coordinates out of range", ErrInvalidArgument)
		}
		s.MoveIcon(ii, p)
		out = s.Icons[ii].Clone()
		return iconID, nil
	})
	return out, err
}

func (e *Editor) UpdateIcon(ctx context.Context, scope Scope, iconID string, u IconUpdate) (topology.Icon, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out topology.Icon
	err := e.mutate(ctx, scope, "icon.update", func(s *topology.Store) (string, error) {
		ii, err := iconIndex(s, iconID)
		if err != nil {
			return "", err
		}
		ic := &s.Icons[ii]
		if u.Name != nil {
			name, _ := naming.NormalizeName(*u.Name)
			ic.Name = name
		}
		if u.ImageURL != nil {
			ic.ImageURL = *u.ImageURL
		}
		out = ic.Clone()
		return iconID, nil
	})
	return out, err
}

// DeleteIcon removes an icon; attached vertices stay in place, detached.
func (e *Editor) DeleteIcon(ctx context.Context, scope Scope, iconID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deleteIcon(ctx, scope, iconID)
}

func (e *Editor) deleteIcon(ctx context.Context, scope Scope, iconID string) error {
	err := e.mutate(ctx, scope, "icon.delete", func(s *topology.Store) (string, error) {
		if !s.RemoveIcon(iconID) {
			return "", fmt.Errorf("%w: icon %s", ErrNotFound, iconID)
		}
		return iconID, nil
	})
	if err == nil {
		e.selection.Forget(iconID)
	}
	return err
}

// SetSplitterRatio sets or changes the ratio of a splitter.
func (e *Editor) SetSplitterRatio(ctx context.Context, scope Scope, iconID, ratio string) (splitter.Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out splitter.Status
	err := e.mutate(ctx, scope, "splitter.ratio", func(s *topology.Store) (string, error) {
		if !e.features.RatioLimits {
			return "", fmt.Errorf("%w: ratio limits", ErrFeatureDisabled)
		}
		ii, err := iconIndex(s, iconID)
		if err != nil {
			return "", err
		}
		if err := splitter.SetRatio(&s.Icons[ii], ratio, s.Lines, e.clock.Now()); err != nil {
			return "", err
		}
		out = splitter.StatusOf(s.Icons[ii], s.Lines)
		return iconID, nil
	})
	return out, err
}

// SplitterStatus reports ratio, limit, connected count and next line name.
func (e *Editor) SplitterStatus(scope Scope, iconID string) (splitter.Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.store(scope)
	ii, err := iconIndex(s, iconID)
	if err != nil {
		return splitter.Status{}, err
	}
	if !s.Icons[ii].IsSplitter() {
		return splitter.Status{}, splitter.ErrNotSplitter
	}
	return splitter.StatusOf(s.Icons[ii], s.Lines), nil
}

func iconIndex(s *topology.Store, id string) (int, error) {
	ii := s.IconIndex(id)
	if ii < 0 {
		return -1, fmt.Errorf("%w: icon %s", ErrNotFound, id)
	}
	return ii, nil
}
