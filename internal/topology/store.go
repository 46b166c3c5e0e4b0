package topology

import (
	"fmt"
	"slices"

	"fibermap/core-go/internal/geo"
)

// Store is one collection of entities (the working set or the saved set).
// Slices keep insertion order; lookups are by id.
type Store struct {
	Lines    []Line    `json:"lines"`
	Icons    []Icon    `json:"icons"`
	Polygons []Polygon `json:"polygons"`
}

func NewStore() *Store {
	return &Store{Lines: []Line{}, Icons: []Icon{}, Polygons: []Polygon{}}
}

func (s *Store) Clone() *Store {
	c := &Store{
		Lines:    make([]Line, len(s.Lines)),
		Icons:    make([]Icon, len(s.Icons)),
		Polygons: make([]Polygon, len(s.Polygons)),
	}
	for i, l := range s.Lines {
		c.Lines[i] = l.Clone()
	}
	for i, ic := range s.Icons {
		c.Icons[i] = ic.Clone()
	}
	for i, p := range s.Polygons {
		c.Polygons[i] = p.Clone()
	}
	return c
}

func (s *Store) LineIndex(id string) int {
	for i := range s.Lines {
		if s.Lines[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) IconIndex(id string) int {
	for i := range s.Icons {
		if s.Icons[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) PolygonIndex(id string) int {
	for i := range s.Polygons {
		if s.Polygons[i].ID == id {
			return i
		}
	}
	return -1
}

// AddLine appends l. A duplicate id is a programming error.
func (s *Store) AddLine(l Line) {
	if s.LineIndex(l.ID) >= 0 {
		panic(fmt.Sprintf("topology: duplicate line id %s", l.ID))
	}
	s.Lines = append(s.Lines, l)
}

func (s *Store) AddIcon(ic Icon) {
	if s.IconIndex(ic.ID) >= 0 {
		panic(fmt.Sprintf("topology: duplicate icon id %s", ic.ID))
	}
	s.Icons = append(s.Icons, ic)
}

func (s *Store) AddPolygon(p Polygon) {
	if s.PolygonIndex(p.ID) >= 0 {
		panic(fmt.Sprintf("topology: duplicate polygon id %s", p.ID))
	}
	s.Polygons = append(s.Polygons, p)
}

// LinesAttachedTo returns the indices of lines with at least one vertex on iconID.
func (s *Store) LinesAttachedTo(iconID string) []int {
	var out []int
	for i := range s.Lines {
		if s.Lines[i].AttachedTo(iconID) {
			out = append(out, i)
		}
	}
	return out
}

// MoveIcon relocates the icon at idx and drags every attached vertex with it.
func (s *Store) MoveIcon(idx int, p geo.Point) {
	ic := &s.Icons[idx]
	ic.SetPoint(p)
	s.forEachAttached(ic.ID, func(l *Line, v Vertex) {
		l.SetVertex(v, p, ic.ID)
	})
}

// RemoveIcon deletes the icon; attached vertices stay where they are, detached.
func (s *Store) RemoveIcon(id string) bool {
	idx := s.IconIndex(id)
	if idx < 0 {
		return false
	}
	s.forEachAttached(id, func(l *Line, v Vertex) {
		p, _ := l.Point(v)
		l.SetVertex(v, p, "")
	})
	s.Icons = slices.Delete(s.Icons, idx, idx+1)
	return true
}

// RemoveWaypoint deletes a waypoint and the icon decorating it, if any.
func (s *Store) RemoveWaypoint(lineIdx, wpIdx int) {
	wp := s.Lines[lineIdx].Waypoints[wpIdx]
	lineID := s.Lines[lineIdx].ID
	if decor := s.decoratorOf(lineID, wp.ID); decor != "" {
		s.RemoveIcon(decor)
	}
	l := &s.Lines[lineIdx]
	l.Waypoints = slices.Delete(l.Waypoints, wpIdx, wpIdx+1)
}

// RemoveLine deletes a line and the icons decorating its waypoints.
func (s *Store) RemoveLine(id string) bool {
	idx := s.LineIndex(id)
	if idx < 0 {
		return false
	}
	for _, wp := range s.Lines[idx].Waypoints {
		if decor := s.decoratorOf(id, wp.ID); decor != "" {
			s.RemoveIcon(decor)
		}
	}
	idx = s.LineIndex(id)
	s.Lines = slices.Delete(s.Lines, idx, idx+1)
	return true
}

// DecoratorOf returns the id of the icon linked to the given waypoint.
func (s *Store) DecoratorOf(lineID, waypointID string) string {
	return s.decoratorOf(lineID, waypointID)
}

func (s *Store) decoratorOf(lineID, waypointID string) string {
	for _, ic := range s.Icons {
		if ic.LinkedTo != nil && ic.LinkedTo.LineID == lineID && ic.LinkedTo.WaypointID == waypointID {
			return ic.ID
		}
	}
	return ""
}

func (s *Store) forEachAttached(iconID string, fn func(l *Line, v Vertex)) {
	for i := range s.Lines {
		l := &s.Lines[i]
		if l.FromIconID == iconID {
			fn(l, Vertex{Kind: VertexFrom})
		}
		if l.ToIconID == iconID {
			fn(l, Vertex{Kind: VertexTo})
		}
		for j := range l.Waypoints {
			if l.Waypoints[j].IconID == iconID {
				fn(l, Vertex{Kind: VertexWaypoint, Index: j})
			}
		}
	}
}

// Normalize repairs the relation between icons and line vertices: decorations
// point at existing waypoints attached to the decorating icon, foreign keys point
// at existing icons, and attached vertices sit exactly on their icon.
func (s *Store) Normalize() {
	for i := range s.Icons {
		ic := &s.Icons[i]
		if ic.LinkedTo == nil {
			continue
		}
		li := s.LineIndex(ic.LinkedTo.LineID)
		if li < 0 {
			ic.LinkedTo = nil
			continue
		}
		wi := s.Lines[li].WaypointIndex(ic.LinkedTo.WaypointID)
		if wi < 0 {
			ic.LinkedTo = nil
			continue
		}
		wp := &s.Lines[li].Waypoints[wi]
		switch wp.IconID {
		case ic.ID:
		case "":
			wp.IconID = ic.ID
		default:
			ic.LinkedTo = nil
		}
	}

	positions := make(map[string]geo.Point, len(s.Icons))
	for _, ic := range s.Icons {
		positions[ic.ID] = ic.Point()
	}
	for i := range s.Lines {
		l := &s.Lines[i]
		if l.Waypoints == nil {
			l.Waypoints = []Waypoint{}
		}
		vertices := []Vertex{{Kind: VertexFrom}, {Kind: VertexTo}}
		for j := range l.Waypoints {
			vertices = append(vertices, Vertex{Kind: VertexWaypoint, Index: j})
		}
		for _, v := range vertices {
			id := l.IconAt(v)
			if id == "" {
				continue
			}
			if p, ok := positions[id]; ok {
				l.SetVertex(v, p, id)
				continue
			}
			p, _ := l.Point(v)
			l.SetVertex(v, p, "")
		}
	}

	for i := range s.Polygons {
		p := &s.Polygons[i]
		if n := len(p.Path); n > 0 && p.Path[0] != p.Path[n-1] {
			p.Path = append(p.Path, p.Path[0])
		}
	}
}

// Relink attaches free vertices that find resolves to an icon. It is used for
// data written before vertices carried icon ids.
func (s *Store) Relink(find func(geo.Point) (string, bool)) int {
	var attached int
	for i := range s.Lines {
		l := &s.Lines[i]
		try := func(v Vertex) {
			if l.IconAt(v) != "" {
				return
			}
			p, _ := l.Point(v)
			id, ok := find(p)
			if !ok {
				return
			}
			l.SetVertex(v, p, id)
			attached++
		}
		try(Vertex{Kind: VertexFrom})
		try(Vertex{Kind: VertexTo})
		for j := range l.Waypoints {
			try(Vertex{Kind: VertexWaypoint, Index: j})
		}
	}
	if attached > 0 {
		s.Normalize()
	}
	return attached
}

// Check returns the first integrity violation, or nil.
func (s *Store) Check() error {
	icons := make(map[string]Icon, len(s.Icons))
	for _, ic := range s.Icons {
		if _, dup := icons[ic.ID]; dup {
			return fmt.Errorf("duplicate icon id %s", ic.ID)
		}
		icons[ic.ID] = ic
	}
	lineIDs := make(map[string]struct{}, len(s.Lines))
	for _, l := range s.Lines {
		if _, dup := lineIDs[l.ID]; dup {
			return fmt.Errorf("duplicate line id %s", l.ID)
		}
		lineIDs[l.ID] = struct{}{}

		check := func(v Vertex) error {
			id := l.IconAt(v)
			if id == "" {
				return nil
			}
			ic, ok := icons[id]
			if !ok {
				return fmt.Errorf("line %s vertex %s references missing icon %s", l.ID, v, id)
			}
			if p, _ := l.Point(v); p != ic.Point() {
				return fmt.Errorf("line %s vertex %s is not on icon %s", l.ID, v, id)
			}
			return nil
		}
		if err := check(Vertex{Kind: VertexFrom}); err != nil {
			return err
		}
		if err := check(Vertex{Kind: VertexTo}); err != nil {
			return err
		}
		for j := range l.Waypoints {
			if err := check(Vertex{Kind: VertexWaypoint, Index: j}); err != nil {
				return err
			}
		}
	}
	for _, ic := range s.Icons {
		if ic.LinkedTo == nil {
			continue
		}
		li := s.LineIndex(ic.LinkedTo.LineID)
		if li < 0 {
			return fmt.Errorf("icon %s linked to missing line %s", ic.ID, ic.LinkedTo.LineID)
		}
		wi := s.Lines[li].WaypointIndex(ic.LinkedTo.WaypointID)
		if wi < 0 || s.Lines[li].Waypoints[wi].IconID != ic.ID {
			return fmt.Errorf("icon %s linked to waypoint %s which is not attached to it", ic.ID, ic.LinkedTo.WaypointID)
		}
	}
	return nil
}

// MergeFrom appends clones of the lines and icons of other whose ids s does not
// have yet. Entities already in s are left as they are. Polygons are not merged.
func (s *Store) MergeFrom(other *Store) int {
	var added int
	for _, l := range other.Lines {
		if s.LineIndex(l.ID) >= 0 {
			continue
		}
		s.Lines = append(s.Lines, l.Clone())
		added++
	}
	for _, ic := range other.Icons {
		if s.IconIndex(ic.ID) >= 0 {
			continue
		}
		s.Icons = append(s.Icons, ic.Clone())
		added++
	}
	return added
}
