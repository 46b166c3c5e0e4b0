// Package topology is the in-memory entity store of the fiber map: lines with their
// waypoints, equipment icons and polygons, plus the foreign keys that tie line
// vertices to the icons they terminate on.
package topology

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"fibermap/core-go/internal/geo"
)

// Waypoint is an intermediate vertex of a line. ID is stable across inserts and
// deletes; positional indices are only valid for a single request.
type Waypoint struct {
	ID     string  `json:"id"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	IconID string  `json:"iconId,omitempty"`
}

func (w Waypoint) Point() geo.Point { return geo.Point{Lat: w.Lat, Lng: w.Lng} }

func (w *Waypoint) SetPoint(p geo.Point) {
	w.Lat = p.Lat
	w.Lng = p.Lng
}

// Line is a fiber segment.
type Line struct {
	ID          string     `json:"id"`
	From        geo.Point  `json:"from"`
	To          geo.Point  `json:"to"`
	FromIconID  string     `json:"fromIconId,omitempty"`
	ToIconID    string     `json:"toIconId,omitempty"`
	Waypoints   []Waypoint `json:"waypoints"`
	Name        string     `json:"name,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StrokeColor string     `json:"strokeColor,omitempty"`
}

// FullPath is [From, waypoints..., To].
func (l Line) FullPath() []geo.Point {
	out := make([]geo.Point, 0, len(l.Waypoints)+2)
	out = append(out, l.From)
	for _, w := range l.Waypoints {
		out = append(out, w.Point())
	}
	return append(out, l.To)
}

func (l Line) Clone() Line {
	c := l
	if l.Waypoints != nil {
		c.Waypoints = make([]Waypoint, len(l.Waypoints))
		copy(c.Waypoints, l.Waypoints)
	}
	return c
}

// AttachedTo reports whether any vertex of l carries iconID.
func (l Line) AttachedTo(iconID string) bool {
	if iconID == "" {
		return false
	}
	if l.FromIconID == iconID || l.ToIconID == iconID {
		return true
	}
	for _, w := range l.Waypoints {
		if w.IconID == iconID {
			return true
		}
	}
	return false
}

// AttachedToExcept is AttachedTo ignoring vertex v.
func (l Line) AttachedToExcept(iconID string, v Vertex) bool {
	if iconID == "" {
		return false
	}
	if v.Kind != VertexFrom && l.FromIconID == iconID {
		return true
	}
	if v.Kind != VertexTo && l.ToIconID == iconID {
		return true
	}
	for i, w := range l.Waypoints {
		if v.Kind == VertexWaypoint && v.Index == i {
			continue
		}
		if w.IconID == iconID {
			return true
		}
	}
	return false
}

func (l Line) WaypointIndex(id string) int {
	for i, w := range l.Waypoints {
		if w.ID == id {
			return i
		}
	}
	return -1
}

// VertexKind names one end of a line or one of its waypoints.
type VertexKind int

const (
	VertexFrom VertexKind = iota
	VertexTo
	VertexWaypoint
)

type Vertex struct {
	Kind  VertexKind
	Index int
}

// ParseVertex accepts "from", "to" or a waypoint index.
func ParseVertex(raw string) (Vertex, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "from", "start":
		return Vertex{Kind: VertexFrom}, nil
	case "to", "end":
		return Vertex{Kind: VertexTo}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return Vertex{}, fmt.Errorf("invalid vertex %q", raw)
	}
	return Vertex{Kind: VertexWaypoint, Index: n}, nil
}

func (v Vertex) String() string {
	switch v.Kind {
	case VertexFrom:
		return "from"
	case VertexTo:
		return "to"
	default:
		return strconv.Itoa(v.Index)
	}
}

// Point returns the coordinate of v on l.
func (l Line) Point(v Vertex) (geo.Point, bool) {
	switch v.Kind {
	case VertexFrom:
		return l.From, true
	case VertexTo:
		return l.To, true
	}
	if v.Index < 0 || v.Index >= len(l.Waypoints) {
		return geo.Point{}, false
	}
	return l.Waypoints[v.Index].Point(), true
}

// IconAt returns the icon id attached to v.
func (l Line) IconAt(v Vertex) string {
	switch v.Kind {
	case VertexFrom:
		return l.FromIconID
	case VertexTo:
		return l.ToIconID
	}
	if v.Index < 0 || v.Index >= len(l.Waypoints) {
		return ""
	}
	return l.Waypoints[v.Index].IconID
}

// SetVertex moves v to p and records its icon attachment ("" detaches).
func (l *Line) SetVertex(v Vertex, p geo.Point, iconID string) {
	switch v.Kind {
	case VertexFrom:
		l.From = p
		l.FromIconID = iconID
	case VertexTo:
		l.To = p
		l.ToIconID = iconID
	default:
		l.Waypoints[v.Index].SetPoint(p)
		l.Waypoints[v.Index].IconID = iconID
	}
}

// IconLink is the weak back-reference from an icon to the waypoint it decorates.
type IconLink struct {
	LineID     string `json:"lineId"`
	WaypointID string `json:"waypointId"`
}

// Icon is an equipment marker. Splitter-only fields are zero for other types.
type Icon struct {
	ID             string    `json:"id"`
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	Type           IconType  `json:"type"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	SplitterRatio  string    `json:"splitterRatio,omitempty"`
	RatioSetAt     time.Time `json:"ratioSetTimestamp,omitzero"`
	Name           string    `json:"name,omitempty"`
	NextLineNumber int       `json:"nextLineNumber,omitempty"`
	LinkedTo       *IconLink `json:"linkedTo,omitempty"`
}

func (i Icon) Point() geo.Point { return geo.Point{Lat: i.Lat, Lng: i.Lng} }

func (i *Icon) SetPoint(p geo.Point) {
	i.Lat = p.Lat
	i.Lng = p.Lng
}

func (i Icon) IsSplitter() bool { return i.Type == IconSplitter }

func (i Icon) Clone() Icon {
	c := i
	if i.LinkedTo != nil {
		l := *i.LinkedTo
		c.LinkedTo = &l
	}
	return c
}

// Polygon is a closed area drawn on the map; Path[0] == Path[len-1].
type Polygon struct {
	ID        string      `json:"id"`
	Path      []geo.Point `json:"path"`
	Name      string      `json:"name,omitempty"`
	Locked    bool        `json:"locked"`
	CreatedAt time.Time   `json:"createdAt"`
}

func (p Polygon) Clone() Polygon {
	c := p
	c.Path = append([]geo.Point(nil), p.Path...)
	return c
}

// NewID returns a random UUID string.
func NewID() string {
	return uuid.NewString()
}
