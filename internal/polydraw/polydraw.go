// Package polydraw collects clicked points into a polygon and closes it when the
// user clicks back near the first point.
package polydraw

import (
	"fibermap/core-go/internal/geo"
)

// DefaultCloseMeters is how near the first point a click must land to close.
const DefaultCloseMeters = 50.0

// minOpenPoints is the fewest distinct points a closed polygon can have.
const minOpenPoints = 3

// Draft is the in-progress polygon. The zero value is an empty draft using
// DefaultCloseMeters.
type Draft struct {
	CloseMeters float64
	points      []geo.Point
}

func (d *Draft) closeRadius() float64 {
	if d.CloseMeters <= 0 {
		return DefaultCloseMeters
	}
	return d.CloseMeters
}

// Points returns a copy of the collected points.
func (d *Draft) Points() []geo.Point {
	return append([]geo.Point(nil), d.points...)
}

// AddPoint appends p, or closes the ring when p falls near the first point and
// enough points were collected. A closed path ends with a copy of its first
// point; the draft is reset afterwards.
func (d *Draft) AddPoint(p geo.Point) (closed []geo.Point, ok bool) {
	if len(d.points) >= minOpenPoints && geo.Within(p, d.points[0], d.closeRadius()) {
		closed = make([]geo.Point, 0, len(d.points)+1)
		closed = append(closed, d.points...)
		closed = append(closed, d.points[0])
		d.points = nil
		return closed, true
	}
	d.points = append(d.points, p)
	return nil, false
}

func (d *Draft) Cancel() {
	d.points = nil
}
