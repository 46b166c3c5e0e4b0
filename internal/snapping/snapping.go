// Package snapping resolves a dragged coordinate to the icon it should snap onto.
package snapping

import (
	"github.com/dhconnelly/rtreego"

	"fibermap/core-go/internal/geo"
	"fibermap/core-go/internal/topology"
)

// DefaultRadiusMeters is roughly what a 0.0005 degree box spans at the equator.
const DefaultRadiusMeters = 55.0

type indexedIcon struct {
	icon  topology.Icon
	order int
	rect  rtreego.Rect
}

func (i *indexedIcon) Bounds() rtreego.Rect {
	return i.rect
}

// Resolver answers nearest-icon queries over a fixed set of icons.
type Resolver struct {
	tree   *rtreego.Rtree
	radius float64
}

func NewResolver(icons []topology.Icon, radiusMeters float64) *Resolver {
	if radiusMeters <= 0 {
		radiusMeters = DefaultRadiusMeters
	}
	objs := make([]rtreego.Spatial, 0, len(icons))
	for i, ic := range icons {
		objs = append(objs, &indexedIcon{
			icon:  ic,
			order: i,
			rect:  rtreego.Point{ic.Lat, ic.Lng}.ToRect(1e-9),
		})
	}
	return &Resolver{
		tree:   rtreego.NewTree(2, 25, 50, objs...),
		radius: radiusMeters,
	}
}

// FindNearestIcon returns the closest icon strictly within the radius of p. Equal
// distances resolve to the icon that comes first in store order. Icons whose id is
// listed in exclude are skipped.
func (r *Resolver) FindNearestIcon(p geo.Point, exclude ...string) (topology.Icon, bool) {
	dLat, dLng := geo.BoundingDegrees(p, r.radius)
	box, err := rtreego.NewRect(rtreego.Point{p.Lat - dLat, p.Lng - dLng}, []float64{2 * dLat, 2 * dLng})
	if err != nil {
		return topology.Icon{}, false
	}

	var (
		best     *indexedIcon
		bestDist float64
	)
	for _, obj := range r.tree.SearchIntersect(box) {
		cand := obj.(*indexedIcon)
		if excluded(cand.icon.ID, exclude) {
			continue
		}
		d := geo.DistanceMeters(p, cand.icon.Point())
		if d >= r.radius {
			continue
		}
		if best == nil || d < bestDist || (d == bestDist && cand.order < best.order) {
			best = cand
			bestDist = d
		}
	}
	if best == nil {
		return topology.Icon{}, false
	}
	return best.icon, true
}

func (r *Resolver) IsSnappedToIcon(p geo.Point) bool {
	_, ok := r.FindNearestIcon(p)
	return ok
}

// Finder adapts the resolver to topology.Store.Relink.
func (r *Resolver) Finder() func(geo.Point) (string, bool) {
	return func(p geo.Point) (string, bool) {
		ic, ok := r.FindNearestIcon(p)
		return ic.ID, ok
	}
}

func excluded(id string, exclude []string) bool {
	for _, e := range exclude {
		if e == id {
			return true
		}
	}
	return false
}
