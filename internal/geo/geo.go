// Package geo holds the latitude/longitude helpers shared by the editor.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// Point is a WGS84 coordinate. The JSON shape matches what the map widget emits.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) Orb() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// Valid reports whether p is a finite coordinate inside the WGS84 range.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// DistanceMeters is the haversine great-circle distance between a and b.
func DistanceMeters(a, b Point) float64 {
	return orbgeo.DistanceHaversine(a.Orb(), b.Orb())
}

// Midpoint is the arithmetic mean of the two coordinates, not the geodesic midpoint.
func Midpoint(a, b Point) Point {
	return Point{Lat: (a.Lat + b.Lat) / 2, Lng: (a.Lng + b.Lng) / 2}
}

// Within is the single proximity predicate: strictly closer than meters.
func Within(a, b Point, meters float64) bool {
	return DistanceMeters(a, b) < meters
}

// BoundingDegrees returns the half extents, in degrees of latitude and longitude,
// of a box that contains every point within meters of p.
func BoundingDegrees(p Point, meters float64) (dLat, dLng float64) {
	dLat = meters / metersPerDegree
	cos := math.Cos(p.Lat * math.Pi / 180)
	if cos < 1e-6 {
		return dLat, 180
	}
	dLng = meters / (metersPerDegree * cos)
	if dLng > 180 {
		dLng = 180
	}
	return dLat, dLng
}

// metersPerDegree is one degree of arc on the sphere orb uses for haversine.
const metersPerDegree = orb.EarthRadius * math.Pi / 180
