package domain

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// OrbPoint converts to orb's [lon, lat] ordering.
func (p Point) OrbPoint() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// DistanceKm is the great-circle (haversine) distance between two points.
func DistanceKm(a, b Point) float64 {
	return geo.DistanceHaversine(a.OrbPoint(), b.OrbPoint()) / 1000
}

// ToPolygon returns the rectangle as a closed GeoJSON-ready ring.
func (b Bounds) ToPolygon() orb.Polygon {
	return orb.Bound{
		Min: orb.Point{b.MinLon, b.MinLat},
		Max: orb.Point{b.MaxLon, b.MaxLat},
	}.ToPolygon()
}
