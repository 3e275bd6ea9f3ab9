package model

import (
	"fmt"
	"math"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

// Grid is a fixed lat/lon partition of Bounds into Resolution-degree cells.
// The last row and column are clipped to the bounds. Cell IDs run row-major
// from the south-west corner.
type Grid struct {
	Bounds     domain.Bounds
	Resolution float64
	rows, cols int
}

// NewGrid validates the bounds and resolution.
func NewGrid(b domain.Bounds, resolution float64) (*Grid, error) {
	if !(resolution > 0) || math.IsInf(resolution, 0) {
		return nil, fmt.Errorf("grid resolution %v must be positive", resolution)
	}
	if !(domain.Point{Lat: b.MinLat, Lon: b.MinLon}).Valid() || !(domain.Point{Lat: b.MaxLat, Lon: b.MaxLon}).Valid() {
		return nil, fmt.Errorf("grid bounds %+v outside valid coordinates", b)
	}
	if b.MinLat >= b.MaxLat || b.MinLon >= b.MaxLon {
		return nil, fmt.Errorf("grid bounds %+v are empty", b)
	}
	return &Grid{
		Bounds:     b,
		Resolution: resolution,
		rows:       cellsAlong(b.MaxLat-b.MinLat, resolution),
		cols:       cellsAlong(b.MaxLon-b.MinLon, resolution),
	}, nil
}

// cellsAlong tolerates float noise so 360/0.1 does not gain a sliver cell.
func cellsAlong(span, res float64) int {
	return int(math.Ceil(span/res - 1e-9))
}

// Len is the number of cells.
func (g *Grid) Len() int { return g.rows * g.cols }

// Rows is the number of latitude bands.
func (g *Grid) Rows() int { return g.rows }

// Cols is the number of longitude bands.
func (g *Grid) Cols() int { return g.cols }

// Cell returns the rectangle of cell id.
func (g *Grid) Cell(id domain.CellID) domain.Bounds {
	row, col := int(id)/g.cols, int(id)%g.cols
	minLat := g.Bounds.MinLat + float64(row)*g.Resolution
	minLon := g.Bounds.MinLon + float64(col)*g.Resolution
	return domain.Bounds{
		MinLat: minLat,
		MinLon: minLon,
		MaxLat: math.Min(minLat+g.Resolution, g.Bounds.MaxLat),
		MaxLon: math.Min(minLon+g.Resolution, g.Bounds.MaxLon),
	}
}

// Center is the representative point of cell id.
func (g *Grid) Center(id domain.CellID) domain.Point {
	return g.Cell(id).Center()
}

// Locate returns the cell containing p, or false if p is outside the grid.
func (g *Grid) Locate(p domain.Point) (domain.CellID, bool) {
	b := g.Bounds
	if p.Lat < b.MinLat || p.Lat > b.MaxLat || p.Lon < b.MinLon || p.Lon > b.MaxLon {
		return 0, false
	}
	row := min(int((p.Lat-b.MinLat)/g.Resolution), g.rows-1)
	col := min(int((p.Lon-b.MinLon)/g.Resolution), g.cols-1)
	return domain.CellID(row*g.cols + col), true
}
