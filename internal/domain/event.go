package domain

import (
	"math"
	"time"
)

// RawRecord is one unvalidated dataset row. Every field is kept as the source
// rendered it; numeric parsing and validation happen in ParseRawRecord.
type RawRecord struct {
	EventID    string
	Year       string
	Month      string
	Day        string
	Latitude   string
	Longitude  string
	Country    string
	Region     string
	City       string
	AttackType string
	Killed     string // nkill
	Wounded    string // nwound

	// Line is the 1-based source position, used only in diagnostics.
	Line int
}

// Point is a WGS-84 latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point is a finite coordinate on Earth.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Incident is a normalized historical incident. Incidents are created once at
// ingestion and never mutated afterwards.
type Incident struct {
	ID            string    `json:"id"`
	Location      Point     `json:"location"`
	OccurredAt    time.Time `json:"occurred_at"`
	Severity      int       `json:"severity"`
	SeverityKnown bool      `json:"severity_known"`
	Wounded       int       `json:"wounded,omitempty"`
	AttackType    string    `json:"attack_type,omitempty"`
	Country       string    `json:"country,omitempty"`
	Region        string    `json:"region,omitempty"`
	City          string    `json:"city,omitempty"`
}

// Valid reports whether the incident satisfies the store invariants.
func (i *Incident) Valid() bool {
	return i.ID != "" && i.Location.Valid() && !i.OccurredAt.IsZero()
}

// CellID identifies a projection grid cell: row*cols + col.
type CellID int

// Bounds is an axis-aligned lat/lon rectangle.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Center returns the midpoint of the rectangle.
func (b Bounds) Center() Point {
	return Point{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// RiskCell is one reported unit of the predicted risk surface.
type RiskCell struct {
	ID     CellID  `json:"cell_id"`
	Bounds Bounds  `json:"bounds"`
	Center Point   `json:"center"`
	Raw    float64 `json:"raw_intensity"`
	Score  float64 `json:"risk"`
	Weight float64 `json:"weight"`
}

// Prediction is the risk surface produced for one query against one store snapshot.
type Prediction struct {
	StoreVersion  uint64     `json:"store_version"`
	HorizonDays   int        `json:"horizon_days"`
	ReferenceTime time.Time  `json:"reference_time"`
	GeneratedAt   time.Time  `json:"generated_at"`
	Cells         []RiskCell `json:"cells"`
}
