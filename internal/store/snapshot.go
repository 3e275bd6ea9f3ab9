// Package store holds the immutable, versioned incident snapshots queried by
// the risk model.
package store

import (
	"math"
	"sort"
	"time"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

// kmPerDegreeLat is a deliberately low figure (true value ≈ 111.3 km) so the
// bucket search box always covers the query radius.
const kmPerDegreeLat = 110.0

// Snapshot is an immutable incident arena plus a grid index over it. The arena
// is sorted by (OccurredAt, ID); each bucket lists arena indices in ascending
// order, which makes every bucket time-sorted as well.
type Snapshot struct {
	version   uint64
	loadedAt  time.Time
	incidents []domain.Incident

	cellDeg float64
	rows    int
	cols    int
	buckets map[int][]int32
}

// Build validates incidents and indexes them into a new snapshot. Invalid
// incidents are dropped; an empty result is an IngestionError.
func Build(source string, incidents []domain.Incident, version uint64, cellDeg float64) (*Snapshot, error) {
	if cellDeg <= 0 || cellDeg > 180 {
		cellDeg = 1
	}

	arena := make([]domain.Incident, 0, len(incidents))
	for i := range incidents {
		if incidents[i].Valid() {
			arena = append(arena, incidents[i])
		}
	}
	if len(arena) == 0 {
		return nil, &domain.IngestionError{Kind: domain.IngestNoValidRows, Source: source}
	}

	sort.Slice(arena, func(i, j int) bool {
		if !arena[i].OccurredAt.Equal(arena[j].OccurredAt) {
			return arena[i].OccurredAt.Before(arena[j].OccurredAt)
		}
		return arena[i].ID < arena[j].ID
	})

	s := &Snapshot{
		version:   version,
		loadedAt:  domain.Now(),
		incidents: arena,
		cellDeg:   cellDeg,
		rows:      int(math.Ceil(180 / cellDeg)),
		cols:      int(math.Ceil(360 / cellDeg)),
		buckets:   make(map[int][]int32),
	}
	for i := range arena {
		key := s.bucketKey(s.row(arena[i].Location.Lat), s.col(arena[i].Location.Lon))
		s.buckets[key] = append(s.buckets[key], int32(i))
	}
	return s, nil
}

// Version is the store_version this snapshot was published under.
func (s *Snapshot) Version() uint64 { return s.version }

// LoadedAt is when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Len returns the number of incidents.
func (s *Snapshot) Len() int { return len(s.incidents) }

// Incidents returns the time-ordered arena. Callers must not modify it.
func (s *Snapshot) Incidents() []domain.Incident { return s.incidents }

// Latest returns the timestamp of the most recent incident.
func (s *Snapshot) Latest() time.Time { return s.incidents[len(s.incidents)-1].OccurredAt }

// QueryNear returns copies of all incidents within radiusKm of p whose
// OccurredAt lies in [since, until]. Both bounds are inclusive; order is
// unspecified.
func (s *Snapshot) QueryNear(p domain.Point, radiusKm float64, since, until time.Time) []domain.Incident {
	var out []domain.Incident
	s.VisitNear(p, radiusKm, since, until, func(inc *domain.Incident, _ float64) {
		out = append(out, *inc)
	})
	return out
}

// VisitNear calls fn for every incident QueryNear would return, passing the
// great-circle distance in km. fn must not retain or modify inc.
func (s *Snapshot) VisitNear(p domain.Point, radiusKm float64, since, until time.Time, fn func(inc *domain.Incident, distKm float64)) {
	if radiusKm < 0 || until.Before(since) {
		return
	}

	dLat := radiusKm / kmPerDegreeLat
	minLat := math.Max(p.Lat-dLat, -90)
	maxLat := math.Min(p.Lat+dLat, 90)

	fullLon := minLat <= -90 || maxLat >= 90
	var dLon float64
	if !fullLon {
		widest := math.Max(math.Abs(minLat), math.Abs(maxLat))
		dLon = dLat / math.Cos(widest*math.Pi/180)
		fullLon = dLon >= 180
	}

	rowLo, rowHi := s.row(minLat), s.row(maxLat)
	colLo, colHi := 0, s.cols-1
	if !fullLon {
		colLo = int(math.Floor((p.Lon - dLon + 180) / s.cellDeg))
		colHi = int(math.Floor((p.Lon + dLon + 180) / s.cellDeg))
		if colHi-colLo+1 >= s.cols {
			colLo, colHi = 0, s.cols-1
		}
	}

	for r := rowLo; r <= rowHi; r++ {
		for c := colLo; c <= colHi; c++ {
			bucket := s.buckets[s.bucketKey(r, wrap(c, s.cols))]
			if len(bucket) == 0 {
				continue
			}
			s.visitBucket(bucket, p, radiusKm, since, until, fn)
		}
	}
}

func (s *Snapshot) visitBucket(bucket []int32, p domain.Point, radiusKm float64, since, until time.Time, fn func(*domain.Incident, float64)) {
	start := sort.Search(len(bucket), func(i int) bool {
		return !s.incidents[bucket[i]].OccurredAt.Before(since)
	})
	for _, idx := range bucket[start:] {
		inc := &s.incidents[idx]
		if inc.OccurredAt.After(until) {
			return
		}
		d := domain.DistanceKm(p, inc.Location)
		if d <= radiusKm {
			fn(inc, d)
		}
	}
}

func (s *Snapshot) row(lat float64) int {
	r := int(math.Floor((lat + 90) / s.cellDeg))
	return min(max(r, 0), s.rows-1)
}

func (s *Snapshot) col(lon float64) int {
	return wrap(int(math.Floor((lon+180)/s.cellDeg)), s.cols)
}

func (s *Snapshot) bucketKey(row, col int) int {
	return row*s.cols + col
}

func wrap(c, n int) int {
	c %= n
	if c < 0 {
		c += n
	}
	return c
}
