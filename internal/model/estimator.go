package model

import (
	"time"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

// EventIndex is the spatial query surface of an event store snapshot.
type EventIndex interface {
	VisitNear(p domain.Point, radiusKm float64, since, until time.Time, fn func(inc *domain.Incident, distKm float64))
}

// Estimator sums kernel contributions over the incidents within the cutoff
// radius and lookback window of a query point.
type Estimator struct {
	Kernel   Kernel
	RadiusKm float64
	Lookback time.Duration
}

// NewEstimator derives the cutoffs from eps unless radiusKm or lookback
// override them with a positive value. The lookback never exceeds MaxLookback.
func NewEstimator(k Kernel, eps, radiusKm float64, lookback time.Duration) *Estimator {
	if radiusKm <= 0 {
		radiusKm = k.CutoffRadiusKm(eps)
	}
	if lookback <= 0 {
		lookback = k.Lookback(eps)
	}
	lookback = min(lookback, MaxLookback)
	return &Estimator{Kernel: k, RadiusKm: radiusKm, Lookback: lookback}
}

// Intensity returns μ plus the summed contribution of every qualifying
// incident at p and t. Incidents after t contribute nothing.
func (e *Estimator) Intensity(idx EventIndex, p domain.Point, t time.Time) float64 {
	return e.IntensityAsOf(idx, p, t, t)
}

// IntensityAsOf is Intensity with the history frozen at asOf: incidents after
// asOf are ignored even when t is later.
func (e *Estimator) IntensityAsOf(idx EventIndex, p domain.Point, t, asOf time.Time) float64 {
	until := t
	if asOf.Before(until) {
		until = asOf
	}

	sum := e.Kernel.Background
	idx.VisitNear(p, e.RadiusKm, t.Add(-e.Lookback), until, func(inc *domain.Incident, distKm float64) {
		sum += e.Kernel.contribution(inc, distKm, days(t.Sub(inc.OccurredAt)))
	})
	return sum
}
