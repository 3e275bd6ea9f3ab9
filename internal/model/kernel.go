// Package model implements the self-exciting intensity field: the per-incident
// kernel, the estimator summing it over the event store, the forward horizon
// projection onto a grid, and the hotspot ranking of the projected cells.
package model

import (
	"math"
	"time"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

// Day is the kernel's time unit.
const Day = 24 * time.Hour

// MaxLookback bounds every lookback window. It exceeds any incident history
// and keeps window arithmetic within time.Duration.
const MaxLookback = 100_000 * Day

// Kernel is the decaying contribution of one incident:
//
//	weight · exp(-Δt/τ) · exp(-(d/σ)²)
//
// with Δt in days and d the great-circle distance in km.
type Kernel struct {
	TimeDecayDays float64 // τ
	BandwidthKm   float64 // σ
	Background    float64 // μ, added once per intensity evaluation
	MinWeight     float64
}

// Weight is the severity weight of an incident. It is linear in fatalities,
// floored at MinWeight so zero-fatality and unknown-severity incidents still
// contribute.
func (k Kernel) Weight(inc *domain.Incident) float64 {
	if !inc.SeverityKnown {
		return k.MinWeight
	}
	return math.Max(float64(inc.Severity), k.MinWeight)
}

// Temporal is the time decay for an incident ageDays old. Negative ages are
// incidents from the future and decay to exactly 0.
func (k Kernel) Temporal(ageDays float64) float64 {
	if ageDays < 0 {
		return 0
	}
	return math.Exp(-ageDays / k.TimeDecayDays)
}

// Spatial is the Gaussian distance decay.
func (k Kernel) Spatial(distKm float64) float64 {
	r := distKm / k.BandwidthKm
	return math.Exp(-r * r)
}

// Contribution is the kernel value of inc observed at p and t.
func (k Kernel) Contribution(inc *domain.Incident, p domain.Point, t time.Time) float64 {
	dt := t.Sub(inc.OccurredAt)
	if dt < 0 {
		return 0
	}
	return k.contribution(inc, domain.DistanceKm(p, inc.Location), days(dt))
}

func (k Kernel) contribution(inc *domain.Incident, distKm, ageDays float64) float64 {
	return k.Weight(inc) * k.Temporal(ageDays) * k.Spatial(distKm)
}

// CutoffRadiusKm is the distance beyond which the spatial factor drops below eps.
func (k Kernel) CutoffRadiusKm(eps float64) float64 {
	return k.BandwidthKm * math.Sqrt(math.Log(1/eps))
}

// Lookback is the age beyond which the temporal factor drops below eps,
// capped at MaxLookback.
func (k Kernel) Lookback(eps float64) time.Duration {
	return clampDays(k.TimeDecayDays * math.Log(1/eps))
}

func clampDays(d float64) time.Duration {
	if !(d < days(MaxLookback)) {
		return MaxLookback
	}
	return time.Duration(d * float64(Day))
}

func days(d time.Duration) float64 {
	return float64(d) / float64(Day)
}
