package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
	"github.com/couchcryptid/incident-risk-service/internal/store"
)

var t0 = time.Date(2016, time.July, 1, 0, 0, 0, 0, time.UTC)

func testKernel() Kernel {
	return Kernel{TimeDecayDays: 30, BandwidthKm: 200, Background: 0.0001, MinWeight: 1}
}

func at(lat, lon float64) domain.Point { return domain.Point{Lat: lat, Lon: lon} }

func inc(id string, p domain.Point, when time.Time, severity int) domain.Incident {
	return domain.Incident{ID: id, Location: p, OccurredAt: when, Severity: severity, SeverityKnown: true}
}

func snapshot(t *testing.T, incs ...domain.Incident) *store.Snapshot {
	t.Helper()
	s, err := store.Build("test", incs, 1, 1)
	require.NoError(t, err)
	return s
}

func TestKernel_NoFutureLeakage(t *testing.T) {
	k := testKernel()
	future := inc("f", at(0, 0), t0.Add(time.Second), 50)

	assert.Equal(t, 0.0, k.Contribution(&future, at(0, 0), t0))
	assert.Equal(t, 0.0, k.Contribution(&future, at(1, 1), t0.Add(-365*Day)))
	assert.Equal(t, 0.0, k.Temporal(-0.5))
}

func TestKernel_PeakAndDecay(t *testing.T) {
	k := testKernel()
	i := inc("a", at(10, 10), t0, 3)

	assert.Equal(t, 3.0, k.Contribution(&i, at(10, 10), t0))
	assert.InDelta(t, 3*math.Exp(-1), k.Contribution(&i, at(10, 10), t0.Add(30*Day)), 1e-12)

	// One bandwidth away the spatial factor is e^-1.
	assert.InDelta(t, math.Exp(-1), k.Spatial(200), 1e-12)

	near := k.Contribution(&i, at(10, 10.5), t0.Add(Day))
	far := k.Contribution(&i, at(10, 11), t0.Add(Day))
	assert.Greater(t, near, far)
	assert.Greater(t, far, 0.0)
}

func TestKernel_Weight(t *testing.T) {
	k := testKernel()
	tests := []struct {
		name string
		inc  domain.Incident
		want float64
	}{
		{"fatalities", domain.Incident{Severity: 7, SeverityKnown: true}, 7},
		{"zero fatalities floored", domain.Incident{Severity: 0, SeverityKnown: true}, 1},
		{"unknown severity", domain.Incident{}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, k.Weight(&tt.inc))
		})
	}

	k.MinWeight = 0.5
	assert.Equal(t, 0.5, k.Weight(&domain.Incident{}))
}

func TestKernel_SeverityRatioIsExact(t *testing.T) {
	k := testKernel()
	p := at(5, 5)
	one := inc("one", at(5.2, 5.1), t0, 1)
	ten := inc("ten", at(5.2, 5.1), t0, 10)
	q := t0.Add(12 * Day)

	assert.InDelta(t, 10.0, k.Contribution(&ten, p, q)/k.Contribution(&one, p, q), 1e-12)
}

func TestKernel_Cutoffs(t *testing.T) {
	k := testKernel()
	eps := 1e-6

	r := k.CutoffRadiusKm(eps)
	assert.InDelta(t, eps, k.Spatial(r), 1e-15)
	assert.Less(t, k.Spatial(r+1), eps)

	lb := k.Lookback(eps)
	assert.InDelta(t, eps, k.Temporal(days(lb)), 1e-12)
	assert.InDelta(t, 30*math.Log(1e6), days(lb), 1e-6)
}

func TestKernel_LookbackCappedForLongMemory(t *testing.T) {
	k := testKernel()
	k.TimeDecayDays = 10_000

	lb := k.Lookback(1e-6)
	assert.Equal(t, MaxLookback, lb)
	assert.Positive(t, lb)
}
