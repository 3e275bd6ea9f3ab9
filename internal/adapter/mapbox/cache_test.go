package mapbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

// --- mock for cache tests ---

type countingGeocoder struct {
	forwardCalls int
	result       domain.GeocodingResult
	err          error
}

func (m *countingGeocoder) ForwardGeocode(_ context.Context, _, _ string) (domain.GeocodingResult, error) {
	m.forwardCalls++
	return m.result, m.err
}

// --- CachedGeocoder tests ---

func TestCachedGeocoder_ForwardCacheHit(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{Lat: 34.5, Lon: 69.2, PlaceName: "Kabul", FormattedAddress: "Kabul, Afghanistan"},
	}
	cached := NewCachedGeocoder(inner, 10, testMetrics())

	r1, err := cached.ForwardGeocode(context.Background(), "Kabul", "Afghanistan")
	require.NoError(t, err)
	assert.Equal(t, "Kabul", r1.PlaceName)

	r2, err := cached.ForwardGeocode(context.Background(), "KABUL", "afghanistan")
	require.NoError(t, err)
	assert.Equal(t, r1, r2)

	assert.Equal(t, 1, inner.forwardCalls, "should only call inner once")
}

func TestCachedGeocoder_DifferentKeysMiss(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{PlaceName: "Place", FormattedAddress: "Place, Iraq"},
	}
	cached := NewCachedGeocoder(inner, 10, testMetrics())

	_, _ = cached.ForwardGeocode(context.Background(), "Baghdad", "Iraq")
	_, _ = cached.ForwardGeocode(context.Background(), "Mosul", "Iraq")
	_, _ = cached.ForwardGeocode(context.Background(), "Mosul", "Syria")

	assert.Equal(t, 3, inner.forwardCalls)
}

func TestCachedGeocoder_EmptyResultNotCached(t *testing.T) {
	inner := &countingGeocoder{}
	cached := NewCachedGeocoder(inner, 10, testMetrics())

	_, _ = cached.ForwardGeocode(context.Background(), "Nowhere", "Iraq")
	_, _ = cached.ForwardGeocode(context.Background(), "Nowhere", "Iraq")

	assert.Equal(t, 2, inner.forwardCalls)
}

func TestCachedGeocoder_ErrorNotCached(t *testing.T) {
	inner := &countingGeocoder{err: errors.New("timeout")}
	cached := NewCachedGeocoder(inner, 10, testMetrics())

	_, err := cached.ForwardGeocode(context.Background(), "Kabul", "Afghanistan")
	require.Error(t, err)

	inner.err = nil
	inner.result = domain.GeocodingResult{FormattedAddress: "Kabul, Afghanistan"}
	r, err := cached.ForwardGeocode(context.Background(), "Kabul", "Afghanistan")
	require.NoError(t, err)
	assert.Equal(t, "Kabul, Afghanistan", r.FormattedAddress)
	assert.Equal(t, 2, inner.forwardCalls)
}
