package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
	"github.com/couchcryptid/incident-risk-service/internal/observability"
	"github.com/couchcryptid/incident-risk-service/internal/pipeline"
)

// --- mocks ---

type mockSource struct {
	records []domain.RawRecord
	err     error
}

func (m *mockSource) Name() string { return "mock" }

func (m *mockSource) Records(context.Context) ([]domain.RawRecord, error) {
	return m.records, m.err
}

type mockGeocoder struct {
	results map[string]domain.GeocodingResult
	calls   int
}

func (m *mockGeocoder) ForwardGeocode(_ context.Context, city, _ string) (domain.GeocodingResult, error) {
	m.calls++
	return m.results[city], nil
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func freezeClock(t *testing.T) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })
}

func row(id, year, lat, lon, killed string) domain.RawRecord {
	return domain.RawRecord{
		EventID: id, Year: year, Month: "3", Day: "14",
		Latitude: lat, Longitude: lon,
		Country: "Iraq", City: "Baghdad", AttackType: "Bombing/Explosion",
		Killed: killed,
	}
}

// --- tests ---

func TestPipeline_Ingest_HappyPath(t *testing.T) {
	freezeClock(t)
	src := &mockSource{records: []domain.RawRecord{
		row("1", "2015", "33.3", "44.4", "2"),
		row("2", "2016", "36.3", "43.1", ""),
	}}
	p := pipeline.New(src, pipeline.NewTransformer(nil, slog.Default()), slog.Default(), newTestMetrics())

	res, err := p.Ingest(context.Background())
	require.NoError(t, err)

	want := pipeline.Stats{Read: 2, Accepted: 2, Skipped: map[string]int{}}
	if diff := cmp.Diff(want, res.Stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, res.Incidents, 2)
	assert.Equal(t, "1", res.Incidents[0].ID)
	assert.True(t, res.Incidents[0].SeverityKnown)
	assert.False(t, res.Incidents[1].SeverityKnown)
	assert.Equal(t, "mock", p.Name())
}

func TestPipeline_Ingest_SkipsInvalidRows(t *testing.T) {
	freezeClock(t)
	src := &mockSource{records: []domain.RawRecord{
		row("1", "2015", "33.3", "44.4", "1"),
		row("2", "2015", "", "44.4", "1"),
		row("3", "2015", "95", "44.4", "1"),
		row("4", "2030", "33.3", "44.4", "1"),
		row("5", "", "33.3", "44.4", "1"),
		row("1", "2016", "10", "10", "1"),
	}}
	p := pipeline.New(src, pipeline.NewTransformer(nil, slog.Default()), slog.Default(), newTestMetrics())

	res, err := p.Ingest(context.Background())
	require.NoError(t, err)

	want := pipeline.Stats{Read: 6, Accepted: 1, Skipped: map[string]int{
		domain.ReasonMissingCoordinates: 1,
		domain.ReasonInvalidCoordinates: 1,
		domain.ReasonFutureDate:         1,
		domain.ReasonInvalidDate:        1,
		domain.ReasonDuplicateID:        1,
	}}
	if diff := cmp.Diff(want, res.Stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	// The first occurrence of a duplicated ID wins.
	assert.Equal(t, 2015, res.Incidents[0].OccurredAt.Year())
}

func TestPipeline_Ingest_GeocodesMissingCoordinates(t *testing.T) {
	freezeClock(t)
	missing := row("1", "2015", "", "", "1")
	missing.City = "Mosul"
	geo := &mockGeocoder{results: map[string]domain.GeocodingResult{
		"Mosul": {Lat: 36.34, Lon: 43.13, PlaceName: "Mosul"},
	}}
	src := &mockSource{records: []domain.RawRecord{missing}}
	p := pipeline.New(src, pipeline.NewTransformer(geo, slog.Default()), slog.Default(), newTestMetrics())

	incs, err := p.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, incs, 1)
	assert.Equal(t, domain.Point{Lat: 36.34, Lon: 43.13}, incs[0].Location)
	assert.Equal(t, 1, geo.calls)
}

func TestPipeline_Ingest_NoValidRows(t *testing.T) {
	freezeClock(t)
	src := &mockSource{records: []domain.RawRecord{row("1", "2015", "", "", "1")}}
	p := pipeline.New(src, pipeline.NewTransformer(nil, slog.Default()), slog.Default(), newTestMetrics())

	_, err := p.Ingest(context.Background())

	var ie *domain.IngestionError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, domain.IngestNoValidRows, ie.Kind)
	assert.Equal(t, "mock", ie.Source)
}

func TestPipeline_Ingest_SourceError(t *testing.T) {
	srcErr := &domain.IngestionError{Kind: domain.IngestUnreadable, Source: "mock", Err: errors.New("permission denied")}
	p := pipeline.New(&mockSource{err: srcErr}, pipeline.NewTransformer(nil, slog.Default()), slog.Default(), newTestMetrics())

	_, err := p.Load(context.Background())
	assert.ErrorIs(t, err, srcErr)
}

func TestPipeline_Ingest_Cancelled(t *testing.T) {
	freezeClock(t)
	src := &mockSource{records: []domain.RawRecord{row("1", "2015", "33.3", "44.4", "1")}}
	p := pipeline.New(src, pipeline.NewTransformer(nil, slog.Default()), slog.Default(), newTestMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Ingest(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
