package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

// IncidentTransformer implements Transformer using domain parsing with
// optional geocoding of rows that lack coordinates.
type IncidentTransformer struct {
	geocoder domain.Geocoder
	logger   *slog.Logger
}

// NewTransformer creates an IncidentTransformer. Pass a nil geocoder to
// disable geocoding enrichment.
func NewTransformer(geocoder domain.Geocoder, logger *slog.Logger) *IncidentTransformer {
	return &IncidentTransformer{
		geocoder: geocoder,
		logger:   logger,
	}
}

func (t *IncidentTransformer) Transform(ctx context.Context, raw domain.RawRecord) (domain.Incident, error) {
	raw, _ = domain.EnrichWithGeocoding(ctx, raw, t.geocoder, t.logger)
	return domain.ParseRawRecord(raw)
}
