package http

import (
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

// eventsCollection renders incidents as Point features. Unknown severity is
// encoded as null.
func eventsCollection(incs []domain.Incident) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = make([]*geojson.Feature, 0, len(incs))
	for i := range incs {
		inc := &incs[i]
		f := geojson.NewFeature(inc.Location.OrbPoint())
		f.ID = inc.ID

		var severity any
		if inc.SeverityKnown {
			severity = inc.Severity
		}
		f.Properties = geojson.Properties{
			"id":          inc.ID,
			"date":        inc.OccurredAt.Format(time.DateOnly),
			"severity":    severity,
			"attack_type": inc.AttackType,
			"country":     inc.Country,
			"region":      inc.Region,
			"city":        inc.City,
		}
		fc.Append(f)
	}
	return fc
}

// cellsCollection renders risk cells as rectangular Polygon features in rank order.
func cellsCollection(cells []domain.RiskCell) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = make([]*geojson.Feature, 0, len(cells))
	for _, c := range cells {
		f := geojson.NewFeature(c.Bounds.ToPolygon())
		f.ID = int(c.ID)
		f.Properties = geojson.Properties{
			"cell_id":       int(c.ID),
			"risk":          c.Score,
			"raw_intensity": c.Raw,
			"weight":        c.Weight,
			"center_lat":    c.Center.Lat,
			"center_lon":    c.Center.Lon,
		}
		fc.Append(f)
	}
	return fc
}
