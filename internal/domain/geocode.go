package domain

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
)

// Geocode outcomes reported by EnrichWithGeocoding.
const (
	GeoSourceOriginal = "original"
	GeoSourceForward  = "forward"
	GeoSourceFailed   = "failed"
	GeoSourceNotFound = "not_found"
)

// EnrichWithGeocoding fills missing coordinates on a raw record by forward
// geocoding its city and country. If geocoder is nil, the record already has
// coordinates, or there is no place name to look up, the record is returned
// unchanged. Failures degrade gracefully: the record keeps its missing
// coordinates and is later excluded by ParseRawRecord.
func EnrichWithGeocoding(ctx context.Context, rec RawRecord, geocoder Geocoder, logger *slog.Logger) (RawRecord, string) {
	if geocoder == nil || rec.HasCoordinates() {
		return rec, GeoSourceOriginal
	}

	city := strings.TrimSpace(rec.City)
	country := strings.TrimSpace(rec.Country)
	if city == "" || strings.EqualFold(city, "unknown") || country == "" {
		return rec, GeoSourceOriginal
	}

	result, err := geocoder.ForwardGeocode(ctx, city, country)
	if err != nil {
		logger.Warn("forward geocoding failed",
			"event_id", rec.EventID,
			"city", city,
			"country", country,
			"error", err,
		)
		return rec, GeoSourceFailed
	}
	if result.Lat == 0 && result.Lon == 0 {
		return rec, GeoSourceNotFound
	}

	rec.Latitude = strconv.FormatFloat(result.Lat, 'f', -1, 64)
	rec.Longitude = strconv.FormatFloat(result.Lon, 'f', -1, 64)
	return rec, GeoSourceForward
}
