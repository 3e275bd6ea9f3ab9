package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Skip reasons reported by ParseRawRecord. They double as metric label values.
const (
	ReasonMissingCoordinates = "missing_coordinates"
	ReasonInvalidCoordinates = "invalid_coordinates"
	ReasonInvalidDate        = "invalid_date"
	ReasonFutureDate         = "future_date"
	ReasonDuplicateID        = "duplicate_id"
)

// incidentNamespace scopes the UUIDv5 IDs generated for rows without an eventid.
var incidentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://www.start.umd.edu/gtd/"))

// RecordError explains why a raw row was excluded at ingestion.
type RecordError struct {
	Line   int
	Reason string
	Detail string
}

func (e *RecordError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("line %d: %s: %s", e.Line, e.Reason, e.Detail)
}

// ParseRawRecord validates and normalizes one dataset row into an Incident.
// Rows without usable coordinates or a sound date are rejected with a
// *RecordError; unknown severity is kept as SeverityKnown=false.
func ParseRawRecord(rec RawRecord) (Incident, error) {
	loc, err := parseLocation(rec)
	if err != nil {
		return Incident{}, err
	}

	occurred, err := parseDate(rec)
	if err != nil {
		return Incident{}, err
	}

	severity, known := parseCount(rec.Killed)
	wounded, _ := parseCount(rec.Wounded)

	id := strings.TrimSpace(rec.EventID)
	if id == "" {
		id = generateID(rec, loc, occurred)
	}

	return Incident{
		ID:            id,
		Location:      loc,
		OccurredAt:    occurred,
		Severity:      severity,
		SeverityKnown: known,
		Wounded:       wounded,
		AttackType:    strings.TrimSpace(rec.AttackType),
		Country:       strings.TrimSpace(rec.Country),
		Region:        strings.TrimSpace(rec.Region),
		City:          strings.TrimSpace(rec.City),
	}, nil
}

// HasCoordinates reports whether both coordinate columns carry a value other
// than the 0,0 placeholder some exports write for an unknown position.
func (r RawRecord) HasCoordinates() bool {
	lat, lon := strings.TrimSpace(r.Latitude), strings.TrimSpace(r.Longitude)
	if lat == "" || lon == "" {
		return false
	}
	return !(isZero(lat) && isZero(lon))
}

func isZero(s string) bool {
	f, err := strconv.ParseFloat(s, 64)
	return err == nil && f == 0
}

func parseLocation(rec RawRecord) (Point, error) {
	if !rec.HasCoordinates() {
		return Point{}, &RecordError{Line: rec.Line, Reason: ReasonMissingCoordinates}
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(rec.Latitude), 64)
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(rec.Longitude), 64)
	if errLat != nil || errLon != nil {
		return Point{}, &RecordError{Line: rec.Line, Reason: ReasonInvalidCoordinates,
			Detail: rec.Latitude + "," + rec.Longitude}
	}
	p := Point{Lat: lat, Lon: lon}
	if !p.Valid() {
		return Point{}, &RecordError{Line: rec.Line, Reason: ReasonInvalidCoordinates,
			Detail: fmt.Sprintf("%g,%g", lat, lon)}
	}
	return p, nil
}

// parseDate builds a UTC date from GTD's split year/month/day columns. GTD
// writes 0 (or nothing) for an unknown month or day; those fall back to the
// first of the period so year/month granularity survives. Any other
// non-integer value makes the date invalid.
func parseDate(rec RawRecord) (time.Time, error) {
	year, errY := parseInt(rec.Year)
	if errY != nil || year < 1 {
		return time.Time{}, &RecordError{Line: rec.Line, Reason: ReasonInvalidDate, Detail: "year " + rec.Year}
	}
	month, errM := parseDatePart(rec.Month)
	if errM != nil {
		return time.Time{}, &RecordError{Line: rec.Line, Reason: ReasonInvalidDate, Detail: "month " + rec.Month}
	}
	day, errD := parseDatePart(rec.Day)
	if errD != nil {
		return time.Time{}, &RecordError{Line: rec.Line, Reason: ReasonInvalidDate, Detail: "day " + rec.Day}
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, &RecordError{Line: rec.Line, Reason: ReasonInvalidDate,
			Detail: fmt.Sprintf("%d-%d-%d", year, month, day)}
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (Feb 30 -> Mar 2); treat that as invalid.
	if t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, &RecordError{Line: rec.Line, Reason: ReasonInvalidDate,
			Detail: fmt.Sprintf("%d-%d-%d", year, month, day)}
	}
	if t.After(clock.Now()) {
		return time.Time{}, &RecordError{Line: rec.Line, Reason: ReasonFutureDate, Detail: t.Format(time.DateOnly)}
	}
	return t, nil
}

// parseDatePart parses a month or day, mapping the unknown sentinel to 1.
func parseDatePart(s string) (int, error) {
	if strings.TrimSpace(s) == "" {
		return 1, nil
	}
	n, err := parseInt(s)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 1, nil
	}
	return n, nil
}

// parseInt accepts integers and integral floats ("3", "3.0").
func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int(f), nil
}

// parseCount parses a casualty count. Empty, negative or unparseable values
// are reported as unknown.
func parseCount(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := parseInt(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// generateID derives a stable ID for rows the source did not identify, so the
// same row keeps its ID across reloads.
func generateID(rec RawRecord, loc Point, occurred time.Time) string {
	key := fmt.Sprintf("%s|%.4f|%.4f|%s|%s|%s",
		occurred.Format(time.DateOnly), loc.Lat, loc.Lon,
		strings.TrimSpace(rec.AttackType), strings.TrimSpace(rec.City), strings.TrimSpace(rec.Killed))
	return uuid.NewSHA1(incidentNamespace, []byte(key)).String()
}
