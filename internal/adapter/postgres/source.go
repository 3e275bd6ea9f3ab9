// Package postgres reads incidents from the "events" table the GTD loader
// writes into Postgres.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver

	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

// Every column is cast to text so the mapping does not depend on whether the
// loader stored counts as integers or floats.
const selectEvents = `SELECT eventid::text, year::text, month::text, day::text,
	latitude::text, longitude::text, country, region, attacktype,
	nkill::text, nwound::text
FROM events
ORDER BY year, month, day, eventid`

// Source reads the events table. It implements pipeline.Source.
type Source struct {
	db       *sql.DB
	logger   *slog.Logger
	attempts uint
	delay    time.Duration
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Source, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s := &Source{db: db, logger: logger, attempts: 3, delay: time.Second}

	if err := retry.New(s.retryOptions(ctx)...).Do(func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, &domain.IngestionError{Kind: domain.IngestUnreadable, Source: s.Name(), Err: err}
	}
	return s, nil
}

// Name identifies the source in logs and errors.
func (s *Source) Name() string { return "postgres:events" }

// Close releases the connection pool.
func (s *Source) Close() error { return s.db.Close() }

// Records reads every row of the events table, retrying transient failures.
func (s *Source) Records(ctx context.Context) ([]domain.RawRecord, error) {
	var out []domain.RawRecord
	err := retry.New(s.retryOptions(ctx)...).Do(func() error {
		recs, err := s.query(ctx)
		if err != nil {
			s.logger.Warn("events query failed", "source", s.Name(), "error", err)
			return err
		}
		out = recs
		return nil
	})
	if err != nil {
		return nil, &domain.IngestionError{Kind: domain.IngestUnreadable, Source: s.Name(), Err: err}
	}
	return out, nil
}

func (s *Source) retryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
	}
}

func (s *Source) query(ctx context.Context) ([]domain.RawRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectEvents)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []domain.RawRecord
	for rows.Next() {
		rec, err := scanRecord(rows, len(out)+1)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner, n int) (domain.RawRecord, error) {
	var eventID, year, month, day, lat, lon, country, region, attack, nkill, nwound sql.NullString
	if err := row.Scan(&eventID, &year, &month, &day, &lat, &lon, &country, &region, &attack, &nkill, &nwound); err != nil {
		return domain.RawRecord{}, fmt.Errorf("scan event row %d: %w", n, err)
	}
	return domain.RawRecord{
		EventID:    eventID.String,
		Year:       year.String,
		Month:      month.String,
		Day:        day.String,
		Latitude:   lat.String,
		Longitude:  lon.String,
		Country:    country.String,
		Region:     region.String,
		AttackType: attack.String,
		Killed:     nkill.String,
		Wounded:    nwound.String,
		Line:       n,
	}, nil
}
