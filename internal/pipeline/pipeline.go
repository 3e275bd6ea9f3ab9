// Package pipeline turns a dataset source into validated incidents ready to be
// indexed into an event store snapshot.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
	"github.com/couchcryptid/incident-risk-service/internal/observability"
)

// Source reads every raw row of a dataset.
type Source interface {
	Name() string
	Records(ctx context.Context) ([]domain.RawRecord, error)
}

// Transformer converts a raw row into an incident.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawRecord) (domain.Incident, error)
}

// Stats summarizes one ingestion run.
type Stats struct {
	Read     int
	Accepted int
	Skipped  map[string]int // by skip reason
}

// Result is the output of Ingest.
type Result struct {
	Incidents []domain.Incident
	Stats     Stats
}

// Pipeline orchestrates the extract-transform loop of one dataset load.
type Pipeline struct {
	source      Source
	transformer Transformer
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// New creates a Pipeline with the given stages and observability.
func New(s Source, t Transformer, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		source:      s,
		transformer: t,
		logger:      logger,
		metrics:     metrics,
	}
}

// Name identifies the underlying source.
func (p *Pipeline) Name() string { return p.source.Name() }

// Load runs Ingest and returns only the incidents.
func (p *Pipeline) Load(ctx context.Context) ([]domain.Incident, error) {
	res, err := p.Ingest(ctx)
	if err != nil {
		return nil, err
	}
	return res.Incidents, nil
}

// Ingest reads the source, transforms every row and drops rows that fail
// validation or repeat an earlier ID. A source with no usable rows yields an
// IngestionError of kind no_valid_rows.
func (p *Pipeline) Ingest(ctx context.Context) (Result, error) {
	start := time.Now()

	raws, err := p.source.Records(ctx)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Incidents: make([]domain.Incident, 0, len(raws)),
		Stats:     Stats{Read: len(raws), Skipped: map[string]int{}},
	}
	seen := make(map[string]struct{}, len(raws))

	for i := range raws {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}

		inc, err := p.transformer.Transform(ctx, raws[i])
		if err == nil {
			if _, dup := seen[inc.ID]; dup {
				err = &domain.RecordError{Line: raws[i].Line, Reason: domain.ReasonDuplicateID, Detail: inc.ID}
			}
		}
		if err != nil {
			p.skip(&res.Stats, err)
			continue
		}
		seen[inc.ID] = struct{}{}
		res.Incidents = append(res.Incidents, inc)
	}

	res.Stats.Accepted = len(res.Incidents)
	p.metrics.IngestRows.WithLabelValues("accepted").Add(float64(res.Stats.Accepted))
	for reason, n := range res.Stats.Skipped {
		p.metrics.IngestRows.WithLabelValues(reason).Add(float64(n))
	}

	p.logger.Info("dataset ingested",
		"source", p.source.Name(),
		"read", res.Stats.Read,
		"accepted", res.Stats.Accepted,
		"skipped", skippedAttrs(res.Stats.Skipped),
		"duration", time.Since(start),
	)

	if res.Stats.Accepted == 0 {
		return Result{}, &domain.IngestionError{
			Kind:   domain.IngestNoValidRows,
			Source: p.source.Name(),
			Err:    fmt.Errorf("%d rows read, none usable", res.Stats.Read),
		}
	}
	return res, nil
}

func (p *Pipeline) skip(stats *Stats, err error) {
	reason := "invalid"
	var re *domain.RecordError
	if errors.As(err, &re) {
		reason = re.Reason
	}
	stats.Skipped[reason]++
	p.logger.Debug("row skipped", "source", p.source.Name(), "reason", reason, "error", err)
}

func skippedAttrs(skipped map[string]int) slog.Value {
	reasons := make([]string, 0, len(skipped))
	for r := range skipped {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	attrs := make([]slog.Attr, 0, len(reasons))
	for _, r := range reasons {
		attrs = append(attrs, slog.Int(r, skipped[r]))
	}
	return slog.GroupValue(attrs...)
}
