// Command validate checks a GTD dataset the way riskd would ingest it and
// reports schema, coordinate, date, and severity coverage. With -top it also
// lists the highest-risk cells at a fixed evaluation time, using the model
// parameters from the same environment variables riskd reads.
//
// Usage:
//
//	go run ./cmd/validate -gtd data/gtd.csv -encoding latin1 -top 10 -at latest -horizon 90
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/couchcryptid/incident-risk-service/internal/adapter/gtd"
	"github.com/couchcryptid/incident-risk-service/internal/config"
	"github.com/couchcryptid/incident-risk-service/internal/domain"
	"github.com/couchcryptid/incident-risk-service/internal/model"
	"github.com/couchcryptid/incident-risk-service/internal/observability"
	"github.com/couchcryptid/incident-risk-service/internal/pipeline"
	"github.com/couchcryptid/incident-risk-service/internal/store"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	notes  []string
	errors []string
}

func (p *phase) notef(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type options struct {
	path               string
	encoding           string
	maxSkipShare       float64
	maxUnknownSeverity float64
	top                int
	at                 string
	horizon            int
}

func main() {
	var o options
	flag.StringVar(&o.path, "gtd", "", "path to the GTD CSV export")
	flag.StringVar(&o.encoding, "encoding", gtd.EncodingLatin1, "file encoding: latin1 or utf8")
	flag.Float64Var(&o.maxSkipShare, "max-skip-share", 0.2, "fail when more than this share of rows is excluded")
	flag.Float64Var(&o.maxUnknownSeverity, "max-unknown-severity", 0.5, "fail when more than this share of incidents has unknown severity")
	flag.IntVar(&o.top, "top", 0, "list the N highest-risk cells (0 disables)")
	flag.StringVar(&o.at, "at", "latest", "evaluation time for -top: latest, RFC3339 or YYYY-MM-DD")
	flag.IntVar(&o.horizon, "horizon", 90, "horizon in days for -top")
	flag.Parse()

	if o.path == "" {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run(context.Background(), o, os.Stdout))
}

func run(ctx context.Context, o options, out io.Writer) int {
	fmt.Fprintln(out, "=== GTD Dataset Integrity Validation ===")
	fmt.Fprintln(out)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	source := gtd.NewSource(o.path, o.encoding)
	// Metrics are collected but never exported from this command.
	p := pipeline.New(source, pipeline.NewTransformer(nil, logger), logger, observability.NewMetricsForTesting())

	res, err := p.Ingest(ctx)
	if err != nil {
		fmt.Fprintf(out, "FATAL: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateRows(res.Stats, o.maxSkipShare),
		validateSeverity(res.Incidents, o.maxUnknownSeverity),
		validateDates(res.Incidents),
	}
	if o.top > 0 {
		phases = append(phases, listHotspots(ctx, res.Incidents, o))
	}

	allPassed := true
	for _, ph := range phases {
		status := "\033[32mPASS\033[0m"
		if !ph.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(ph.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", ph.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Rows: %d read, %d accepted\n", res.Stats.Read, res.Stats.Accepted)

	for _, ph := range phases {
		if len(ph.notes) == 0 && ph.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", ph.name)
		for _, n := range ph.notes {
			fmt.Fprintf(out, "  %s\n", n)
		}
		for i, e := range ph.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

func validateRows(stats pipeline.Stats, maxSkipShare float64) *phase {
	p := &phase{name: "Row integrity (coordinates, dates, ids)"}

	reasons := make([]string, 0, len(stats.Skipped))
	skipped := 0
	for r, n := range stats.Skipped {
		reasons = append(reasons, r)
		skipped += n
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		p.notef("excluded %-22s %d", r+":", stats.Skipped[r])
	}

	if share := ratio(skipped, stats.Read); share > maxSkipShare {
		p.errorf("%.1f%% of rows excluded, above the %.1f%% limit", share*100, maxSkipShare*100)
	}
	return p
}

func validateSeverity(incs []domain.Incident, maxUnknown float64) *phase {
	p := &phase{name: "Severity coverage (nkill)"}

	unknown, zero := 0, 0
	for i := range incs {
		switch {
		case !incs[i].SeverityKnown:
			unknown++
		case incs[i].Severity == 0:
			zero++
		}
	}
	share := ratio(unknown, len(incs))
	p.notef("unknown severity: %d (%.1f%%), weighted at the minimum severity weight", unknown, share*100)
	p.notef("zero fatalities:  %d (%.1f%%)", zero, ratio(zero, len(incs))*100)
	if share > maxUnknown {
		p.errorf("%.1f%% of incidents have unknown severity, above the %.1f%% limit", share*100, maxUnknown*100)
	}
	return p
}

func validateDates(incs []domain.Incident) *phase {
	p := &phase{name: "Date coverage"}
	if len(incs) == 0 {
		p.errorf("no incidents")
		return p
	}

	earliest, latest := incs[0].OccurredAt, incs[0].OccurredAt
	perYear := map[int]int{}
	for i := range incs {
		t := incs[i].OccurredAt
		if t.Before(earliest) {
			earliest = t
		}
		if t.After(latest) {
			latest = t
		}
		perYear[t.Year()]++
	}
	p.notef("range: %s .. %s", earliest.Format(time.DateOnly), latest.Format(time.DateOnly))

	for y := earliest.Year(); y <= latest.Year(); y++ {
		if perYear[y] == 0 {
			p.notef("no incidents in %d", y)
		}
	}
	return p
}

func listHotspots(ctx context.Context, incs []domain.Incident, o options) *phase {
	p := &phase{name: fmt.Sprintf("Top %d hotspots (%d-day horizon)", o.top, o.horizon)}

	cfg, err := config.Load()
	if err != nil {
		p.errorf("model configuration: %v", err)
		return p
	}
	snap, err := store.Build(o.path, incs, 1, cfg.IndexCellDeg)
	if err != nil {
		p.errorf("build event store: %v", err)
		return p
	}

	ref := snap.Latest()
	if o.at != "latest" {
		if ref, err = config.ParseEvaluationTime(o.at); err != nil {
			p.errorf("%v", err)
			return p
		}
	}

	grid, err := model.NewGrid(cfg.GridBounds, cfg.GridResolutionDeg)
	if err != nil {
		p.errorf("grid: %v", err)
		return p
	}
	kernel := model.Kernel{
		TimeDecayDays: cfg.TimeDecayDays,
		BandwidthKm:   cfg.SpatialBandwidthKm,
		Background:    cfg.BackgroundRate,
		MinWeight:     cfg.MinSeverityWeight,
	}
	projector := &model.Projector{
		Estimator:   model.NewEstimator(kernel, cfg.KernelEpsilon, cfg.CutoffRadiusKm, cfg.Lookback()),
		Grid:        grid,
		StepDays:    cfg.ProjectionStepDays,
		Parallelism: cfg.ProjectionParallelism,
	}
	proj, err := projector.Project(ctx, snap, ref, o.horizon)
	if err != nil {
		p.errorf("projection: %v", err)
		return p
	}
	cells := model.Aggregator{MaxCells: o.top, MinReportable: cfg.MinReportableRisk}.Aggregate(proj)
	if len(cells) == 0 {
		p.errorf("no cell reaches the minimum reportable risk %g", cfg.MinReportableRisk)
		return p
	}

	p.notef("evaluated at %s", ref.Format(time.RFC3339))
	for i, c := range cells {
		p.notef("%2d. cell %-6d (%7.2f, %7.2f)  risk %.3f  raw %.1f  weight %.2f",
			i+1, c.ID, c.Center.Lat, c.Center.Lon, c.Score, c.Raw, c.Weight)
	}
	return p
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}
