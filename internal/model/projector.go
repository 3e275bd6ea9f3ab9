package model

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

// Projection is the aggregate intensity of every grid cell over a horizon.
// Raw, Excited and Weight are indexed by CellID. Excited is the part of Raw
// contributed by incidents, that is Raw less the background over the horizon.
type Projection struct {
	Grid          *Grid
	ReferenceTime time.Time
	HorizonDays   int
	Raw           []float64
	Excited       []float64
	Weight        []float64
}

// Projector samples the intensity field forward from a reference time for
// every cell of a grid. The history is frozen at the reference time; no
// events are simulated over the horizon.
type Projector struct {
	Estimator   *Estimator
	Grid        *Grid
	StepDays    float64
	Parallelism int
}

// Project returns, for each cell, Σ_k IntensityAsOf(center, ref+k·step, ref)·w_k
// over samples covering [ref, ref+horizon), where w_k is the sample width in
// days. A cancelled context yields its error and no projection.
func (p *Projector) Project(ctx context.Context, idx EventIndex, ref time.Time, horizonDays int) (*Projection, error) {
	if horizonDays < 1 {
		return nil, fmt.Errorf("project: horizon %d days must be positive", horizonDays)
	}

	offsets, widths := p.samples(float64(horizonDays))
	proj := &Projection{
		Grid:          p.Grid,
		ReferenceTime: ref,
		HorizonDays:   horizonDays,
		Raw:           make([]float64, p.Grid.Len()),
		Excited:       make([]float64, p.Grid.Len()),
		Weight:        make([]float64, p.Grid.Len()),
	}

	workers := p.Parallelism
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	cols := p.Grid.Cols()
	for row := range p.Grid.Rows() {
		g.Go(func() error {
			var scratch []candidate
			for col := range cols {
				if err := gctx.Err(); err != nil {
					return err
				}
				id := domain.CellID(row*cols + col)
				c := p.projectCell(idx, id, ref, offsets, widths, scratch[:0])
				proj.Raw[id], proj.Excited[id], proj.Weight[id], scratch = c.raw, c.excited, c.weight, c.scratch
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	return proj, nil
}

// samples returns sample offsets and widths in days covering [0, horizon).
func (p *Projector) samples(horizon float64) (offsets, widths []float64) {
	step := p.StepDays
	if !(step > 0) {
		step = 1
	}
	n := int(math.Ceil(horizon/step - 1e-9))
	offsets = make([]float64, n)
	widths = make([]float64, n)
	for k := range n {
		offsets[k] = float64(k) * step
		widths[k] = math.Min(step, horizon-offsets[k])
	}
	return offsets, widths
}

type candidate struct {
	age    float64 // days before ref
	amount float64 // contribution at ref
	weight float64
}

type cellProjection struct {
	raw, excited, weight float64
	scratch              []candidate
}

// projectCell gathers the cell's candidates once. A candidate of age a
// contributes amount·exp(-o/τ) at offset o while a+o is within the lookback,
// so each sample is a prefix sum over candidates sorted by age.
func (p *Projector) projectCell(idx EventIndex, id domain.CellID, ref time.Time, offsets, widths []float64, cands []candidate) cellProjection {
	est := p.Estimator
	k := est.Kernel
	center := p.Grid.Center(id)

	idx.VisitNear(center, est.RadiusKm, ref.Add(-est.Lookback), ref, func(inc *domain.Incident, distKm float64) {
		age := days(ref.Sub(inc.OccurredAt))
		w := k.Weight(inc)
		cands = append(cands, candidate{age: age, amount: w * k.Temporal(age) * k.Spatial(distKm), weight: w})
	})
	sort.Slice(cands, func(i, j int) bool { return cands[i].age < cands[j].age })

	prefix := make([]float64, len(cands)+1)
	var num float64
	for i, c := range cands {
		prefix[i+1] = prefix[i] + c.amount
		num += c.weight * c.amount
	}

	out := cellProjection{weight: k.MinWeight, scratch: cands}
	lookback := days(est.Lookback)
	for s, o := range offsets {
		if limit := lookback - o; limit >= 0 {
			n := sort.Search(len(cands), func(i int) bool { return cands[i].age > limit })
			out.excited += math.Exp(-o/k.TimeDecayDays) * prefix[n] * widths[s]
		}
		out.raw += k.Background * widths[s]
	}
	out.raw += out.excited

	if total := prefix[len(cands)]; total > 0 {
		out.weight = num / total
	}
	return out
}
