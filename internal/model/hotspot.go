package model

import (
	"sort"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

// Aggregator turns a projection into a bounded, ranked set of risk cells.
type Aggregator struct {
	MaxCells      int
	MinReportable float64
}

// Aggregate keeps cells whose incident-driven intensity is positive and at
// least MinReportable, ranks them by raw intensity (ties by cell ID), keeps at
// most MaxCells, and scores each relative to the top cell so the first score
// is exactly 1. Background alone never makes a cell reportable, whatever the
// horizon.
func (a Aggregator) Aggregate(p *Projection) []domain.RiskCell {
	var ids []domain.CellID
	for i, excited := range p.Excited {
		if excited > 0 && excited >= a.MinReportable && p.Raw[i] > 0 {
			ids = append(ids, domain.CellID(i))
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := p.Raw[ids[i]], p.Raw[ids[j]]
		if ri != rj {
			return ri > rj
		}
		return ids[i] < ids[j]
	})
	if a.MaxCells > 0 && len(ids) > a.MaxCells {
		ids = ids[:a.MaxCells]
	}
	if len(ids) == 0 {
		return []domain.RiskCell{}
	}

	top := p.Raw[ids[0]]
	cells := make([]domain.RiskCell, len(ids))
	for i, id := range ids {
		b := p.Grid.Cell(id)
		cells[i] = domain.RiskCell{
			ID:     id,
			Bounds: b,
			Center: b.Center(),
			Raw:    p.Raw[id],
			Score:  p.Raw[id] / top,
			Weight: p.Weight[id],
		}
	}
	return cells
}
