package service

import (
	"time"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
	"github.com/couchcryptid/incident-risk-service/internal/model"
)

// Meta describes the model configuration and the active snapshot.
type Meta struct {
	Model              string     `json:"model"`
	DefaultHorizonDays int        `json:"default_horizon_days"`
	MaxHorizonDays     int        `json:"max_horizon_days"`
	EvaluationTime     string     `json:"evaluation_time"`
	StoreVersion       uint64     `json:"store_version"`
	Incidents          int        `json:"incidents"`
	LoadedAt           *time.Time `json:"loaded_at"`
	LatestIncident     *time.Time `json:"latest_incident"`
	Kernel             KernelMeta `json:"kernel"`
	Grid               GridMeta   `json:"grid"`
	Output             OutputMeta `json:"output"`
}

// KernelMeta holds the kernel parameters and the cutoffs derived from them.
type KernelMeta struct {
	TimeDecayDays     float64 `json:"time_decay_days"`
	BandwidthKm       float64 `json:"spatial_bandwidth_km"`
	BackgroundRate    float64 `json:"background_rate"`
	MinSeverityWeight float64 `json:"min_severity_weight"`
	Epsilon           float64 `json:"epsilon"`
	CutoffRadiusKm    float64 `json:"cutoff_radius_km"`
	LookbackDays      float64 `json:"lookback_days"`
}

// GridMeta describes the projection grid.
type GridMeta struct {
	Bounds        domain.Bounds `json:"bounds"`
	ResolutionDeg float64       `json:"resolution_deg"`
	Rows          int           `json:"rows"`
	Cols          int           `json:"cols"`
	StepDays      float64       `json:"step_days"`
}

// OutputMeta holds the limits applied to each prediction's cell list.
type OutputMeta struct {
	MaxCells          int     `json:"max_cells"`
	MinReportableRisk float64 `json:"min_reportable_risk"`
}

// Meta is available before the first load; snapshot fields are then zero.
func (s *Service) Meta() Meta {
	est := s.projector.Estimator
	grid := s.projector.Grid

	evaluation := s.opts.EvaluationTime
	if evaluation == "" {
		evaluation = "now"
	}

	m := Meta{
		Model:              ModelName,
		DefaultHorizonDays: s.opts.DefaultHorizonDays,
		MaxHorizonDays:     s.opts.MaxHorizonDays,
		EvaluationTime:     evaluation,
		Kernel: KernelMeta{
			TimeDecayDays:     est.Kernel.TimeDecayDays,
			BandwidthKm:       est.Kernel.BandwidthKm,
			BackgroundRate:    est.Kernel.Background,
			MinSeverityWeight: est.Kernel.MinWeight,
			Epsilon:           s.opts.KernelEpsilon,
			CutoffRadiusKm:    est.RadiusKm,
			LookbackDays:      float64(est.Lookback) / float64(model.Day),
		},
		Grid: GridMeta{
			Bounds:        grid.Bounds,
			ResolutionDeg: grid.Resolution,
			Rows:          grid.Rows(),
			Cols:          grid.Cols(),
			StepDays:      s.projector.StepDays,
		},
		Output: OutputMeta{
			MaxCells:          s.aggregator.MaxCells,
			MinReportableRisk: s.aggregator.MinReportable,
		},
	}

	if snap := s.store.Current(); snap != nil {
		loaded := snap.LoadedAt()
		latest := snap.Latest()
		m.StoreVersion = snap.Version()
		m.Incidents = snap.Len()
		m.LoadedAt = &loaded
		m.LatestIncident = &latest
	}
	return m
}
