// Package service answers event and prediction queries against the active
// event store snapshot and coordinates reloads.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/incident-risk-service/internal/cache"
	"github.com/couchcryptid/incident-risk-service/internal/config"
	"github.com/couchcryptid/incident-risk-service/internal/domain"
	"github.com/couchcryptid/incident-risk-service/internal/model"
	"github.com/couchcryptid/incident-risk-service/internal/observability"
	"github.com/couchcryptid/incident-risk-service/internal/store"
)

// ModelName identifies the prediction model in metadata responses.
const ModelName = "hawkes-kernel"

// EvaluationLatest pins the reference time to the newest incident in the store.
const EvaluationLatest = "latest"

// Publisher receives the default-horizon forecast after every successful reload.
type Publisher interface {
	PublishForecast(ctx context.Context, pred domain.Prediction) error
}

// Options are the query and caching settings of a Service.
type Options struct {
	DefaultHorizonDays int
	MaxHorizonDays     int
	// EvaluationTime is empty (clock now), "latest", or an RFC3339 / YYYY-MM-DD time.
	EvaluationTime string
	ComputeTimeout time.Duration
	CacheTTL       time.Duration
	CacheSize      int
	KernelEpsilon  float64
}

// Deps are the collaborators of a Service. Publisher and Clock are optional.
type Deps struct {
	Store      *store.Manager
	Loader     store.Loader
	Projector  *model.Projector
	Aggregator model.Aggregator
	Publisher  Publisher
	Clock      clockwork.Clock
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

// EventSet is the full incident list of one snapshot.
type EventSet struct {
	StoreVersion uint64
	LoadedAt     time.Time
	Incidents    []domain.Incident
}

type cacheKey struct {
	version uint64
	horizon int
}

// Service is safe for concurrent use. Returned predictions are shared with the
// cache and must not be modified.
type Service struct {
	store      *store.Manager
	loader     store.Loader
	projector  *model.Projector
	aggregator model.Aggregator
	publisher  Publisher
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger

	opts      Options
	fixedRef  time.Time
	useLatest bool

	cache   *cache.LRU[cacheKey, domain.Prediction]
	flights singleflight.Group
	bg      sync.WaitGroup
}

// New validates the options and builds a Service with an empty cache.
func New(d Deps, o Options) (*Service, error) {
	if o.MaxHorizonDays < 1 {
		return nil, fmt.Errorf("max horizon %d must be at least 1", o.MaxHorizonDays)
	}
	if o.DefaultHorizonDays < 1 || o.DefaultHorizonDays > o.MaxHorizonDays {
		return nil, fmt.Errorf("default horizon %d outside [1, %d]", o.DefaultHorizonDays, o.MaxHorizonDays)
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}

	s := &Service{
		store:      d.Store,
		loader:     d.Loader,
		projector:  d.Projector,
		aggregator: d.Aggregator,
		publisher:  d.Publisher,
		clock:      d.Clock,
		metrics:    d.Metrics,
		logger:     d.Logger,
		opts:       o,
		cache:      cache.New[cacheKey, domain.Prediction](o.CacheSize, o.CacheTTL, d.Clock),
	}

	switch o.EvaluationTime {
	case "":
	case EvaluationLatest:
		s.useLatest = true
	default:
		t, err := config.ParseEvaluationTime(o.EvaluationTime)
		if err != nil {
			return nil, err
		}
		s.fixedRef = t
	}
	return s, nil
}

// Events returns every incident in the active snapshot.
func (s *Service) Events(ctx context.Context) (EventSet, error) {
	if err := ctx.Err(); err != nil {
		return EventSet{}, err
	}
	snap := s.store.Current()
	if snap == nil {
		return EventSet{}, domain.ErrNotReady
	}
	return EventSet{
		StoreVersion: snap.Version(),
		LoadedAt:     snap.LoadedAt(),
		Incidents:    snap.Incidents(),
	}, nil
}

// ParseHorizon converts a query parameter to a horizon. An empty value means
// the default horizon; anything else must be an integer in [1, max].
func (s *Service) ParseHorizon(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.opts.DefaultHorizonDays, nil
	}
	h, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &domain.ValidationError{Field: "horizon_days", Value: raw, Reason: "must be an integer"}
	}
	if err := s.validateHorizon(h); err != nil {
		return 0, err
	}
	return h, nil
}

func (s *Service) validateHorizon(h int) error {
	if h < 1 {
		return &domain.ValidationError{Field: "horizon_days", Value: strconv.Itoa(h), Reason: "must be at least 1"}
	}
	if h > s.opts.MaxHorizonDays {
		return &domain.ValidationError{
			Field:  "horizon_days",
			Value:  strconv.Itoa(h),
			Reason: fmt.Sprintf("must be at most %d", s.opts.MaxHorizonDays),
		}
	}
	return nil
}

// Predict returns the risk surface for the horizon against the active
// snapshot. Identical queries against the same store_version are answered
// from the cache. Concurrent misses share one computation, which runs to
// completion within ComputeTimeout even if every caller gives up.
func (s *Service) Predict(ctx context.Context, horizonDays int) (domain.Prediction, error) {
	pred, err := s.predict(ctx, horizonDays)
	s.metrics.PredictRequests.WithLabelValues(outcome(err)).Inc()
	return pred, err
}

func (s *Service) predict(ctx context.Context, horizonDays int) (domain.Prediction, error) {
	if err := s.validateHorizon(horizonDays); err != nil {
		return domain.Prediction{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Prediction{}, err
	}
	snap := s.store.Current()
	if snap == nil {
		return domain.Prediction{}, domain.ErrNotReady
	}

	key := cacheKey{version: snap.Version(), horizon: horizonDays}
	if pred, ok := s.cache.Get(key); ok {
		s.metrics.PredictCache.WithLabelValues("hit").Inc()
		return pred, nil
	}

	flight := fmt.Sprintf("%d/%d", key.version, key.horizon)
	ch := s.flights.DoChan(flight, func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ComputeTimeout)
		defer cancel()
		return s.compute(cctx, snap, horizonDays)
	})

	select {
	case <-ctx.Done():
		return domain.Prediction{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			s.metrics.PredictCache.WithLabelValues("shared").Inc()
		} else {
			s.metrics.PredictCache.WithLabelValues("miss").Inc()
		}
		if res.Err != nil {
			return domain.Prediction{}, res.Err
		}
		return res.Val.(domain.Prediction), nil
	}
}

func (s *Service) compute(ctx context.Context, snap *store.Snapshot, horizonDays int) (domain.Prediction, error) {
	ref := s.referenceTime(snap)
	start := time.Now()

	proj, err := s.projector.Project(ctx, snap, ref, horizonDays)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("projection timed out",
				"store_version", snap.Version(),
				"horizon_days", horizonDays,
				"budget", s.opts.ComputeTimeout,
			)
			return domain.Prediction{}, &domain.ComputationTimeoutError{Budget: s.opts.ComputeTimeout}
		}
		return domain.Prediction{}, err
	}
	s.metrics.ProjectionDuration.Observe(time.Since(start).Seconds())

	cells := s.aggregator.Aggregate(proj)
	s.metrics.CellsEmitted.Observe(float64(len(cells)))

	pred := domain.Prediction{
		StoreVersion:  snap.Version(),
		HorizonDays:   horizonDays,
		ReferenceTime: ref,
		GeneratedAt:   s.clock.Now().UTC(),
		Cells:         cells,
	}
	s.cache.Put(cacheKey{version: snap.Version(), horizon: horizonDays}, pred)

	s.logger.Debug("prediction computed",
		"store_version", pred.StoreVersion,
		"horizon_days", horizonDays,
		"reference_time", ref.Format(time.RFC3339),
		"cells", len(cells),
		"duration", time.Since(start),
	)
	return pred, nil
}

func (s *Service) referenceTime(snap *store.Snapshot) time.Time {
	switch {
	case !s.fixedRef.IsZero():
		return s.fixedRef
	case s.useLatest:
		return snap.Latest()
	default:
		return s.clock.Now().UTC()
	}
}

// Reload rebuilds the event store from the loader. On success cached
// predictions are dropped and, when a publisher is configured, the
// default-horizon forecast is published in the background. On failure the
// previous snapshot keeps serving.
func (s *Service) Reload(ctx context.Context) error {
	start := time.Now()
	snap, err := s.store.Reload(ctx, s.loader)
	s.metrics.ReloadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.Reloads.WithLabelValues("error").Inc()
		return err
	}

	s.cache.Purge()
	s.metrics.Reloads.WithLabelValues("success").Inc()
	s.metrics.IncidentsLoaded.Set(float64(snap.Len()))
	s.metrics.StoreVersion.Set(float64(snap.Version()))

	if s.publisher != nil {
		s.publish(context.WithoutCancel(ctx))
	}
	return nil
}

func (s *Service) publish(ctx context.Context) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()

		pred, err := s.Predict(ctx, s.opts.DefaultHorizonDays)
		if err == nil {
			pctx, cancel := context.WithTimeout(ctx, s.opts.ComputeTimeout)
			err = s.publisher.PublishForecast(pctx, pred)
			cancel()
		}
		if err != nil {
			s.metrics.ForecastsEmitted.WithLabelValues("error").Inc()
			s.logger.Error("forecast publish failed", "error", err)
			return
		}
		s.metrics.ForecastsEmitted.WithLabelValues("success").Inc()
		s.logger.Info("forecast published",
			"store_version", pred.StoreVersion,
			"horizon_days", pred.HorizonDays,
			"cells", len(pred.Cells),
		)
	}()
}

// Wait blocks until background forecast publishing has finished.
func (s *Service) Wait() {
	s.bg.Wait()
}

// CheckReadiness reports ErrNotReady until the first snapshot is serving.
func (s *Service) CheckReadiness(_ context.Context) error {
	if s.store.Current() == nil {
		return domain.ErrNotReady
	}
	return nil
}

func outcome(err error) string {
	var ve *domain.ValidationError
	var te *domain.ComputationTimeoutError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &ve):
		return "invalid"
	case errors.As(err, &te):
		return "timeout"
	case errors.Is(err, domain.ErrNotReady):
		return "not_ready"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
