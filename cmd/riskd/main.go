// Command riskd serves historical incidents and forward risk predictions
// over HTTP, reloading the event store when the dataset changes.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/incident-risk-service/internal/adapter/http"
	"github.com/couchcryptid/incident-risk-service/internal/adapter/gtd"
	kafkaadapter "github.com/couchcryptid/incident-risk-service/internal/adapter/kafka"
	"github.com/couchcryptid/incident-risk-service/internal/adapter/mapbox"
	"github.com/couchcryptid/incident-risk-service/internal/adapter/postgres"
	"github.com/couchcryptid/incident-risk-service/internal/adapter/watch"
	"github.com/couchcryptid/incident-risk-service/internal/config"
	"github.com/couchcryptid/incident-risk-service/internal/domain"
	"github.com/couchcryptid/incident-risk-service/internal/model"
	"github.com/couchcryptid/incident-risk-service/internal/observability"
	"github.com/couchcryptid/incident-risk-service/internal/pipeline"
	"github.com/couchcryptid/incident-risk-service/internal/service"
	"github.com/couchcryptid/incident-risk-service/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, cfg.MapboxRateLimit, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	var source pipeline.Source
	watchPath := ""
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer pg.Close()
		source = pg
	} else {
		source = gtd.NewSource(cfg.GTDPath, cfg.GTDEncoding)
		if cfg.WatchDataset {
			watchPath = cfg.GTDPath
		}
	}
	loader := pipeline.New(source, pipeline.NewTransformer(geocoder, logger), logger, metrics)

	grid, err := model.NewGrid(cfg.GridBounds, cfg.GridResolutionDeg)
	if err != nil {
		return err
	}
	kernel := model.Kernel{
		TimeDecayDays: cfg.TimeDecayDays,
		BandwidthKm:   cfg.SpatialBandwidthKm,
		Background:    cfg.BackgroundRate,
		MinWeight:     cfg.MinSeverityWeight,
	}
	estimator := model.NewEstimator(kernel, cfg.KernelEpsilon, cfg.CutoffRadiusKm, cfg.Lookback())

	var publisher service.Publisher
	var writer *kafkaadapter.Writer
	if len(cfg.KafkaBrokers) > 0 {
		writer = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaForecastTopic, logger)
		publisher = writer
		logger.Info("forecast publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaForecastTopic)
	}

	svc, err := service.New(service.Deps{
		Store:  store.NewManager(cfg.IndexCellDeg, logger),
		Loader: loader,
		Projector: &model.Projector{
			Estimator:   estimator,
			Grid:        grid,
			StepDays:    cfg.ProjectionStepDays,
			Parallelism: cfg.ProjectionParallelism,
		},
		Aggregator: model.Aggregator{MaxCells: cfg.MaxOutputCells, MinReportable: cfg.MinReportableRisk},
		Publisher:  publisher,
		Clock:      clockwork.NewRealClock(),
		Metrics:    metrics,
		Logger:     logger,
	}, service.Options{
		DefaultHorizonDays: cfg.DefaultHorizonDays,
		MaxHorizonDays:     cfg.MaxHorizonDays,
		EvaluationTime:     cfg.EvaluationTime,
		ComputeTimeout:     cfg.ComputeTimeout,
		CacheTTL:           cfg.CacheTTL,
		CacheSize:          cfg.CacheSize,
		KernelEpsilon:      cfg.KernelEpsilon,
	})
	if err != nil {
		return err
	}

	logger.Info("model configured",
		"grid_rows", grid.Rows(),
		"grid_cols", grid.Cols(),
		"cutoff_radius_km", estimator.RadiusKm,
		"lookback", estimator.Lookback,
	)

	// The first load is fatal: without a snapshot there is nothing to serve.
	if err := svc.Reload(ctx); err != nil {
		return err
	}

	srv := httpadapter.NewServer(httpadapter.Options{
		Addr:         cfg.HTTPAddr,
		PredictRate:  cfg.PredictRateLimit,
		PredictBurst: cfg.PredictRateBurst,
		WriteTimeout: cfg.ComputeTimeout + cfg.ShutdownTimeout,
	}, svc, metrics, logger)

	var wg sync.WaitGroup

	// Start HTTP server.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start refresh triggers.
	if watchPath != "" || cfg.RefreshInterval > 0 {
		w := watch.New(watchPath, cfg.RefreshInterval, svc.Reload, nil, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				logger.Error("dataset watcher error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	wg.Wait()
	svc.Wait()
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}
