package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
	"github.com/couchcryptid/incident-risk-service/internal/model"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Dataset source and refresh triggers.
	GTDPath         string
	GTDEncoding     string
	DatabaseURL     string
	WatchDataset    bool
	RefreshInterval time.Duration

	// Kernel parameters.
	TimeDecayDays      float64
	SpatialBandwidthKm float64
	BackgroundRate     float64
	MinSeverityWeight  float64
	KernelEpsilon      float64
	CutoffRadiusKm     float64
	LookbackDays       float64

	// Projection grid.
	GridResolutionDeg     float64
	GridBounds            domain.Bounds
	IndexCellDeg          float64
	ProjectionStepDays    float64
	ProjectionParallelism int
	ComputeTimeout        time.Duration

	// Prediction cache and output.
	CacheTTL          time.Duration
	CacheSize         int
	MaxOutputCells    int
	MinReportableRisk float64

	DefaultHorizonDays int
	MaxHorizonDays     int
	EvaluationTime     string // empty, "latest", or RFC3339 / YYYY-MM-DD

	PredictRateLimit float64
	PredictRateBurst int

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
	MapboxRateLimit float64

	// Forecast publishing. Disabled when KafkaBrokers is empty.
	KafkaBrokers       []string
	KafkaForecastTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	p := &parser{}
	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		GTDPath:         sharedcfg.EnvOrDefault("GTD_PATH", "/data/gtd.csv"),
		GTDEncoding:     strings.ToLower(sharedcfg.EnvOrDefault("GTD_ENCODING", "latin1")),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		WatchDataset:    p.boolean("WATCH_DATASET", true),
		RefreshInterval: p.duration("REFRESH_INTERVAL", "0", true),

		TimeDecayDays:      p.positive("TIME_DECAY_DAYS", 30),
		SpatialBandwidthKm: p.positive("SPATIAL_BANDWIDTH_KM", 200),
		BackgroundRate:     p.nonNegative("BACKGROUND_RATE", 0.0001),
		MinSeverityWeight:  p.positive("MIN_SEVERITY_WEIGHT", 1),
		KernelEpsilon:      p.positive("KERNEL_EPSILON", 1e-6),
		CutoffRadiusKm:     p.nonNegative("CUTOFF_RADIUS_KM", 0),
		LookbackDays:       p.nonNegative("LOOKBACK_DAYS", 0),

		GridResolutionDeg:     p.positive("GRID_RESOLUTION_DEG", 1),
		GridBounds:            p.bounds("GRID_BOUNDS", "-180,-90,180,90"),
		IndexCellDeg:          p.positive("INDEX_CELL_DEG", 1),
		ProjectionStepDays:    p.positive("PROJECTION_STEP_DAYS", 1),
		ProjectionParallelism: p.integer("PROJECTION_PARALLELISM", runtime.GOMAXPROCS(0)),
		ComputeTimeout:        p.duration("COMPUTE_TIMEOUT", "30s", false),

		CacheTTL:          p.duration("CACHE_TTL", "10m", true),
		CacheSize:         p.integer("CACHE_SIZE", 64),
		MaxOutputCells:    p.integer("MAX_OUTPUT_CELLS", 500),
		MinReportableRisk: p.nonNegative("MIN_REPORTABLE_RISK", 0.01),

		DefaultHorizonDays: p.integer("DEFAULT_HORIZON_DAYS", 90),
		MaxHorizonDays:     p.integer("MAX_HORIZON_DAYS", 365),
		EvaluationTime:     strings.TrimSpace(os.Getenv("EVALUATION_TIME")),

		PredictRateLimit: p.positive("PREDICT_RATE_LIMIT", 20),
		PredictRateBurst: p.integer("PREDICT_RATE_BURST", 40),

		MapboxToken:     os.Getenv("MAPBOX_TOKEN"),
		MapboxTimeout:   p.duration("MAPBOX_TIMEOUT", "5s", false),
		MapboxCacheSize: p.integer("MAPBOX_CACHE_SIZE", 5000),
		MapboxRateLimit: p.positive("MAPBOX_RATE_LIMIT", 10),

		KafkaForecastTopic: sharedcfg.EnvOrDefault("KAFKA_FORECAST_TOPIC", "risk-forecasts"),
	}
	if p.err != nil {
		return nil, p.err
	}

	cfg.MapboxEnabled = cfg.MapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		cfg.MapboxEnabled = v == "true"
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.GTDEncoding {
	case "latin1", "utf8":
	default:
		return fmt.Errorf("invalid GTD_ENCODING %q: want latin1 or utf8", c.GTDEncoding)
	}
	if c.KernelEpsilon >= 1 {
		return errors.New("KERNEL_EPSILON must be below 1")
	}
	if maxDays := float64(model.MaxLookback / model.Day); c.LookbackDays > maxDays {
		return fmt.Errorf("LOOKBACK_DAYS must be at most %.0f", maxDays)
	}
	if c.MaxHorizonDays < 1 {
		return errors.New("MAX_HORIZON_DAYS must be at least 1")
	}
	if c.DefaultHorizonDays < 1 || c.DefaultHorizonDays > c.MaxHorizonDays {
		return fmt.Errorf("DEFAULT_HORIZON_DAYS must be within [1, %d]", c.MaxHorizonDays)
	}
	if c.ProjectionParallelism < 1 {
		return errors.New("PROJECTION_PARALLELISM must be at least 1")
	}
	if c.CacheSize < 1 {
		return errors.New("CACHE_SIZE must be at least 1")
	}
	if c.MaxOutputCells < 1 {
		return errors.New("MAX_OUTPUT_CELLS must be at least 1")
	}
	if c.PredictRateBurst < 1 {
		return errors.New("PREDICT_RATE_BURST must be at least 1")
	}
	if c.MapboxCacheSize < 1 {
		return errors.New("MAPBOX_CACHE_SIZE must be at least 1")
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if c.EvaluationTime != "" && c.EvaluationTime != "latest" {
		if _, err := ParseEvaluationTime(c.EvaluationTime); err != nil {
			return err
		}
	}
	return nil
}

// Lookback is LOOKBACK_DAYS as a duration; zero means derive from the kernel.
func (c *Config) Lookback() time.Duration {
	return time.Duration(c.LookbackDays * float64(model.Day))
}

// ParseEvaluationTime accepts an RFC3339 timestamp or a YYYY-MM-DD date (UTC midnight).
func ParseEvaluationTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid EVALUATION_TIME %q: want RFC3339, YYYY-MM-DD or latest", s)
}

// parser collects the first invalid variable so Load can report it by name.
type parser struct {
	err error
}

func (p *parser) fail(name, value, want string) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %s", name, value, want)
	}
}

func (p *parser) float(name string, def float64) (float64, string, bool) {
	s := os.Getenv(name)
	if s == "" {
		return def, s, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(name, s, "not a number")
		return def, s, false
	}
	return f, s, true
}

func (p *parser) positive(name string, def float64) float64 {
	f, s, ok := p.float(name, def)
	if ok && !(f > 0) {
		p.fail(name, s, "must be positive")
	}
	return f
}

func (p *parser) nonNegative(name string, def float64) float64 {
	f, s, ok := p.float(name, def)
	if ok && !(f >= 0) {
		p.fail(name, s, "must not be negative")
	}
	return f
}

func (p *parser) integer(name string, def int) int {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		p.fail(name, s, "not an integer")
		return def
	}
	return n
}

func (p *parser) boolean(name string, def bool) bool {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(name, s, "not a boolean")
		return def
	}
	return b
}

func (p *parser) duration(name, def string, allowZero bool) time.Duration {
	s := sharedcfg.EnvOrDefault(name, def)
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		p.fail(name, s, "not a positive duration")
		return 0
	}
	return d
}

// bounds parses "minLon,minLat,maxLon,maxLat", the GeoJSON bbox order.
func (p *parser) bounds(name, def string) domain.Bounds {
	s := sharedcfg.EnvOrDefault(name, def)
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		p.fail(name, s, "want minLon,minLat,maxLon,maxLat")
		return domain.Bounds{}
	}
	var v [4]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			p.fail(name, s, "want minLon,minLat,maxLon,maxLat")
			return domain.Bounds{}
		}
		v[i] = f
	}
	b := domain.Bounds{MinLon: v[0], MinLat: v[1], MaxLon: v[2], MaxLat: v[3]}
	if !(domain.Point{Lat: b.MinLat, Lon: b.MinLon}).Valid() || !(domain.Point{Lat: b.MaxLat, Lon: b.MaxLon}).Valid() ||
		b.MinLat >= b.MaxLat || b.MinLon >= b.MaxLon {
		p.fail(name, s, "not a valid bounding box")
	}
	return b
}
