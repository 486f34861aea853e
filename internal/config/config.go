// Package config reads process configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Topology and prediction sources.
const (
	SourceCSV      = "csv"
	SourceFile     = "file"
	SourcePostgres = "postgres"
	SourceHTTP     = "http"
)

// Config is the configuration shared by the api and worker processes.
type Config struct {
	Port        string
	Environment string
	LogLevel    zerolog.Level

	TopologySource string
	TopologyCSV    string

	PredictionSource      string
	PredictionsDir        string
	PredictionsURL        string
	PredictionTimeout     time.Duration
	PredictionConcurrency int

	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	PredictionCacheTTL time.Duration

	RouteCacheSize int
	RouteCacheTTL  time.Duration
	MaxRoutes      int

	CORSAllowedOrigins []string
	RequireTLS         bool

	OTelEnabled  bool
	OTLPEndpoint string

	PubSubProjectID    string
	PubSubSubscription string
	WarmModels         []string
}

// LoadDotEnv loads variables from the given files, skipping files that do
// not exist. Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// FromEnv builds a Config from the environment.
func FromEnv() (Config, error) {
	var p parser

	cfg := Config{
		Port:        String("APP_PORT", "8080"),
		Environment: String("APP_ENV", "development"),
		LogLevel:    p.level("LOG_LEVEL", zerolog.InfoLevel),

		TopologySource: strings.ToLower(String("TOPOLOGY_SOURCE", SourceCSV)),
		TopologyCSV:    String("TOPOLOGY_CSV", "traffic_network2.csv"),

		PredictionSource:      strings.ToLower(String("PREDICTION_SOURCE", SourceFile)),
		PredictionsDir:        String("PREDICTIONS_DIR", "predictions"),
		PredictionsURL:        strings.TrimRight(String("PREDICTIONS_URL", ""), "/"),
		PredictionTimeout:     p.duration("PREDICTION_TIMEOUT", 2*time.Second),
		PredictionConcurrency: p.integer("PREDICTION_CONCURRENCY", 8),

		RedisAddr:          String("REDIS_ADDR", ""),
		RedisPassword:      String("REDIS_PASSWORD", ""),
		RedisDB:            p.integer("REDIS_DB", 0),
		PredictionCacheTTL: p.duration("PREDICTION_CACHE_TTL", 10*time.Minute),

		RouteCacheSize: p.integer("ROUTE_CACHE_SIZE", 1024),
		RouteCacheTTL:  p.duration("ROUTE_CACHE_TTL", time.Minute),
		MaxRoutes:      p.integer("MAX_ROUTES", 5),

		CORSAllowedOrigins: List("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RequireTLS:         p.boolean("REQUIRE_TLS", false),

		OTelEnabled:  p.boolean("OTEL_ENABLED", false),
		OTLPEndpoint: String("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		PubSubProjectID:    String("PUBSUB_PROJECT_ID", ""),
		PubSubSubscription: String("PUBSUB_SUBSCRIPTION", ""),
		WarmModels:         List("WARM_MODELS", nil),
	}

	if err := p.err(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error

	switch c.TopologySource {
	case SourceCSV, SourcePostgres:
	default:
		errs = append(errs, fmt.Errorf("TOPOLOGY_SOURCE: unsupported source %q", c.TopologySource))
	}

	switch c.PredictionSource {
	case SourceFile, SourcePostgres:
	case SourceHTTP:
		if c.PredictionsURL == "" {
			errs = append(errs, errors.New("PREDICTIONS_URL: required when PREDICTION_SOURCE=http"))
		}
	default:
		errs = append(errs, fmt.Errorf("PREDICTION_SOURCE: unsupported source %q", c.PredictionSource))
	}

	if c.PredictionTimeout <= 0 {
		errs = append(errs, errors.New("PREDICTION_TIMEOUT: must be positive"))
	}
	if c.PredictionConcurrency <= 0 {
		errs = append(errs, errors.New("PREDICTION_CONCURRENCY: must be positive"))
	}
	if c.MaxRoutes < 1 || c.MaxRoutes > 5 {
		errs = append(errs, fmt.Errorf("MAX_ROUTES: %d not in [1, 5]", c.MaxRoutes))
	}

	return errors.Join(errs...)
}

// NeedsPostgres reports whether any source reads from PostgreSQL.
func (c Config) NeedsPostgres() bool {
	return c.TopologySource == SourcePostgres || c.PredictionSource == SourcePostgres
}

// String returns the value of key, or def when unset or empty.
func String(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// List returns the comma-separated values of key, or def when unset.
func List(key string, def []string) []string {
	raw := String(key, "")
	if raw == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser collects conversion errors so every bad variable is reported at once.
type parser struct {
	errs []error
}

func (p *parser) err() error {
	return errors.Join(p.errs...)
}

func (p *parser) integer(key string, def int) int {
	raw := String(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := String(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) boolean(key string, def bool) bool {
	raw := String(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) level(key string, def zerolog.Level) zerolog.Level {
	raw := String(key, "")
	if raw == "" {
		return def
	}
	v, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}
