// Package app builds the dependencies shared by the api and worker
// processes from a config.Config.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/scatsroute/scatsroute/internal/config"
	"github.com/scatsroute/scatsroute/internal/database"
	"github.com/scatsroute/scatsroute/internal/network"
	"github.com/scatsroute/scatsroute/internal/prediction"
	"github.com/scatsroute/scatsroute/internal/resilience"
)

// Dependency names reported by the ops endpoints.
const (
	DependencyPostgres = "postgres"
	DependencyRedis    = "redis"
)

// NewLogger returns the process logger. Development environments log
// human-readable lines; everything else logs JSON.
func NewLogger(cfg config.Config, service, version string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Environment == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).
		Level(cfg.LogLevel).
		With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger()
}

// Deps are the long-lived connections and stores of a process.
type Deps struct {
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Topology *network.Topology

	// Source is the configured prediction store without caching.
	Source prediction.Store
	// Cache wraps Source when Redis is configured, nil otherwise.
	Cache *prediction.RedisCache

	Registry *resilience.Registry
}

// Store returns the store route queries should read through.
func (d *Deps) Store() prediction.Store {
	if d.Cache != nil {
		return d.Cache
	}
	return d.Source
}

// Close releases every connection.
func (d *Deps) Close() {
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
}

// Open connects to the configured backends and loads the topology.
func Open(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Deps, error) {
	d := &Deps{Registry: resilience.NewRegistry()}

	if cfg.NeedsPostgres() {
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		d.Pool = pool
		d.Registry.RegisterProbe(DependencyPostgres, pool.Ping)
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")
	}

	topo, err := loadTopology(ctx, cfg, d.Pool)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Topology = topo
	log.Info().
		Str("source", cfg.TopologySource).
		Int("sites", topo.Len()).
		Int("segments", topo.SegmentCount()).
		Msg("topology loaded")

	switch cfg.PredictionSource {
	case config.SourcePostgres:
		d.Source = prediction.NewPostgresStore(d.Pool)
	case config.SourceHTTP:
		d.Source = prediction.NewHTTPStore(prediction.HTTPStoreConfig{
			BaseURL:  cfg.PredictionsURL,
			Timeout:  cfg.PredictionTimeout,
			Registry: d.Registry,
			Logger:   log,
		})
	default:
		d.Source = prediction.NewFileStore(cfg.PredictionsDir)
	}

	if cfg.RedisAddr != "" {
		d.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		d.Registry.RegisterProbe(DependencyRedis, func(ctx context.Context) error {
			return d.Redis.Ping(ctx).Err()
		})
		d.Cache = prediction.NewRedisCache(prediction.RedisCacheConfig{
			Client: d.Redis,
			Next:   d.Source,
			TTL:    cfg.PredictionCacheTTL,
			Logger: log,
		})
		log.Info().Str("addr", cfg.RedisAddr).Msg("prediction cache enabled")
	}

	log.Info().Str("store", d.Store().Name()).Msg("prediction store ready")
	return d, nil
}

func loadTopology(ctx context.Context, cfg config.Config, pool *pgxpool.Pool) (*network.Topology, error) {
	if cfg.TopologySource == config.SourcePostgres {
		topo, err := network.LoadPostgres(ctx, pool)
		if err != nil {
			return nil, fmt.Errorf("load topology from database: %w", err)
		}
		return topo, nil
	}
	topo, err := network.LoadFile(cfg.TopologyCSV)
	if err != nil {
		return nil, fmt.Errorf("load topology from %s: %w", cfg.TopologyCSV, err)
	}
	return topo, nil
}
