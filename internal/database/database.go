// Package database provides PostgreSQL connection management for the
// topology and prediction tables.
package database

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scatsroute/scatsroute/internal/config"
)

// Config holds database connection configuration.
type Config struct {
	// URL, when set, is used verbatim and the other connection fields are ignored.
	URL string

	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
}

// ConfigFromEnv creates a Config from DATABASE_URL or the DB_* variables.
func ConfigFromEnv() Config {
	port, _ := strconv.Atoi(config.String("DB_PORT", "5432"))
	maxConns, _ := strconv.ParseInt(config.String("DB_MAX_OPEN_CONNS", "10"), 10, 32)
	minConns, _ := strconv.ParseInt(config.String("DB_MAX_IDLE_CONNS", "2"), 10, 32)
	lifetime, _ := time.ParseDuration(config.String("DB_CONN_MAX_LIFETIME", "5m"))

	return Config{
		URL:             config.String("DATABASE_URL", ""),
		Host:            config.String("DB_HOST", "localhost"),
		Port:            port,
		User:            config.String("DB_USER", "scatsroute"),
		Password:        config.String("DB_PASSWORD", "localdev"),
		Database:        config.String("DB_NAME", "scatsroute"),
		SSLMode:         config.String("DB_SSL_MODE", "disable"),
		MaxConns:        int32(maxConns),
		MinConns:        int32(minConns),
		ConnMaxLifetime: lifetime,
	}
}

// ConnectionString returns the PostgreSQL connection URL.
func (c Config) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
