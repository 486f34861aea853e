// Package main provides the entrypoint for the prediction cache worker.
//
// With a Pub/Sub subscription configured the worker warms the Redis cache
// whenever new predictions are published; otherwise it runs one warm pass
// over WARM_MODELS and exits.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/scatsroute/scatsroute/internal/app"
	"github.com/scatsroute/scatsroute/internal/config"
	"github.com/scatsroute/scatsroute/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "scatsroute-worker"

func main() {
	bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if err := config.LoadDotEnv(".env"); err != nil {
		bootLog.Fatal().Err(err).Msg("failed to load .env")
	}
	cfg, err := config.FromEnv()
	if err != nil {
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := app.NewLogger(cfg, serviceName, Version)
	log.Info().Str("build_time", BuildTime).Msg("starting prediction cache worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("worker stopped with error")
	}
	log.Info().Msg("worker stopped")
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	deps, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	if deps.Cache == nil {
		return errors.New("REDIS_ADDR is required: the worker only fills the shared cache")
	}

	warmCfg := worker.DefaultWarmConfig()
	warmCfg.Models = cfg.WarmModels
	warmCfg.SiteIDs = deps.Topology.SiteIDs()
	warmCfg.Concurrency = cfg.PredictionConcurrency

	job := worker.NewWarmJob(worker.WarmJobConfig{
		Config: warmCfg,
		Source: deps.Source,
		Cache:  deps.Cache,
		Logger: log,
	})

	if cfg.PubSubProjectID == "" || cfg.PubSubSubscription == "" {
		result := job.Run(ctx, nil)
		if result.Failed > 0 {
			return fmt.Errorf("%d of %d series failed to load", result.Failed, result.Total)
		}
		return nil
	}

	handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
		ProjectID:        cfg.PubSubProjectID,
		SubscriptionName: cfg.PubSubSubscription,
		WarmJob:          job,
		Logger:           log,
	})
	if err != nil {
		return err
	}
	defer handler.Close()

	// Cloud Run expects the worker to serve a health endpoint.
	server := healthServer(cfg.Port, job)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func healthServer(port string, job *worker.WarmJob) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "healthy",
			"version": Version,
			"warm":    job.MetricsSnapshot(),
		})
	})
	return &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
}
