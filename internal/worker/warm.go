package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/scatsroute/scatsroute/internal/prediction"
)

// Cache receives warmed series.
type Cache interface {
	Put(ctx context.Context, siteID int, model string, series prediction.Series) error
	Invalidate(ctx context.Context, model string) (int, error)
}

// WarmJobConfig holds configuration for creating a WarmJob.
type WarmJobConfig struct {
	Config WarmConfig
	Source prediction.Store
	Cache  Cache
	Logger zerolog.Logger
}

// WarmJob copies prediction series from the source store into the cache.
type WarmJob struct {
	config  WarmConfig
	source  prediction.Store
	cache   Cache
	logger  zerolog.Logger
	metrics *WarmMetrics
}

// WarmMetrics tracks warming statistics across runs.
type WarmMetrics struct {
	mu sync.RWMutex

	Runs    int64
	Loaded  int64
	Missing int64
	Failed  int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
}

// NewWarmJob creates a new warming job.
func NewWarmJob(cfg WarmJobConfig) *WarmJob {
	return &WarmJob{
		config:  cfg.Config.withDefaults(),
		source:  cfg.Source,
		cache:   cfg.Cache,
		logger:  cfg.Logger,
		metrics: &WarmMetrics{},
	}
}

// WarmResult contains the outcome of one run.
type WarmResult struct {
	StartTime time.Time
	Duration  time.Duration
	Models    []string
	Total     int
	Loaded    int
	Missing   int
	Failed    int
	Errors    []WarmError
}

// WarmError describes a series that could not be warmed.
type WarmError struct {
	Model  string
	SiteID int
	Error  string
}

type warmTask struct {
	model  string
	siteID int
}

type warmOutcome struct {
	task warmTask
	err  error
}

// Run warms every configured site for each model. When models is empty the
// configured models are used.
func (j *WarmJob) Run(ctx context.Context, models []string) *WarmResult {
	if len(models) == 0 {
		models = j.config.Models
	}

	result := &WarmResult{
		StartTime: time.Now(),
		Models:    models,
		Total:     len(models) * len(j.config.SiteIDs),
	}

	j.logger.Info().
		Strs("models", models).
		Int("sites", len(j.config.SiteIDs)).
		Int("concurrency", j.config.Concurrency).
		Msg("starting prediction cache warm")

	var valid []string
	for _, model := range models {
		if err := prediction.ValidateModel(model); err != nil {
			result.Failed += len(j.config.SiteIDs)
			result.Errors = append(result.Errors, WarmError{Model: model, Error: err.Error()})
			continue
		}
		if j.config.Invalidate {
			n, err := j.cache.Invalidate(ctx, model)
			if err != nil {
				j.logger.Warn().Err(err).Str("model", model).Msg("failed to invalidate cached series")
			} else {
				j.logger.Debug().Str("model", model).Int("keys", n).Msg("invalidated cached series")
			}
		}
		valid = append(valid, model)
	}

	tasks := make(chan warmTask)
	outcomes := make(chan warmOutcome)

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				outcomes <- warmOutcome{task: task, err: j.warm(ctx, task)}
			}
		}()
	}

	go func() {
		defer close(tasks)
		for _, model := range valid {
			for _, id := range j.config.SiteIDs {
				select {
				case tasks <- warmTask{model: model, siteID: id}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for o := range outcomes {
		switch {
		case o.err == nil:
			result.Loaded++
		case errors.Is(o.err, prediction.ErrSeriesNotFound):
			result.Missing++
		default:
			result.Failed++
			result.Errors = append(result.Errors, WarmError{
				Model:  o.task.model,
				SiteID: o.task.siteID,
				Error:  o.err.Error(),
			})
		}
	}

	// Tasks never dispatched because the context ended count as failures.
	if skipped := result.Total - result.Loaded - result.Missing - result.Failed; skipped > 0 {
		result.Failed += skipped
	}

	result.Duration = time.Since(result.StartTime)
	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("loaded", result.Loaded).
		Int("missing", result.Missing).
		Int("failed", result.Failed).
		Msg("prediction cache warm completed")

	return result
}

func (j *WarmJob) warm(ctx context.Context, task warmTask) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	series, err := j.source.Series(ctx, task.siteID, task.model)
	if err != nil {
		return err
	}
	return j.cache.Put(ctx, task.siteID, task.model, series)
}

func (j *WarmJob) updateMetrics(result *WarmResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.Runs++
	j.metrics.Loaded += int64(result.Loaded)
	j.metrics.Missing += int64(result.Missing)
	j.metrics.Failed += int64(result.Failed)
	j.metrics.LastRunAt = result.StartTime.Add(result.Duration)
	j.metrics.LastRunDuration = result.Duration
}

// MetricsSnapshot returns the current metrics as a map for logging.
func (j *WarmJob) MetricsSnapshot() map[string]interface{} {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return map[string]interface{}{
		"runs":              j.metrics.Runs,
		"series_loaded":     j.metrics.Loaded,
		"series_missing":    j.metrics.Missing,
		"series_failed":     j.metrics.Failed,
		"last_run_at":       j.metrics.LastRunAt,
		"last_run_duration": j.metrics.LastRunDuration.String(),
	}
}
