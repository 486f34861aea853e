package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/scatsroute/scatsroute/internal/prediction"
)

// Job types carried in trigger messages.
const (
	JobPredictionsPublished = "predictions_published"
	JobHealthCheck          = "health_check"
)

// errUnknownJob marks messages that are acknowledged without processing.
var errUnknownJob = errors.New("unknown job type")

// TriggerMessage is the JSON payload published when new predictions land.
type TriggerMessage struct {
	JobType string   `json:"job_type"`
	Models  []string `json:"models,omitempty"`
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	WarmJob          *WarmJob
	Logger           zerolog.Logger
}

// PubSubHandler runs warm jobs in response to Pub/Sub trigger messages.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	// Warm runs are long; process them one at a time.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 1
	subscriber.ReceiveSettings.MaxExtension = 30 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       NewDispatcher(cfg.WarmJob, cfg.Logger),
		logger:           cfg.Logger,
	}, nil
}

// Start receives messages until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		logger := h.logger.With().
			Str("message_id", msg.ID).
			Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
			Logger()

		err := h.dispatcher.Handle(ctx, msg.Data)
		switch {
		case err == nil:
			msg.Ack()
		case errors.Is(err, errUnknownJob):
			logger.Warn().Err(err).Msg("acknowledging unprocessable message")
			msg.Ack()
		default:
			logger.Error().Err(err).Msg("job failed")
			msg.Nack()
		}
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

// Dispatcher decodes trigger messages and runs the matching job.
type Dispatcher struct {
	warm   *WarmJob
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher for the given warm job.
func NewDispatcher(warm *WarmJob, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{warm: warm, logger: logger}
}

// Handle processes one message payload. Malformed payloads and unknown job
// types return an error wrapping errUnknownJob so they are not redelivered.
func (d *Dispatcher) Handle(ctx context.Context, data []byte) error {
	start := time.Now()

	var msg TriggerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: decode: %v", errUnknownJob, err)
	}

	var err error
	switch msg.JobType {
	case JobPredictionsPublished:
		err = d.handlePublished(ctx, msg)
	case JobHealthCheck:
		err = d.handleHealthCheck(ctx)
	default:
		return fmt.Errorf("%w: %q", errUnknownJob, msg.JobType)
	}
	if err != nil {
		return err
	}

	d.logger.Info().
		Str("job_type", msg.JobType).
		Dur("duration", time.Since(start)).
		Msg("job completed successfully")
	return nil
}

func (d *Dispatcher) handlePublished(ctx context.Context, msg TriggerMessage) error {
	result := d.warm.Run(ctx, msg.Models)

	// Missing series are expected for sites without a sensor model.
	if result.Failed > result.Loaded {
		return fmt.Errorf("too many warm failures: %d/%d", result.Failed, result.Total)
	}
	return nil
}

func (d *Dispatcher) handleHealthCheck(ctx context.Context) error {
	if len(d.warm.config.SiteIDs) == 0 || len(d.warm.config.Models) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.warm.config.Timeout)
	defer cancel()

	site, model := d.warm.config.SiteIDs[0], d.warm.config.Models[0]
	_, err := d.warm.source.Series(ctx, site, model)
	if err != nil && !errors.Is(err, prediction.ErrSeriesNotFound) {
		return fmt.Errorf("health check failed: %w", err)
	}
	d.logger.Debug().Str("source", d.warm.source.Name()).Msg("health check passed")
	return nil
}
