package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/oblivio/oblivio/internal/erasure"
	"github.com/oblivio/oblivio/internal/saga"
)

// PubSubHandler consumes deletion job messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	saga             *saga.Saga
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Saga             *saga.Saga
	Logger           zerolog.Logger
}

// DeletionMessage represents a deletion job message.
type DeletionMessage struct {
	JobType    string `json:"job_type"`
	RequestID  string `json:"request_id"`
	FiscalCode string `json:"fiscal_code,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Configure receive settings.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		saga:             cfg.Saga,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	var job DeletionMessage
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		logger.Error().Err(err).Msg("failed to parse message")
		msg.Nack()
		return
	}

	var f *erasure.Failure
	switch job.JobType {
	case "process_deletion":
		f = h.saga.Start(ctx, job.RequestID, job.FiscalCode)
	case "abort_deletion":
		f = h.saga.Abort(ctx, job.RequestID)
	default:
		logger.Warn().Str("job_type", job.JobType).Msg("unknown job type")
		msg.Ack() // Ack unknown messages to prevent redelivery
		return
	}

	if f != nil {
		if f.Retryable() {
			logger.Error().Err(f).Str("job_type", job.JobType).Msg("job failed, will retry")
			msg.Nack()
			return
		}
		// Malformed and misdirected jobs can never succeed on redelivery.
		logger.Error().Err(f).Str("job_type", job.JobType).Msg("job rejected")
		msg.Ack()
		return
	}

	duration := time.Since(startTime)
	logger.Info().
		Str("job_type", job.JobType).
		Str("request_id", job.RequestID).
		Dur("duration", duration).
		Msg("job accepted")

	msg.Ack()
}
