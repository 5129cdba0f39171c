// Package consumer reads content-change events from Kafka and hands them to
// the index agent. Offsets are committed once the agent has accepted an
// event, so a stopped agent leaves the message for the next consumer.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/entity-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/kafka"
)

// Enqueuer is the intake side of the index agent.
type Enqueuer interface {
	Enqueue(ev ingestion.IndexEvent) bool
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a kafka.Handler that decodes each record as an
// IndexEvent and enqueues it. Undecodable records are logged and committed;
// they would never succeed on redelivery.
func HandleMessage(agent Enqueuer) kafka.Handler {
	logger := slog.Default().With("component", "index-consumer")
	return func(_ context.Context, msg kafka.Message) error {
		log := logger.With("partition", msg.Partition, "offset", msg.Offset, "key", string(msg.Key))
		event, err := kafka.DecodeJSON[ingestion.IndexEvent](msg.Value)
		if err != nil {
			log.Error("failed to decode content change", "data_type", msg.Headers["data_type"], "error", err)
			return nil
		}
		if event.Creator == "" || !event.ChangeType.Valid() {
			log.Error("dropping malformed content change", "event_id", event.ID, "value", string(msg.Value))
			return nil
		}
		if h := msg.Headers["change_type"]; h != "" && h != event.ChangeType.String() {
			log.Warn("change_type header disagrees with payload, using payload",
				"event_id", event.ID, "header", h, "payload", event.ChangeType.String())
		}
		if !agent.Enqueue(event) {
			return fmt.Errorf("enqueueing event %s: %w: %w", event.ID, apperrors.ErrAgentStopped, kafka.ErrStop)
		}
		log.Debug("content change enqueued",
			"event_id", event.ID,
			"creator", event.Creator,
			"change_type", event.ChangeType.String(),
			"data_type", event.DataType,
		)
		return nil
	}
}
