// Package publisher forwards accepted content-change events to Kafka. Events
// are keyed by creator so every mutation of one entity lands on the same
// partition and is consumed in submission order.
package publisher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/resilience"
)

// EventWriter is the subset of kafka.Producer the publisher needs.
type EventWriter interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher retries transient broker failures before giving up.
type Publisher struct {
	writer EventWriter
	retry  resilience.RetryConfig
	logger *slog.Logger
}

// New creates a Publisher. A zero retry config uses the resilience defaults.
func New(writer EventWriter, retry resilience.RetryConfig) *Publisher {
	return &Publisher{
		writer: writer,
		retry:  retry,
		logger: slog.Default().With("component", "publisher"),
	}
}

// Publish converts req into an event and writes it to Kafka.
func (p *Publisher) Publish(ctx context.Context, req *ingestion.EventRequest) (*ingestion.EventResponse, error) {
	event, err := req.Event()
	if err != nil {
		return nil, err
	}
	msg := kafka.Event{
		Key:   event.Creator,
		Value: event,
		Headers: map[string]string{
			"change_type": event.ChangeType.String(),
			"data_type":   event.DataType,
		},
	}
	err = resilience.Retry(ctx, "publish content change", p.retry, func() error {
		return p.writer.Publish(ctx, msg)
	})
	if err != nil {
		p.logger.Error("failed to publish content change",
			"event_id", event.ID,
			"creator", event.Creator,
			"change_type", event.ChangeType.String(),
			"data_type", event.DataType,
			"error", err,
		)
		return nil, fmt.Errorf("publishing event %s: %w", event.ID, err)
	}
	p.logger.Debug("content change published",
		"event_id", event.ID,
		"creator", event.Creator,
		"change_type", event.ChangeType.String(),
	)
	return &ingestion.EventResponse{EventID: event.ID, Status: "ACCEPTED"}, nil
}
