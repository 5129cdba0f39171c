// Package kafka wraps segmentio/kafka-go for the content-change stream.
// Producers write JSON values keyed by creator; consumers hand each record to
// a Handler and commit only what the handler accepted.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/resilience"
)

// Message is one consumed record.
type Message struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Time      time.Time
}

// Handler processes one record. Returning nil commits it.
type Handler func(ctx context.Context, msg Message) error

// ErrStop, wrapped by a handler error, ends the consume loop without
// committing the message so the group redelivers it after a restart.
var ErrStop = errors.New("stop consuming")

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Stats() kafka.ReaderStats
	Close() error
}

// Consumer feeds one topic to a Handler. A failing record is retried in
// place, so records of a partition are handled strictly in order.
type Consumer struct {
	reader  reader
	handler Handler
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

// NewConsumer joins cfg.ConsumerGroup on topic. A new group starts from the
// earliest retained record.
func NewConsumer(cfg config.KafkaConfig, topic string, handler Handler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        250 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0,
	})
	return newConsumer(r, topic, handler)
}

func newConsumer(r reader, topic string, handler Handler) *Consumer {
	return &Consumer{
		reader:  r,
		handler: handler,
		retry: resilience.RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
		logger: slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start consumes until ctx ends (returning nil) or a record cannot be
// handled (returning the handler error, with the record uncommitted).
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.logger.Info("consumer stopped")
	for ctx.Err() == nil {
		raw, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.Error("fetch failed", "error", err)
			continue
		}
		msg := fromRecord(raw)
		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.Error("record not handled, leaving it uncommitted",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			return fmt.Errorf("handling record %d/%d: %w", msg.Partition, msg.Offset, err)
		}
		if err := c.reader.CommitMessages(ctx, raw); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg Message) error {
	c.logger.Debug("record received",
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", string(msg.Key),
		"bytes", len(msg.Value),
	)
	return resilience.Retry(ctx, "handle content change", c.retry, func() error {
		err := c.handler(ctx, msg)
		if errors.Is(err, ErrStop) {
			return resilience.Permanent(err)
		}
		return err
	})
}

func fromRecord(m kafka.Message) Message {
	msg := Message{
		Key:       m.Key,
		Value:     m.Value,
		Partition: m.Partition,
		Offset:    m.Offset,
		Time:      m.Time,
	}
	if len(m.Headers) > 0 {
		msg.Headers = make(map[string]string, len(m.Headers))
		for _, h := range m.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}
	}
	return msg
}

// Lag is how far the group trails the partition head, as of the last fetch.
func (c *Consumer) Lag() int64 {
	return c.reader.Stats().Lag
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a record value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
