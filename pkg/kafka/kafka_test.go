package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/resilience"
)

func TestEncode(t *testing.T) {
	msg, err := encode(Event{
		Key:     "ichigo",
		Value:   map[string]string{"change_type": "CREATED"},
		Headers: map[string]string{"data_type": "note", "change_type": "CREATED"},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("ichigo"), msg.Key)
	assert.JSONEq(t, `{"change_type":"CREATED"}`, string(msg.Value))
	assert.Equal(t, []kafka.Header{
		{Key: "change_type", Value: []byte("CREATED")},
		{Key: "data_type", Value: []byte("note")},
	}, msg.Headers)

	_, err = encode(Event{Key: "k", Value: make(chan int)})
	assert.Error(t, err)
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Creator string `json:"creator"`
	}
	got, err := DecodeJSON[payload]([]byte(`{"creator":"rukia"}`))
	require.NoError(t, err)
	assert.Equal(t, "rukia", got.Creator)

	_, err = DecodeJSON[payload]([]byte(`{`))
	assert.Error(t, err)
}

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.pending) > 0 {
		m := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Stats() kafka.ReaderStats { return kafka.ReaderStats{Lag: int64(len(f.pending))} }

func (f *fakeReader) Close() error { return nil }

func records(n int) []kafka.Message {
	out := make([]kafka.Message, n)
	for i := range out {
		out[i] = kafka.Message{
			Key:     []byte("ichigo"),
			Value:   []byte(`{}`),
			Offset:  int64(i),
			Headers: []kafka.Header{{Key: "change_type", Value: []byte("CREATED")}},
		}
	}
	return out
}

func TestConsumerStopsBeforeCommittingRejectedRecord(t *testing.T) {
	r := &fakeReader{pending: records(4)}
	var seen []Message
	c := newConsumer(r, "content-changes", func(_ context.Context, msg Message) error {
		seen = append(seen, msg)
		if msg.Offset == 2 {
			return fmt.Errorf("agent closed: %w", ErrStop)
		}
		return nil
	})

	err := c.Start(context.Background())
	require.ErrorIs(t, err, ErrStop)
	assert.Equal(t, []int64{0, 1}, r.committed)
	require.Len(t, seen, 3)
	assert.Equal(t, "CREATED", seen[0].Headers["change_type"])
	assert.Equal(t, int64(1), c.Lag())
}

func TestConsumerRetriesTransientFailures(t *testing.T) {
	r := &fakeReader{pending: records(1)}
	attempts := 0
	c := newConsumer(r, "content-changes", func(context.Context, Message) error {
		attempts++
		if attempts < 3 {
			return errors.New("busy")
		}
		return nil
	})
	c.retry = resilience.RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.committed) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, 3, attempts)
}

type fakeWriter struct {
	written []kafka.Message
	err     error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.written = append(f.written, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestPublishBatchIsAllOrNothing(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "content-changes")

	require.NoError(t, p.Publish(context.Background(), Event{Key: "ichigo", Value: 1}))
	require.NoError(t, p.PublishBatch(context.Background(), nil))
	err := p.PublishBatch(context.Background(), []Event{
		{Key: "rukia", Value: 2},
		{Key: "renji", Value: make(chan int)},
	})
	assert.Error(t, err)
	require.Len(t, w.written, 1)
	assert.Equal(t, "ichigo", string(w.written[0].Key))

	w.err = errors.New("no leader")
	err = p.Publish(context.Background(), Event{Key: "ichigo", Value: 1})
	assert.ErrorContains(t, err, "content-changes")
}
