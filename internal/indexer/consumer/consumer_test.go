package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/entity-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/kafka"
)

type queue struct {
	open   bool
	events []ingestion.IndexEvent
}

func (q *queue) Enqueue(ev ingestion.IndexEvent) bool {
	if !q.open {
		return false
	}
	q.events = append(q.events, ev)
	return true
}

func encode(t *testing.T, ev ingestion.IndexEvent) []byte {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	return data
}

func TestHandleMessageEnqueues(t *testing.T) {
	q := &queue{open: true}
	handle := HandleMessage(q)
	ev := ingestion.NewEvent("ichigo", ingestion.Shared, "note", json.RawMessage(`{"key":"n1"}`))

	require.NoError(t, handle(context.Background(), kafka.Message{Key: []byte("ichigo"), Value: encode(t, ev)}))
	require.Len(t, q.events, 1)
	assert.Equal(t, ev.ID, q.events[0].ID)
	assert.Equal(t, ingestion.Shared, q.events[0].ChangeType)
}

func TestHandleMessageSkipsPoisonMessages(t *testing.T) {
	q := &queue{open: true}
	handle := HandleMessage(q)
	for _, value := range []string{
		`not json`,
		`{"creator":"ichigo","change_type":"RENAMED"}`,
		`{"creator":"","change_type":"CREATED","data":{"key":"n1"}}`,
		`{"creator":"ichigo","data":{"key":"n1"}}`,
	} {
		assert.NoError(t, handle(context.Background(), kafka.Message{Value: []byte(value)}), value)
	}
	assert.Empty(t, q.events)
}

func TestHandleMessageLeavesUncommittedWhenStopped(t *testing.T) {
	handle := HandleMessage(&queue{})
	ev := ingestion.NewEvent("ichigo", ingestion.Created, "note", json.RawMessage(`{"key":"n1"}`))
	err := handle(context.Background(), kafka.Message{Value: encode(t, ev), Headers: map[string]string{"change_type": "CREATED"}})
	assert.True(t, errors.Is(err, apperrors.ErrAgentStopped))
	assert.True(t, errors.Is(err, kafka.ErrStop))
}
