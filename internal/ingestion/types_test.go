package ingestion

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/entity-search/pkg/errors"
)

func TestChangeTypeJSON(t *testing.T) {
	for _, ct := range []ChangeType{Created, Shared, Modified, Deleted} {
		data, err := json.Marshal(ct)
		require.NoError(t, err)
		assert.Equal(t, `"`+ct.String()+`"`, string(data))

		var back ChangeType
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, ct, back)
	}

	var ct ChangeType
	require.NoError(t, json.Unmarshal([]byte(`"modified"`), &ct))
	assert.Equal(t, Modified, ct)

	assert.Error(t, json.Unmarshal([]byte(`"RENAMED"`), &ct))
	assert.Error(t, json.Unmarshal([]byte(`3`), &ct))
	_, err := json.Marshal(ChangeType(42))
	assert.Error(t, err)
	assert.Equal(t, "ChangeType(42)", ChangeType(42).String())
}

func TestEventObject(t *testing.T) {
	ev := NewEvent("ichigo", Created, "note", json.RawMessage(`{"key":"n1","body":"getsuga tensho"}`))
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.CreatedAt.IsZero())

	obj, err := ev.Object()
	require.NoError(t, err)
	assert.Equal(t, "n1", obj.Key)
	assert.Equal(t, "note", obj.Type)

	typed := NewEvent("ichigo", Created, "note", json.RawMessage(`{"key":"h1","type":"highlight"}`))
	obj, err = typed.Object()
	require.NoError(t, err)
	assert.Equal(t, "highlight", obj.Type)

	_, err = NewEvent("ichigo", Created, "note", nil).Object()
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	_, err = NewEvent("ichigo", Created, "note", json.RawMessage(`{"body":"no key"}`)).Object()
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	_, err = NewEvent("ichigo", Created, "note", json.RawMessage(`[1,2]`)).Object()
	assert.Error(t, err)
}

func TestEventRoundTripsThroughJSON(t *testing.T) {
	ev := NewEvent("ichigo", Deleted, "note", json.RawMessage(`{"key":"n1"}`))
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"change_type":"DELETED"`)

	var back IndexEvent
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ev.ID, back.ID)
	assert.Equal(t, Deleted, back.ChangeType)
	assert.JSONEq(t, `{"key":"n1"}`, string(back.Data))
}
