// Package ingestion defines the content-change event carried from producers
// to the index agent, together with the HTTP request/response types of the
// event intake endpoint.
package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/content"
	apperrors "github.com/Adithya-Monish-Kumar-K/entity-search/pkg/errors"
)

// ChangeType is the kind of mutation a content-change event describes.
type ChangeType int

const (
	Created ChangeType = iota + 1
	Shared
	Modified
	Deleted
)

var changeTypeNames = map[ChangeType]string{
	Created:  "CREATED",
	Shared:   "SHARED",
	Modified: "MODIFIED",
	Deleted:  "DELETED",
}

func (c ChangeType) String() string {
	if name, ok := changeTypeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ChangeType(%d)", int(c))
}

// Valid reports whether c is one of the known change types.
func (c ChangeType) Valid() bool {
	_, ok := changeTypeNames[c]
	return ok
}

// ParseChangeType accepts the upper-case wire name, case-insensitively.
func ParseChangeType(s string) (ChangeType, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for ct, name := range changeTypeNames {
		if name == upper {
			return ct, nil
		}
	}
	return 0, fmt.Errorf("change type %q: %w", s, apperrors.ErrInvalidInput)
}

func (c ChangeType) MarshalJSON() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("marshaling %s: %w", c, apperrors.ErrInvalidInput)
	}
	return json.Marshal(c.String())
}

func (c *ChangeType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("change type must be a string: %w", err)
	}
	ct, err := ParseChangeType(s)
	if err != nil {
		return err
	}
	*c = ct
	return nil
}

// IndexEvent is an immutable content-change notification. Creator names the
// entity whose catalogs receive the mutation and DataType selects the
// catalog. ID only correlates log lines.
type IndexEvent struct {
	ID         string          `json:"id"`
	Creator    string          `json:"creator"`
	ChangeType ChangeType      `json:"change_type"`
	DataType   string          `json:"data_type"`
	Data       json.RawMessage `json:"data"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewEvent stamps a fresh event id and creation time.
func NewEvent(creator string, changeType ChangeType, dataType string, data json.RawMessage) IndexEvent {
	return IndexEvent{
		ID:         uuid.NewString(),
		Creator:    creator,
		ChangeType: changeType,
		DataType:   dataType,
		Data:       data,
		CreatedAt:  time.Now().UTC(),
	}
}

// Object decodes the event payload. An object without a type inherits the
// event's data type; the catalog is still chosen by DataType.
func (e IndexEvent) Object() (*content.Object, error) {
	obj, err := content.Decode(e.Data)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", e.ID, err)
	}
	if obj.IsEmpty() {
		return nil, fmt.Errorf("event %s carries no object key: %w", e.ID, apperrors.ErrInvalidInput)
	}
	if obj.Type == "" {
		obj.Type = e.DataType
	}
	return obj, nil
}

// EventRequest is the JSON body accepted by POST /api/v1/events.
type EventRequest struct {
	Creator    string          `json:"creator"`
	ChangeType string          `json:"change_type"`
	DataType   string          `json:"data_type"`
	Data       json.RawMessage `json:"data"`
}

// Event converts a validated request into an event.
func (r *EventRequest) Event() (IndexEvent, error) {
	ct, err := ParseChangeType(r.ChangeType)
	if err != nil {
		return IndexEvent{}, err
	}
	return NewEvent(r.Creator, ct, r.DataType, r.Data), nil
}

// EventResponse is returned once an event has been accepted.
type EventResponse struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}
