// Package validator checks content-change event requests before they are
// published and returns per-field error details.
package validator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/ingestion"
)

const (
	maxCreatorLength  = 255
	maxDataTypeLength = 64
	maxDataLength     = 1048576
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateEventRequest checks the creator, change type, data type and
// payload of req. The payload must be a JSON object with a non-empty key.
func ValidateEventRequest(req *ingestion.EventRequest) error {
	errs := make(map[string]string)

	creator := strings.TrimSpace(req.Creator)
	if creator == "" {
		errs["creator"] = "creator is required"
	} else if len(creator) > maxCreatorLength {
		errs["creator"] = fmt.Sprintf("creator must be at most %d characters", maxCreatorLength)
	}
	if _, err := ingestion.ParseChangeType(req.ChangeType); err != nil {
		errs["change_type"] = "change_type must be one of CREATED, SHARED, MODIFIED, DELETED"
	}
	dataType := strings.TrimSpace(req.DataType)
	if dataType == "" {
		errs["data_type"] = "data_type is required"
	} else if len(dataType) > maxDataTypeLength {
		errs["data_type"] = fmt.Sprintf("data_type must be at most %d characters", maxDataTypeLength)
	}

	switch {
	case len(req.Data) == 0:
		errs["data"] = "data is required"
	case len(req.Data) > maxDataLength:
		errs["data"] = fmt.Sprintf("data must be at most %d bytes", maxDataLength)
	default:
		var probe struct {
			Key string `json:"key"`
		}
		if err := json.Unmarshal(req.Data, &probe); err != nil {
			errs["data"] = "data must be a JSON object"
		} else if strings.TrimSpace(probe.Key) == "" {
			errs["data"] = "data.key is required"
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
