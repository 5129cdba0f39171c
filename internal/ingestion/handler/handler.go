package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/entity-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/logger"
)

const maxRequestBytes = 2 << 20

// Sink accepts a validated event request. The ingestion service publishes to
// Kafka; the searcher enqueues straight into its index agent.
type Sink interface {
	Publish(ctx context.Context, req *ingestion.EventRequest) (*ingestion.EventResponse, error)
}

type Handler struct {
	sink   Sink
	logger *slog.Logger
}

func New(sink Sink) *Handler {
	return &Handler{
		sink:   sink,
		logger: slog.Default().With("component", "ingestion-handler"),
	}
}

// Events handles POST /api/v1/events.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req ingestion.EventRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateEventRequest(&req); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.sink.Publish(ctx, &req)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("event intake failed",
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "event intake failed")
		return
	}
	log.Info("content change accepted",
		"event_id", resp.EventID,
		"creator", req.Creator,
		"change_type", req.ChangeType,
	)
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
