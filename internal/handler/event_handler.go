package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"commerce-sync-engine/internal/classifier"
	"commerce-sync-engine/internal/domain"
	"commerce-sync-engine/internal/middleware"
	"commerce-sync-engine/internal/service"
	"commerce-sync-engine/pkg/response"
)

type EventSubmitter interface {
	SubmitAs(ctx context.Context, clientID string, raw domain.RawEvent) (*domain.SyncEvent, error)
}

type EventHandler struct {
	ingest EventSubmitter
}

func NewEventHandler(ingest EventSubmitter) *EventHandler {
	return &EventHandler{ingest: ingest}
}

func (h *EventHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var raw domain.RawEvent
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		response.JSON(w, http.StatusBadRequest, domain.IngestResponse{Error: "Invalid request body"})
		return
	}

	event, err := h.ingest.SubmitAs(r.Context(), middleware.GetClientID(r), raw)
	if err != nil {
		response.JSON(w, ingestStatus(err), domain.IngestResponse{Error: err.Error()})
		return
	}

	response.Accepted(w, domain.IngestResponse{Accepted: true, EventID: event.ID})
}

func ingestStatus(err error) int {
	var malformed *classifier.MalformedEventError
	switch {
	case errors.As(err, &malformed):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrPlatformMismatch):
		return http.StatusForbidden
	case errors.Is(err, service.ErrEventDropped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
