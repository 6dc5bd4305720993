package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"commerce-sync-engine/internal/domain"
	"commerce-sync-engine/internal/repository"
	"commerce-sync-engine/internal/service"
	"commerce-sync-engine/pkg/response"
)

const defaultDeadLetterLimit = 100

type DeadLetterReplayer interface {
	List(ctx context.Context, limit int) ([]*domain.DeadLetter, error)
	Replay(ctx context.Context, id string) (*domain.SyncEvent, error)
}

type DeadLetterHandler struct {
	deadLetters DeadLetterReplayer
}

func NewDeadLetterHandler(deadLetters DeadLetterReplayer) *DeadLetterHandler {
	return &DeadLetterHandler{deadLetters: deadLetters}
}

func (h *DeadLetterHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultDeadLetterLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			response.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	items, err := h.deadLetters.List(r.Context(), limit)
	if err != nil {
		log.Printf("[HTTP] list dead letters failed: %v", err)
		response.InternalError(w, "Failed to list dead letters")
		return
	}
	if items == nil {
		items = []*domain.DeadLetter{}
	}
	response.Success(w, items)
}

func (h *DeadLetterHandler) Replay(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	event, err := h.deadLetters.Replay(r.Context(), id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		response.NotFound(w, "Dead letter not found")
	case errors.Is(err, service.ErrEventDropped):
		response.ServiceUnavailable(w, err.Error())
	case err != nil:
		log.Printf("[HTTP] replay dead letter %s failed: %v", id, err)
		response.InternalError(w, "Failed to replay dead letter")
	default:
		response.Accepted(w, domain.IngestResponse{Accepted: true, EventID: event.ID})
	}
}
