package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"commerce-sync-engine/internal/domain"
	"commerce-sync-engine/internal/middleware"
	"commerce-sync-engine/internal/repository"
	"commerce-sync-engine/internal/service"
	"commerce-sync-engine/pkg/response"
)

type ReviewResolver interface {
	List(ctx context.Context) ([]*domain.ReviewItem, error)
	Resolve(ctx context.Context, id string, req *domain.ResolveReviewRequest, resolvedBy string) (*domain.CanonicalRecord, error)
}

type ReviewHandler struct {
	reviews   ReviewResolver
	validator *validator.Validate
}

func NewReviewHandler(reviews ReviewResolver) *ReviewHandler {
	return &ReviewHandler{
		reviews:   reviews,
		validator: validator.New(),
	}
}

func (h *ReviewHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.reviews.List(r.Context())
	if err != nil {
		log.Printf("[HTTP] list reviews failed: %v", err)
		response.InternalError(w, "Failed to list reviews")
		return
	}
	if items == nil {
		items = []*domain.ReviewItem{}
	}
	response.Success(w, items)
}

func (h *ReviewHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req domain.ResolveReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	rec, err := h.reviews.Resolve(r.Context(), id, &req, middleware.GetClientID(r))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		response.NotFound(w, "Review not found")
	case errors.Is(err, service.ErrReviewClosed):
		response.Conflict(w, err.Error())
	case err != nil:
		log.Printf("[HTTP] resolve review %s failed: %v", id, err)
		response.InternalError(w, "Failed to resolve review")
	default:
		response.Success(w, rec)
	}
}
