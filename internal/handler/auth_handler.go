package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"

	"commerce-sync-engine/internal/domain"
	"commerce-sync-engine/internal/service"
	"commerce-sync-engine/pkg/response"
)

type TokenIssuer interface {
	IssueToken(ctx context.Context, req *domain.TokenRequest) (*domain.TokenResponse, error)
}

type AuthHandler struct {
	tokens    TokenIssuer
	validator *validator.Validate
}

func NewAuthHandler(tokens TokenIssuer) *AuthHandler {
	return &AuthHandler{
		tokens:    tokens,
		validator: validator.New(),
	}
}

func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req domain.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	resp, err := h.tokens.IssueToken(r.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Unauthorized(w, "Invalid client credentials")
			return
		}
		log.Printf("[Auth] token issue for %s failed: %v", req.ClientID, err)
		response.InternalError(w, "Failed to issue token")
		return
	}

	response.Success(w, resp)
}
