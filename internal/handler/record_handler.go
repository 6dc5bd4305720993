package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"commerce-sync-engine/internal/domain"
	"commerce-sync-engine/pkg/response"
)

type RecordReader interface {
	Get(ctx context.Context, entityType domain.EntityType, entityID string) (*domain.CanonicalRecord, error)
}

type RecordHandler struct {
	records RecordReader
}

func NewRecordHandler(records RecordReader) *RecordHandler {
	return &RecordHandler{records: records}
}

type recordResponse struct {
	*domain.CanonicalRecord
	Key string `json:"key"`
}

func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	entityType := domain.EntityType(vars["entityType"])
	entityID := vars["entityId"]

	rec, err := h.records.Get(r.Context(), entityType, entityID)
	if err != nil {
		log.Printf("[HTTP] record lookup %s:%s failed: %v", entityType, entityID, err)
		response.InternalError(w, "Failed to load record")
		return
	}
	if rec == nil {
		response.NotFound(w, "Record not found")
		return
	}

	response.Success(w, recordResponse{CanonicalRecord: rec, Key: rec.Key()})
}
