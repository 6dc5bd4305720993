package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"commerce-sync-engine/internal/domain"
	"commerce-sync-engine/internal/middleware"
)

type RouterConfig struct {
	JWTSecret      string
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type Handlers struct {
	Auth        *AuthHandler
	Events      *EventHandler
	Records     *RecordHandler
	Reviews     *ReviewHandler
	DeadLetters *DeadLetterHandler
	Stats       *StatsHandler
	WebSocket   *WebSocketHandler
}

func NewRouter(cfg RouterConfig, h Handlers) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins, cfg.AllowedMethods, cfg.AllowedHeaders))

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/token", h.Auth.Token).Methods("POST", "OPTIONS")

	connectors := api.PathPrefix("").Subrouter()
	connectors.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	connectors.Use(middleware.RequireRole(domain.RoleConnector))
	connectors.HandleFunc("/events", h.Events.Ingest).Methods("POST", "OPTIONS")

	operators := api.PathPrefix("").Subrouter()
	operators.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	operators.Use(middleware.RequireRole(domain.RoleOperator))
	operators.HandleFunc("/records/{entityType}/{entityId}", h.Records.Get).Methods("GET", "OPTIONS")
	operators.HandleFunc("/reviews", h.Reviews.List).Methods("GET", "OPTIONS")
	operators.HandleFunc("/reviews/{id}/resolve", h.Reviews.Resolve).Methods("POST", "OPTIONS")
	operators.HandleFunc("/dead-letters", h.DeadLetters.List).Methods("GET", "OPTIONS")
	operators.HandleFunc("/dead-letters/{id}/replay", h.DeadLetters.Replay).Methods("POST", "OPTIONS")
	operators.HandleFunc("/stats", h.Stats.Get).Methods("GET", "OPTIONS")

	if h.WebSocket != nil {
		r.HandleFunc("/ws", h.WebSocket.HandleConnection)
	}
	r.HandleFunc("/health", healthHandler).Methods("GET")

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"commerce-sync-engine"}`))
}
