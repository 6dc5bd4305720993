package handler

import (
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"commerce-sync-engine/internal/domain"
	"commerce-sync-engine/internal/middleware"
	"commerce-sync-engine/internal/websocket"
	"commerce-sync-engine/pkg/jwt"
)

type WebSocketHandler struct {
	manager   *websocket.Manager
	jwtSecret string
	upgrader  ws.Upgrader
}

func NewWebSocketHandler(manager *websocket.Manager, jwtSecret string, readBuffer, writeBuffer int) *WebSocketHandler {
	return &WebSocketHandler{
		manager:   manager,
		jwtSecret: jwtSecret,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBuffer,
			WriteBufferSize: writeBuffer,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = middleware.BearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		http.Error(w, "missing authorization token", http.StatusUnauthorized)
		return
	}

	claims, err := jwt.ValidateToken(token, h.jwtSecret)
	if err != nil {
		log.Printf("[WebSocket] token validation failed: %v", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WebSocket] failed to upgrade connection for %s: %v", claims.ClientID, err)
		return
	}

	client := websocket.NewClient(uuid.NewString(), claims.ClientID, entityFilter(r.URL.Query().Get("entity_type")), conn, h.manager)
	if !h.manager.Join(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

func entityFilter(param string) []domain.EntityType {
	var out []domain.EntityType
	for _, p := range strings.Split(param, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, domain.EntityType(p))
		}
	}
	return out
}
