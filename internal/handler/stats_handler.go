package handler

import (
	"net/http"

	"commerce-sync-engine/internal/engine"
	"commerce-sync-engine/internal/gateway"
	"commerce-sync-engine/pkg/response"
)

type EngineStats interface {
	Stats() engine.Stats
}

type CacheStats interface {
	Stats() gateway.Stats
}

type StatsHandler struct {
	engine      EngineStats
	cache       CacheStats
	connectors  func() []string
	connections func() int
}

func NewStatsHandler(engine EngineStats, cache CacheStats, connectors func() []string, connections func() int) *StatsHandler {
	return &StatsHandler{
		engine:      engine,
		cache:       cache,
		connectors:  connectors,
		connections: connections,
	}
}

type statsResponse struct {
	Engine      engine.Stats  `json:"engine"`
	Cache       gateway.Stats `json:"cache"`
	Connectors  []string      `json:"connectors"`
	Subscribers int           `json:"ws_connections"`
}

func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Engine:     h.engine.Stats(),
		Cache:      h.cache.Stats(),
		Connectors: []string{},
	}
	if h.connectors != nil {
		resp.Connectors = h.connectors()
	}
	if h.connections != nil {
		resp.Subscribers = h.connections()
	}
	response.Success(w, resp)
}
