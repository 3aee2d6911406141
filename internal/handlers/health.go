package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/marcogenualdo/sso-relay/internal/cache"
)

// FlowCounter reports how many authorization flows are waiting.
type FlowCounter interface {
	Pending() int
}

type HealthHandler struct {
	cacheType string
	cache     cache.Cache
	flows     FlowCounter
	provider  string
	logger    *slog.Logger
	startTime time.Time
}

func NewHealthHandler(cacheType string, c cache.Cache, flows FlowCounter, provider string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		cacheType: cacheType,
		cache:     c,
		flows:     flows,
		provider:  provider,
		logger:    logger,
		startTime: time.Now(),
	}
}

type HealthResponse struct {
	Status       string      `json:"status"`
	Uptime       string      `json:"uptime"`
	PendingFlows int         `json:"pending_flows"`
	Provider     string      `json:"provider,omitempty"`
	Cache        CacheHealth `json:"cache"`
}

type CacheHealth struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:   "healthy",
		Uptime:   time.Since(h.startTime).Round(time.Second).String(),
		Provider: h.provider,
	}
	if h.flows != nil {
		response.PendingFlows = h.flows.Pending()
	}

	response.Cache.Type = h.cacheType
	if h.cache == nil {
		response.Cache.Status = "disabled"
	} else if err := h.cache.Ping(ctx); err != nil {
		h.logger.Warn("cache health check failed", "error", err)
		response.Cache.Status = "error: " + err.Error()
		response.Status = "degraded"
	} else {
		response.Cache.Status = "connected"
	}

	w.Header().Set("Content-Type", "application/json")
	if response.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
