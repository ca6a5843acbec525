package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/hypercart/internal/proxy"
	"github.com/shehryarbajwa/hypercart/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes(partitionHandler *PartitionHandler, proxyServer *proxy.Server, rateLimiter *ratelimit.Limiter, metricsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()

	// API v1 routes
	api := r.PathPrefix("/v1").Subrouter()

	// Automation endpoints (rate limited per session)
	automation := api.PathPrefix("/automation").Subrouter()
	automation.Use(RateLimitMiddleware(rateLimiter))
	automation.HandleFunc("/run", h.RunCommand).Methods("POST", "OPTIONS")
	automation.HandleFunc("/stop", h.StopCommand).Methods("POST", "OPTIONS")

	// Session endpoints
	api.HandleFunc("/sessions", h.CreateSession).Methods("POST", "OPTIONS")
	api.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	api.HandleFunc("/sessions/hide", h.HideSessions).Methods("POST", "OPTIONS")
	api.HandleFunc("/sessions/{id}", h.DeleteSession).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/sessions/{id}/show", h.ShowSession).Methods("POST", "OPTIONS")
	api.HandleFunc("/sessions/{id}/reload", h.ReloadSession).Methods("POST", "OPTIONS")
	api.HandleFunc("/sessions/{id}/back", h.BackSession).Methods("POST", "OPTIONS")
	api.HandleFunc("/host/resize", h.ResizeHost).Methods("POST", "OPTIONS")

	// Debug endpoints
	api.HandleFunc("/sessions/{id}/debug", h.GetDebugURL).Methods("GET")
	api.HandleFunc("/sessions/{id}/ws", func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		sessionID := vars["id"]
		proxyServer.HandleDebugConnection(w, r, sessionID)
	}).Methods("GET")

	// Event stream
	api.HandleFunc("/events", proxyServer.HandleEvents).Methods("GET")

	// Data endpoints
	api.HandleFunc("/orders", h.ListOrders).Methods("GET")
	api.HandleFunc("/orders/{id}", h.GetOrder).Methods("GET")
	api.HandleFunc("/cards", h.ListCards).Methods("GET")
	api.HandleFunc("/cards", h.DeleteCards).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/cards/claim", h.ClaimCard).Methods("POST", "OPTIONS")

	// Partition endpoints
	api.HandleFunc("/partitions", partitionHandler.ListPartitions).Methods("GET")
	api.HandleFunc("/partitions/{id}", partitionHandler.DeletePartition).Methods("DELETE", "OPTIONS")

	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods("GET")
	}

	// CORS middleware
	r.Use(corsMiddleware)

	return r
}
