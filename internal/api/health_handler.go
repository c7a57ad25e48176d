package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionCounter reports live socket connections
type ConnectionCounter interface {
	ClientCount() int
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db  Pinger
	hub ConnectionCounter
}

// NewHealthHandler creates a new health handler. Either dependency may be nil.
func NewHealthHandler(db Pinger, hub ConnectionCounter) *HealthHandler {
	return &HealthHandler{db: db, hub: hub}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Version     string `json:"version,omitempty"`
	Connections *int   `json:"connections,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status and the live connection count
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}
	if h.hub != nil {
		n := h.hub.ClientCount()
		resp.Connections = &n
	}
	writeHealth(w, http.StatusOK, resp)
}

// Ready reports whether the database is reachable (for Kubernetes)
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ready",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			resp.Status = "unavailable"
			resp.Error = "database unreachable"
			writeHealth(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeHealth(w, http.StatusOK, resp)
}

// Live returns the liveness status (for Kubernetes)
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeHealth(w http.ResponseWriter, status int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
