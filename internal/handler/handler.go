// Package handler provides HTTP request handlers for the items API.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Version is the application version.
const Version = "1.0.0"

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Pinger checks that the backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProbeHandler serves liveness and readiness probes.
type ProbeHandler struct {
	pinger Pinger
	logger *zap.Logger
}

// NewProbeHandler creates a ProbeHandler. A nil pinger is always ready.
func NewProbeHandler(pinger Pinger, logger *zap.Logger) *ProbeHandler {
	return &ProbeHandler{
		pinger: pinger,
		logger: logger,
	}
}

// Health handles GET /health requests.
func (h *ProbeHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: Version,
	})
}

// Ready handles GET /ready requests.
func (h *ProbeHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, h.logger, http.StatusServiceUnavailable, ReadyResponse{
				Status: "not ready",
				Error:  err.Error(),
			})
			return
		}
	}

	writeJSON(w, h.logger, http.StatusOK, ReadyResponse{Status: "ready"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}
