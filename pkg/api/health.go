package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/cadence/pkg/metrics"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Version    string            `json:"version,omitempty"`
	Components map[string]string `json:"components,omitempty"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// LiveResponse represents the liveness check response
type LiveResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// healthHandler implements the /health endpoint. It reports every
// component the process registered; 503 when any is unhealthy.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := s.health.Health()
	statusCode := http.StatusOK
	if health.Status != metrics.StatusHealthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, HealthResponse{
		Status:     health.Status,
		Timestamp:  time.Now(),
		Version:    s.cfg.Version,
		Components: health.Components,
	})
}

// readyHandler implements the /ready endpoint.
// This checks the ledger directly and the critical components' health.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ready := true
	var message string

	// Check 1: Storage
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		_, err := s.store.ListAccounts(ctx)
		cancel()
		if err != nil {
			checks["storage"] = fmt.Sprintf("error: %v", err)
			ready = false
			message = "Storage not accessible"
		} else {
			checks["storage"] = "ok"
		}
	} else {
		checks["storage"] = "not initialized"
		ready = false
		message = "Storage not initialized"
	}

	// Check 2: Critical components (store, scheduler)
	readiness := s.health.Readiness()
	for name, state := range readiness.Components {
		checks[name] = state
	}
	if readiness.Status != metrics.StatusReady {
		ready = false
		if message == "" {
			message = readiness.Message
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Message:   message,
	})
}

// liveHandler implements the /live endpoint. It only proves the process
// is serving requests.
func (s *Server) liveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, LiveResponse{
		Status: "alive",
		Uptime: s.health.Uptime().Round(time.Second).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
