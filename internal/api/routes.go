// Package api provides the HTTP trigger surface for the vinsync service.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vinsync-io/vinsync/internal/api/middleware"
)

const (
	serviceName    = "vinsync"
	serviceVersion = "v1.0.0"

	healthCheckTimeout = 2 * time.Second
)

type (
	// Version represents the API version response structure.
	Version struct {
		Version     string `json:"version"`
		ServiceName string `json:"serviceName"`
	}

	// HealthStatus represents the health check response structure.
	HealthStatus struct {
		Status      string `json:"status"`
		ServiceName string `json:"serviceName"`
		Version     string `json:"version"`
		Uptime      string `json:"uptime,omitempty"`
	}

	// Route represents an HTTP route configuration with a pattern and handler.
	// Used for declarative route registration with middleware bypass support.
	Route struct {
		Pattern string           // The mux pattern for this route (e.g., "GET /ping")
		Handler http.HandlerFunc // The HTTP handler function for this route
	}
)

// setupRoutes sets up all HTTP routes for the trigger server.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Public health endpoints
	s.registerPublicRoutes(
		mux,
		Route{"GET /ping", s.handlePing},                  // K8s liveness probe
		Route{"GET /ready", s.handleReady},                // K8s readiness probe
		Route{"GET /health", s.handleHealth},              // Basic health check - status, uptime, version
		Route{"GET /api/v1/version", s.handleVersion},     // Service version
		Route{"GET /{$}", s.handleReady},                  // Root readiness for load balancer checks
	)

	// Protected trigger endpoint: runs a full sync cycle
	mux.HandleFunc("POST /{$}", s.handleTrigger)

	// Catch-all handler for 404 responses
	mux.HandleFunc("/", s.handleNotFound)
}

// registerPublicRoutes registers HTTP routes that bypass authentication and rate limiting.
// This is a convenience method that:
//  1. Registers the route handler with the HTTP mux
//  2. Registers the method-qualified pattern as a public endpoint (bypasses auth middleware)
//
// Public routes should only be used for health check endpoints that need to be
// accessible without authentication (e.g., K8s liveness/readiness probes,
// monitoring tools).
//
// Security Warning: Never register the trigger endpoint as a public route.
func (s *Server) registerPublicRoutes(mux *http.ServeMux, routes ...Route) {
	for _, route := range routes {
		mux.Handle(route.Pattern, route.Handler)

		// Public endpoint keys use the request shape "METHOD /path":
		// r.URL.Path never carries mux wildcards, so "GET /{$}" maps to "GET /"
		endpoint := strings.TrimSuffix(route.Pattern, "{$}")

		if !strings.Contains(endpoint, " ") {
			s.logger.Warn("Public route pattern missing method, ignoring bypass",
				slog.String("pattern", route.Pattern))

			continue
		}

		middleware.RegisterPublicEndpoint(endpoint)
	}
}

// handlePing responds to ping requests for basic server validation.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("pong")); err != nil {
		s.logger.Error("Failed to write ping response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleReady responds to readiness probes with a staging store health check.
//
// Response codes:
//   - 200 OK: The staging store is reachable and ready to accept a trigger
//   - 503 Service Unavailable: The staging store is unhealthy or unreachable
//
// A cycle triggered while the store is down would fail before touching any
// file, so an unhealthy store means the pod should not receive triggers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	if s.health == nil {
		s.logger.Warn("Health checker not configured - readiness check disabled",
			slog.String("correlation_id", correlationID),
		)

		s.writePlain(w, correlationID, http.StatusOK, "ready")

		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.health.HealthCheck(ctx); err != nil {
		s.logger.Error("Storage health check failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		s.writePlain(w, correlationID, http.StatusServiceUnavailable, "storage unavailable")

		return
	}

	s.writePlain(w, correlationID, http.StatusOK, "ready")
}

// writePlain writes a short text/plain response.
func (s *Server) writePlain(w http.ResponseWriter, correlationID string, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)

	if _, err := w.Write([]byte(body)); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleHealth returns detailed health status information.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var uptime string

	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	health := HealthStatus{
		Status:      "healthy",
		ServiceName: serviceName,
		Version:     serviceVersion,
		Uptime:      uptime,
	}

	s.writeJSON(w, r, health)
}

// handleVersion returns the service name and version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, Version{
		Version:     serviceVersion,
		ServiceName: serviceName,
	})
}

// writeJSON marshals v and writes it as an application/json response.
// Headers are only written after successful marshaling.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	correlationID := middleware.GetCorrelationID(r.Context())

	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// handleNotFound returns RFC 7807 compliant 404 responses for unknown endpoints.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}

// hasJSONContentType checks if Content-Type header starts with "application/json".
// This allows charset parameters (e.g., "application/json; charset=utf-8").
func hasJSONContentType(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(contentType), "application/json")
}
