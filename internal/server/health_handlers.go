// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package server

import (
	"net/http"

	"github.com/jeremyhahn/go-passkey/pkg/health"
)

// healthResponse is the body for all health endpoints.
type healthResponse struct {
	// Status is the overall health status
	Status health.Status `json:"status"`
	// Message provides additional context
	Message string `json:"message,omitempty"`
	// Checks contains individual check results (for readiness)
	Checks []health.CheckResult `json:"checks,omitempty"`
}

// healthHandler handles GET /health, a summary endpoint that reports
// overall readiness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	results := s.checker.Ready(r.Context())
	status := health.AggregateStatus(results)

	code := http.StatusOK
	if status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, healthResponse{Status: status}, code)
}

// livenessHandler handles GET /health/live.
//
// Liveness probes determine if the service should be restarted. This
// endpoint only fails when the process is in an unrecoverable state.
func (s *Server) livenessHandler(w http.ResponseWriter, r *http.Request) {
	result := s.checker.Live(r.Context())

	code := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, healthResponse{Status: result.Status, Message: result.Message}, code)
}

// readinessHandler handles GET /health/ready.
//
// Readiness probes determine if the service can accept traffic. The
// endpoint fails while the credential store is unreachable, since no
// ceremony can complete without it.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	results := s.checker.Ready(r.Context())
	status := health.AggregateStatus(results)

	resp := healthResponse{Status: status, Checks: results}
	switch status {
	case health.StatusHealthy:
		resp.Message = "All checks passed"
	case health.StatusDegraded:
		resp.Message = "Service is degraded"
	case health.StatusUnhealthy:
		resp.Message = "One or more checks failed"
	}

	code := http.StatusOK
	if status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, resp, code)
}

// startupHandler handles GET /health/startup.
//
// Startup probes gate liveness and readiness until initialization has
// completed. The check fails until the server has started listening.
func (s *Server) startupHandler(w http.ResponseWriter, r *http.Request) {
	result := s.checker.Startup(r.Context())

	code := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, healthResponse{Status: result.Status, Message: result.Message}, code)
}
