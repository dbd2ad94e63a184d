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

// Package http exposes passkey ceremonies over HTTP. The handlers are
// router-agnostic http.HandlerFunc values; MountChi wires them onto a chi
// router.
package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

// Handler provides HTTP handlers for passkey ceremonies. The handlers can be
// mounted on any HTTP router.
type Handler struct {
	service *passkey.Service
	logger  *slog.Logger
}

// NewHandler creates a new passkey HTTP handler.
func NewHandler(service *passkey.Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// BeginRegistration handles POST /registration/begin
//
// Request body:
//
//	{
//	    "username": "alice@example.com"
//	}
//
// Response: WebAuthn PublicKeyCredentialCreationOptions
// Header: X-Ceremony-Token (single-use token for FinishRegistration)
func (h *Handler) BeginRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req BeginRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}
	if req.Username == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "username is required")
		return
	}

	options, token, err := h.service.BeginRegistration(r.Context(), req.Username, passkey.RegistrationPolicy{})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.Header().Set(HeaderCeremonyToken, token)
	h.writeJSON(w, http.StatusOK, options)
}

// FinishRegistration handles POST /registration/finish
//
// Header: X-Ceremony-Token (from BeginRegistration)
// Request body: attestation response from the authenticator
// Response: AuthResponse
func (h *Handler) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	token := r.Header.Get(HeaderCeremonyToken)
	if token == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "ceremony token header is required")
		return
	}

	user, credential, err := h.service.FinishRegistration(r.Context(), token, r.Body)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, AuthResponse{
		UserHandle:   base64.RawURLEncoding.EncodeToString(user.Handle),
		Username:     user.Username,
		CredentialID: base64.RawURLEncoding.EncodeToString(credential.ID),
	})
}

// BeginLogin handles POST /login/begin
//
// Request body:
//
//	{
//	    "username": "alice@example.com" // optional
//	}
//
// An empty or absent username starts a discoverable credential flow.
// Response: WebAuthn PublicKeyCredentialRequestOptions
// Header: X-Ceremony-Token (single-use token for FinishLogin)
func (h *Handler) BeginLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req BeginLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Allow an empty body for discoverable credentials
		req = BeginLoginRequest{}
	}

	var err error
	var options interface{}
	var token string
	if req.Username == "" {
		options, token, err = h.service.BeginDiscoverableLogin(r.Context(), passkey.LoginPolicy{})
	} else {
		options, token, err = h.service.BeginLogin(r.Context(), req.Username, passkey.LoginPolicy{})
	}
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.Header().Set(HeaderCeremonyToken, token)
	h.writeJSON(w, http.StatusOK, options)
}

// FinishLogin handles POST /login/finish
//
// Header: X-Ceremony-Token (from BeginLogin)
// Request body: assertion response from the authenticator
// Response: AuthResponse
func (h *Handler) FinishLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	token := r.Header.Get(HeaderCeremonyToken)
	if token == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "ceremony token header is required")
		return
	}

	authenticated, err := h.service.FinishLogin(r.Context(), token, r.Body)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, AuthResponse{
		Token:        authenticated.Token,
		UserHandle:   base64.RawURLEncoding.EncodeToString(authenticated.User.Handle),
		Username:     authenticated.User.Username,
		CredentialID: base64.RawURLEncoding.EncodeToString(authenticated.Credential.ID),
	})
}

// handleServiceError maps service errors to HTTP responses. An unknown
// credential, a missing user and a rejected signature all present
// identically so failed logins reveal nothing about which accounts or
// credentials exist. Clone detection is also folded into the same response;
// the distinct cause is only visible in server logs and metrics.
func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case passkey.IsCeremonyExpiredOrMissing(err):
		h.writeError(w, http.StatusBadRequest, ErrorCodeCeremonyExpired, "ceremony expired or missing")
	case passkey.IsDuplicateCredential(err):
		h.writeError(w, http.StatusConflict, ErrorCodeDuplicateCredential, "credential already registered")
	case passkey.IsConcurrentAssertionConflict(err):
		h.writeError(w, http.StatusConflict, ErrorCodeConflict, "assertion conflict, retry the ceremony")
	case passkey.IsNotFound(err),
		passkey.IsVerificationRejected(err),
		passkey.IsPossibleCloneDetected(err):
		h.writeError(w, http.StatusUnauthorized, ErrorCodeVerificationFailed, "verification failed")
	case errors.Is(err, passkey.ErrInvalidConfiguration):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request")
	case errors.Is(err, passkey.ErrStorageUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, ErrorCodeInternalError, "service unavailable")
	default:
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
	}
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
