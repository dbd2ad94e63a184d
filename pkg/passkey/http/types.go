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

package http

// HeaderCeremonyToken carries the single-use ceremony token between the
// options and completion requests.
const HeaderCeremonyToken = "X-Ceremony-Token"

// BeginRegistrationRequest is the request body for starting registration.
type BeginRegistrationRequest struct {
	// Username identifies the account to create (required).
	Username string `json:"username"`
}

// BeginLoginRequest is the request body for starting authentication.
type BeginLoginRequest struct {
	// Username identifies the account to authenticate (optional). When
	// empty the discoverable credential flow is used.
	Username string `json:"username,omitempty"`
}

// AuthResponse is the response after a successful registration or login.
type AuthResponse struct {
	// Token is the session token, when a token issuer is configured.
	Token string `json:"token,omitempty"`

	// UserHandle is the base64url-encoded user handle.
	UserHandle string `json:"user_handle"`

	// Username is the account's username as originally presented.
	Username string `json:"username"`

	// CredentialID is the base64url-encoded credential ID used.
	CredentialID string `json:"credential_id"`
}

// ErrorResponse is the response format for errors.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse.
const (
	ErrorCodeInvalidRequest      = "invalid_request"
	ErrorCodeCeremonyExpired     = "ceremony_expired"
	ErrorCodeVerificationFailed  = "verification_failed"
	ErrorCodeDuplicateCredential = "duplicate_credential"
	ErrorCodeConflict            = "conflict"
	ErrorCodeInternalError       = "internal_error"
)
