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

// Package validation provides centralized input validation for the
// passkey APIs. The HTTP layer and the ceremony service both validate
// through these functions, so a malformed username is rejected the same
// way at every entry point.
package validation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxUsernameLength bounds usernames. Authenticators may truncate
	// user.name beyond 64 bytes, but relying parties commonly accept
	// email-length identifiers; 255 matches the mailbox limit.
	MaxUsernameLength = 255

	// MaxDisplayNameLength bounds human-readable display names.
	MaxDisplayNameLength = 255
)

// ValidateUsername validates a username before it enters a ceremony.
// It rejects:
// - Empty or whitespace-only strings
// - Invalid UTF-8
// - Null bytes and other control characters
// - Strings longer than MaxUsernameLength bytes
func ValidateUsername(username string) error {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" {
		return fmt.Errorf("username cannot be empty")
	}

	if len(username) > MaxUsernameLength {
		return fmt.Errorf("username too long (max %d bytes)", MaxUsernameLength)
	}

	if !utf8.ValidString(username) {
		return fmt.Errorf("username contains invalid UTF-8")
	}

	for _, r := range username {
		if unicode.IsControl(r) {
			return fmt.Errorf("username contains control characters")
		}
	}

	return nil
}

// ValidateDisplayName validates an optional display name. An empty
// string is allowed; callers fall back to the username.
func ValidateDisplayName(displayName string) error {
	if displayName == "" {
		return nil
	}

	if len(displayName) > MaxDisplayNameLength {
		return fmt.Errorf("display name too long (max %d bytes)", MaxDisplayNameLength)
	}

	if !utf8.ValidString(displayName) {
		return fmt.Errorf("display name contains invalid UTF-8")
	}

	for _, r := range displayName {
		if unicode.IsControl(r) && r != '\t' {
			return fmt.Errorf("display name contains control characters")
		}
	}

	return nil
}

// ValidateCeremonyToken validates the shape of a ceremony token before
// a store lookup. Tokens are hex-encoded random bytes; anything else
// can be rejected without touching the store.
func ValidateCeremonyToken(token string) error {
	if token == "" {
		return fmt.Errorf("ceremony token cannot be empty")
	}

	if len(token) > 128 {
		return fmt.Errorf("ceremony token too long")
	}

	for _, r := range token {
		isHex := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
		if !isHex {
			return fmt.Errorf("ceremony token contains invalid characters")
		}
	}

	return nil
}
