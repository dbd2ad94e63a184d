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

package passkey

import (
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// CeremonyKind distinguishes registration from authentication ceremonies.
// Tokens from one kind never resolve ceremonies of the other.
type CeremonyKind string

const (
	CeremonyRegistration CeremonyKind = "registration"
	CeremonyLogin        CeremonyKind = "login"
)

// Ceremony is the pending state captured between issuing options and
// verifying the client's response.
type Ceremony struct {
	// Kind is the ceremony type the token was issued for.
	Kind CeremonyKind

	// Subject is the normalized username the ceremony was started for. A new
	// ceremony for the same (Kind, Subject) evicts this one. Empty for
	// discoverable logins, which are never evicted by subject.
	Subject string

	// DisplayName is the username exactly as the caller presented it,
	// preserved so the account created at completion keeps the original
	// form.
	DisplayName string

	// Session holds the challenge, user handle and verification policy the
	// engine validates the response against.
	Session webauthn.SessionData

	// CreatedAt and ExpiresAt bound the ceremony's lifetime.
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the ceremony is past its deadline at the given
// instant.
func (c *Ceremony) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}
