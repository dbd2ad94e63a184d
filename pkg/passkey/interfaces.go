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
	"context"

	"github.com/go-webauthn/webauthn/protocol"
)

// CeremonyStore holds pending ceremony state between the options and
// completion steps. Implementations must be safe for concurrent use.
type CeremonyStore interface {
	// Save stores a pending ceremony and returns its opaque single-use
	// token. Any prior pending ceremony with the same kind and subject is
	// evicted, so at most one ceremony per (kind, subject) is ever live.
	Save(ctx context.Context, ceremony *Ceremony) (string, error)

	// Take resolves and consumes a pending ceremony. A token resolves at
	// most once; expired, consumed, evicted and unknown tokens all return
	// ErrCeremonyExpiredOrMissing.
	Take(ctx context.Context, token string) (*Ceremony, error)

	// Cleanup removes expired ceremonies and returns how many were removed.
	Cleanup(ctx context.Context) (int, error)
}

// CredentialRepository is the durable store for users and their credentials.
// Implementations must be safe for concurrent use.
type CredentialRepository interface {
	// CreateUserWithCredential atomically persists a new user and its first
	// credential. Neither record is visible unless both commit. A credential
	// ID collision returns ErrDuplicateCredential and leaves no partial
	// user behind.
	CreateUserWithCredential(ctx context.Context, user *User, credential *Credential) error

	// FindCredentialsForUsername returns all credentials belonging to users
	// whose normalized username matches. An unknown username returns an
	// empty slice, not an error.
	FindCredentialsForUsername(ctx context.Context, normalizedUsername string) ([]*Credential, error)

	// FindByCredentialID returns the credential with the given ID or
	// ErrCredentialNotFound.
	FindByCredentialID(ctx context.Context, credentialID []byte) (*Credential, error)

	// FindUserByHandle returns the user owning the given handle or
	// ErrUserNotFound.
	FindUserByHandle(ctx context.Context, handle []byte) (*User, error)

	// UpdateAfterAssertion advances the signature counter from prevCounter
	// to newCounter, refreshes the backup-state flag and appends
	// devicePublicKey (if non-nil and not already recorded) to the
	// credential's device key history. The counter write is
	// compare-and-swap: if the stored counter no longer equals prevCounter
	// the update fails with ErrConcurrentAssertionConflict and nothing is
	// modified.
	UpdateAfterAssertion(ctx context.Context, credentialID []byte, prevCounter, newCounter uint32, devicePublicKey []byte, backupState bool) error

	// CredentialIDIsUnused reports whether no stored credential has the
	// given ID.
	CredentialIDIsUnused(ctx context.Context, credentialID []byte) (bool, error)
}

// UniquenessPredicate is consulted by the verification engine before a new
// credential is accepted.
type UniquenessPredicate func(ctx context.Context, credentialID []byte) (bool, error)

// OwnershipPredicate is consulted by the verification engine when an
// assertion carries a user handle, to confirm the credential belongs to that
// user.
type OwnershipPredicate func(ctx context.Context, userHandle, credentialID []byte) (bool, error)

// VerificationEngine performs the cryptographic validation of attestation
// and assertion responses. The orchestrators treat it as a black box:
// challenge binding, origin and RP ID checks, signature verification and
// policy evaluation all happen behind this interface.
type VerificationEngine interface {
	// VerifyRegistration validates an attestation response against the
	// pending ceremony. The uniqueness predicate is consulted after
	// cryptographic validation; a non-unique credential ID fails with
	// ErrDuplicateCredential.
	VerifyRegistration(ctx context.Context, ceremony *Ceremony, response *protocol.ParsedCredentialCreationData, unused UniquenessPredicate) (*RegistrationResult, error)

	// VerifyAssertion validates an assertion response against the pending
	// ceremony and the stored credential. The ownership predicate is
	// consulted when the response carries a user handle. Counter regression
	// fails with ErrPossibleCloneDetected.
	VerifyAssertion(ctx context.Context, ceremony *Ceremony, response *protocol.ParsedCredentialAssertionData, user *User, credential *Credential, owns OwnershipPredicate) (*AssertionResult, error)
}

// TokenIssuer mints a session artifact for a successfully authenticated
// user. Implementations are expected to be stateless.
type TokenIssuer interface {
	IssueToken(ctx context.Context, user *User) (string, error)
}
