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
	"errors"
	"fmt"
)

var (
	// ErrCeremonyExpiredOrMissing indicates the ceremony token presented at
	// completion does not resolve to a pending ceremony. The token may have
	// expired, been consumed by an earlier completion attempt, been evicted
	// by a newer ceremony for the same subject, or never existed at all. The
	// cases are deliberately indistinguishable to callers.
	ErrCeremonyExpiredOrMissing = errors.New("ceremony expired or missing")

	// ErrCredentialNotFound indicates the credential ID asserted by the
	// client is not present in the repository.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrUserNotFound indicates a credential resolved but its owning user
	// record is absent. This is a referential integrity fault.
	ErrUserNotFound = errors.New("user not found")

	// ErrVerificationRejected indicates the verification engine rejected the
	// attestation or assertion payload (bad signature, challenge mismatch,
	// origin mismatch, policy violation).
	ErrVerificationRejected = errors.New("verification rejected")

	// ErrPossibleCloneDetected indicates the asserted signature counter did
	// not advance past the stored counter, which suggests a cloned
	// authenticator.
	ErrPossibleCloneDetected = errors.New("possible cloned authenticator detected")

	// ErrConcurrentAssertionConflict indicates the stored signature counter
	// changed between read and write, meaning another assertion for the same
	// credential completed concurrently.
	ErrConcurrentAssertionConflict = errors.New("concurrent assertion conflict")

	// ErrDuplicateCredential indicates the credential ID is already
	// registered.
	ErrDuplicateCredential = errors.New("credential already registered")

	// ErrStorageUnavailable indicates the backing store failed for reasons
	// unrelated to the ceremony itself.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidConfiguration indicates the service or repository was
	// constructed with invalid parameters.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// CeremonyError wraps an error with the ceremony operation that produced it.
type CeremonyError struct {
	Op  string
	Err error
}

func (e *CeremonyError) Error() string {
	return fmt.Sprintf("passkey: %s: %v", e.Op, e.Err)
}

func (e *CeremonyError) Unwrap() error {
	return e.Err
}

func ceremonyError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &CeremonyError{Op: op, Err: err}
}

// IsCeremonyExpiredOrMissing reports whether err indicates a stale, consumed
// or unknown ceremony token.
func IsCeremonyExpiredOrMissing(err error) bool {
	return errors.Is(err, ErrCeremonyExpiredOrMissing)
}

// IsVerificationRejected reports whether err indicates the verification
// engine rejected the client payload.
func IsVerificationRejected(err error) bool {
	return errors.Is(err, ErrVerificationRejected)
}

// IsPossibleCloneDetected reports whether err indicates a signature counter
// regression.
func IsPossibleCloneDetected(err error) bool {
	return errors.Is(err, ErrPossibleCloneDetected)
}

// IsConcurrentAssertionConflict reports whether err indicates a lost
// compare-and-swap on the signature counter.
func IsConcurrentAssertionConflict(err error) bool {
	return errors.Is(err, ErrConcurrentAssertionConflict)
}

// IsDuplicateCredential reports whether err indicates the credential ID is
// already registered.
func IsDuplicateCredential(err error) bool {
	return errors.Is(err, ErrDuplicateCredential)
}

// IsNotFound reports whether err indicates a missing credential or user.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCredentialNotFound) || errors.Is(err, ErrUserNotFound)
}
