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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCeremonyError_WrapsAndUnwraps(t *testing.T) {
	err := ceremonyError("finish_login", ErrPossibleCloneDetected)

	assert.ErrorIs(t, err, ErrPossibleCloneDetected)
	assert.Contains(t, err.Error(), "finish_login")

	var ceremonyErr *CeremonyError
	assert.True(t, errors.As(err, &ceremonyErr))
	assert.Equal(t, "finish_login", ceremonyErr.Op)
}

func TestCeremonyError_NilPassthrough(t *testing.T) {
	assert.NoError(t, ceremonyError("op", nil))
}

func TestErrorHelpers(t *testing.T) {
	wrap := func(err error) error { return fmt.Errorf("outer: %w", err) }

	assert.True(t, IsCeremonyExpiredOrMissing(wrap(ErrCeremonyExpiredOrMissing)))
	assert.True(t, IsVerificationRejected(wrap(ErrVerificationRejected)))
	assert.True(t, IsPossibleCloneDetected(wrap(ErrPossibleCloneDetected)))
	assert.True(t, IsConcurrentAssertionConflict(wrap(ErrConcurrentAssertionConflict)))
	assert.True(t, IsDuplicateCredential(wrap(ErrDuplicateCredential)))
	assert.True(t, IsNotFound(wrap(ErrCredentialNotFound)))
	assert.True(t, IsNotFound(wrap(ErrUserNotFound)))

	assert.False(t, IsPossibleCloneDetected(ErrVerificationRejected))
	assert.False(t, IsNotFound(ErrVerificationRejected))
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "possible_clone", failureReason(ceremonyError("op", ErrPossibleCloneDetected)))
	assert.Equal(t, "ceremony_expired_or_missing", failureReason(ErrCeremonyExpiredOrMissing))
	assert.Equal(t, "other", failureReason(errors.New("boom")))
}
