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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUser(username string, handle []byte) *User {
	return &User{
		Handle:             handle,
		Username:           username,
		NormalizedUsername: NormalizeUsername(username),
		DisplayName:        username,
		CreatedAt:          time.Now(),
	}
}

func testCredential(id, handle []byte) *Credential {
	return &Credential{
		ID:         id,
		UserHandle: handle,
		PublicKey:  []byte("public-key"),
		CreatedAt:  time.Now(),
	}
}

func TestMemoryCredentialRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCredentialRepository()

	handle := []byte("handle-1")
	require.NoError(t, repo.CreateUserWithCredential(ctx,
		testUser("Alice", handle), testCredential([]byte("cred-1"), handle)))

	// Lookup is by normalized username.
	credentials, err := repo.FindCredentialsForUsername(ctx, NormalizeUsername("ALICE"))
	require.NoError(t, err)
	require.Len(t, credentials, 1)
	assert.Equal(t, []byte("cred-1"), credentials[0].ID)

	credential, err := repo.FindByCredentialID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, handle, credential.UserHandle)

	user, err := repo.FindUserByHandle(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Username)
	assert.Equal(t, "alice", user.NormalizedUsername)
}

func TestMemoryCredentialRepository_UnknownUsernameReturnsEmpty(t *testing.T) {
	repo := NewMemoryCredentialRepository()

	credentials, err := repo.FindCredentialsForUsername(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, credentials)
}

func TestMemoryCredentialRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCredentialRepository()

	_, err := repo.FindByCredentialID(ctx, []byte("missing"))
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	_, err = repo.FindUserByHandle(ctx, []byte("missing"))
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryCredentialRepository_DuplicateCredentialLeavesNoPartialUser(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCredentialRepository()

	credID := []byte("shared-cred")
	require.NoError(t, repo.CreateUserWithCredential(ctx,
		testUser("alice", []byte("handle-1")), testCredential(credID, []byte("handle-1"))))

	err := repo.CreateUserWithCredential(ctx,
		testUser("bob", []byte("handle-2")), testCredential(credID, []byte("handle-2")))
	assert.ErrorIs(t, err, ErrDuplicateCredential)

	// The failed registration must not leave a user behind.
	_, err = repo.FindUserByHandle(ctx, []byte("handle-2"))
	assert.ErrorIs(t, err, ErrUserNotFound)

	// The original owner is untouched.
	credential, err := repo.FindByCredentialID(ctx, credID)
	require.NoError(t, err)
	assert.Equal(t, []byte("handle-1"), credential.UserHandle)
}

func TestMemoryCredentialRepository_UpdateAfterAssertionAdvancesCounter(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCredentialRepository()

	handle := []byte("handle-1")
	credential := testCredential([]byte("cred-1"), handle)
	credential.SignatureCounter = 4
	require.NoError(t, repo.CreateUserWithCredential(ctx, testUser("alice", handle), credential))

	require.NoError(t, repo.UpdateAfterAssertion(ctx, []byte("cred-1"), 4, 5, nil, true))

	updated, err := repo.FindByCredentialID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, uint32(5), updated.SignatureCounter)
	assert.True(t, updated.Flags.BackupState)
	assert.False(t, updated.LastUsedAt.IsZero())
}

func TestMemoryCredentialRepository_UpdateAfterAssertionIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCredentialRepository()

	handle := []byte("handle-1")
	credential := testCredential([]byte("cred-1"), handle)
	credential.SignatureCounter = 4
	require.NoError(t, repo.CreateUserWithCredential(ctx, testUser("alice", handle), credential))

	// Two assertions read counter 4 concurrently. One writes 5, the other
	// writes 6; exactly one wins.
	require.NoError(t, repo.UpdateAfterAssertion(ctx, []byte("cred-1"), 4, 5, nil, false))

	err := repo.UpdateAfterAssertion(ctx, []byte("cred-1"), 4, 6, nil, false)
	assert.ErrorIs(t, err, ErrConcurrentAssertionConflict)

	updated, err := repo.FindByCredentialID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, uint32(5), updated.SignatureCounter)
}

func TestMemoryCredentialRepository_DeviceKeyHistoryIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCredentialRepository()

	handle := []byte("handle-1")
	credential := testCredential([]byte("cred-1"), handle)
	credential.DevicePublicKeys = [][]byte{[]byte("device-key-1")}
	require.NoError(t, repo.CreateUserWithCredential(ctx, testUser("alice", handle), credential))

	// A new device key strictly grows the history.
	require.NoError(t, repo.UpdateAfterAssertion(ctx, []byte("cred-1"), 0, 1, []byte("device-key-2"), false))

	updated, err := repo.FindByCredentialID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	require.Len(t, updated.DevicePublicKeys, 2)
	assert.Equal(t, []byte("device-key-1"), updated.DevicePublicKeys[0])
	assert.Equal(t, []byte("device-key-2"), updated.DevicePublicKeys[1])

	// A key already on record is not duplicated.
	require.NoError(t, repo.UpdateAfterAssertion(ctx, []byte("cred-1"), 1, 2, []byte("device-key-2"), false))

	updated, err = repo.FindByCredentialID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Len(t, updated.DevicePublicKeys, 2)
}

func TestMemoryCredentialRepository_CredentialIDIsUnused(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCredentialRepository()

	unused, err := repo.CredentialIDIsUnused(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.True(t, unused)

	handle := []byte("handle-1")
	require.NoError(t, repo.CreateUserWithCredential(ctx,
		testUser("alice", handle), testCredential([]byte("cred-1"), handle)))

	unused, err = repo.CredentialIDIsUnused(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.False(t, unused)
}

func TestMemoryCredentialRepository_ReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCredentialRepository()

	handle := []byte("handle-1")
	require.NoError(t, repo.CreateUserWithCredential(ctx,
		testUser("alice", handle), testCredential([]byte("cred-1"), handle)))

	credential, err := repo.FindByCredentialID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	credential.SignatureCounter = 99
	credential.PublicKey[0] = 'X'

	stored, err := repo.FindByCredentialID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), stored.SignatureCounter)
	assert.Equal(t, []byte("public-key"), stored.PublicKey)
}
