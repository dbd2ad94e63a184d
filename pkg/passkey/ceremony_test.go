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

func TestMemoryCeremonyStore_SaveAndTake(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCeremonyStore(5 * time.Minute)

	token, err := store.Save(ctx, &Ceremony{
		Kind:    CeremonyRegistration,
		Subject: "alice",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	ceremony, err := store.Take(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, CeremonyRegistration, ceremony.Kind)
	assert.Equal(t, "alice", ceremony.Subject)
	assert.False(t, ceremony.ExpiresAt.IsZero())
}

func TestMemoryCeremonyStore_TokenIsSingleUse(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCeremonyStore(5 * time.Minute)

	token, err := store.Save(ctx, &Ceremony{Kind: CeremonyLogin, Subject: "alice"})
	require.NoError(t, err)

	_, err = store.Take(ctx, token)
	require.NoError(t, err)

	_, err = store.Take(ctx, token)
	assert.ErrorIs(t, err, ErrCeremonyExpiredOrMissing)
}

func TestMemoryCeremonyStore_UnknownToken(t *testing.T) {
	store := NewMemoryCeremonyStore(5 * time.Minute)

	_, err := store.Take(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ErrCeremonyExpiredOrMissing)
}

func TestMemoryCeremonyStore_ExpiredToken(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCeremonyStore(time.Minute)

	now := time.Now()
	store.now = func() time.Time { return now }

	token, err := store.Save(ctx, &Ceremony{Kind: CeremonyLogin, Subject: "alice"})
	require.NoError(t, err)

	store.now = func() time.Time { return now.Add(2 * time.Minute) }

	_, err = store.Take(ctx, token)
	assert.ErrorIs(t, err, ErrCeremonyExpiredOrMissing)
}

func TestMemoryCeremonyStore_NewCeremonyEvictsPrior(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCeremonyStore(5 * time.Minute)

	first, err := store.Save(ctx, &Ceremony{Kind: CeremonyLogin, Subject: "alice"})
	require.NoError(t, err)

	second, err := store.Save(ctx, &Ceremony{Kind: CeremonyLogin, Subject: "alice"})
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	// First token was evicted by the second ceremony.
	_, err = store.Take(ctx, first)
	assert.ErrorIs(t, err, ErrCeremonyExpiredOrMissing)

	_, err = store.Take(ctx, second)
	assert.NoError(t, err)
}

func TestMemoryCeremonyStore_EvictionIsPerKind(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCeremonyStore(5 * time.Minute)

	registration, err := store.Save(ctx, &Ceremony{Kind: CeremonyRegistration, Subject: "alice"})
	require.NoError(t, err)

	login, err := store.Save(ctx, &Ceremony{Kind: CeremonyLogin, Subject: "alice"})
	require.NoError(t, err)

	// Different kinds for the same subject coexist.
	_, err = store.Take(ctx, registration)
	assert.NoError(t, err)
	_, err = store.Take(ctx, login)
	assert.NoError(t, err)
}

func TestMemoryCeremonyStore_SubjectlessCeremoniesCoexist(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCeremonyStore(5 * time.Minute)

	first, err := store.Save(ctx, &Ceremony{Kind: CeremonyLogin})
	require.NoError(t, err)
	second, err := store.Save(ctx, &Ceremony{Kind: CeremonyLogin})
	require.NoError(t, err)

	_, err = store.Take(ctx, first)
	assert.NoError(t, err)
	_, err = store.Take(ctx, second)
	assert.NoError(t, err)
}

func TestMemoryCeremonyStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCeremonyStore(time.Minute)

	now := time.Now()
	store.now = func() time.Time { return now }

	_, err := store.Save(ctx, &Ceremony{Kind: CeremonyLogin, Subject: "alice"})
	require.NoError(t, err)
	fresh, err := store.Save(ctx, &Ceremony{Kind: CeremonyLogin, Subject: "bob"})
	require.NoError(t, err)

	store.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = store.Save(ctx, &Ceremony{Kind: CeremonyLogin, Subject: "carol"})
	require.NoError(t, err)

	removed, err := store.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = store.Take(ctx, fresh)
	assert.ErrorIs(t, err, ErrCeremonyExpiredOrMissing)
}
