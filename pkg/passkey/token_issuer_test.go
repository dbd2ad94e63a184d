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
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJWTIssuer_RequiresIssuer(t *testing.T) {
	_, err := NewJWTIssuer(nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewJWTIssuer(&JWTIssuerConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestJWTIssuer_IssueToken(t *testing.T) {
	issuer, err := NewJWTIssuer(&JWTIssuerConfig{
		Issuer: "https://example.com",
		TTL:    time.Hour,
	})
	require.NoError(t, err)

	user := testUser("Alice", []byte("handle-1"))
	signed, err := issuer.IssueToken(context.Background(), user)
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	token, err := jwt.Parse(signed, func(token *jwt.Token) (interface{}, error) {
		return issuer.PublicKey(), nil
	}, jwt.WithValidMethods([]string{"ES256"}))
	require.NoError(t, err)
	require.True(t, token.Valid)

	claims, ok := token.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, "https://example.com", claims["iss"])
	assert.Equal(t, base64.RawURLEncoding.EncodeToString([]byte("handle-1")), claims["sub"])
	assert.Equal(t, "Alice", claims["preferred_username"])
}

func TestJWTIssuer_NilUser(t *testing.T) {
	issuer, err := NewJWTIssuer(&JWTIssuerConfig{Issuer: "https://example.com"})
	require.NoError(t, err)

	_, err = issuer.IssueToken(context.Background(), nil)
	assert.Error(t, err)
}
