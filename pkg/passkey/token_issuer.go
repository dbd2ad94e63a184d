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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTIssuerConfig configures a JWTIssuer.
type JWTIssuerConfig struct {
	// Issuer is the iss claim. Required.
	Issuer string

	// Audience is the aud claim. Defaults to the issuer.
	Audience []string

	// TTL is the token lifetime. Defaults to one hour.
	TTL time.Duration

	// PrivateKey signs tokens with ES256. When nil an ephemeral P-256 key
	// is generated, which is only useful for single-process deployments
	// since tokens do not survive a restart.
	PrivateKey *ecdsa.PrivateKey
}

// JWTIssuer mints ES256-signed session tokens for authenticated users.
type JWTIssuer struct {
	issuer     string
	audience   []string
	ttl        time.Duration
	privateKey *ecdsa.PrivateKey
	now        func() time.Time
}

// NewJWTIssuer creates a JWT token issuer.
func NewJWTIssuer(config *JWTIssuerConfig) (*JWTIssuer, error) {
	if config == nil || config.Issuer == "" {
		return nil, fmt.Errorf("%w: jwt issuer is required", ErrInvalidConfiguration)
	}

	issuer := &JWTIssuer{
		issuer:     config.Issuer,
		audience:   config.Audience,
		ttl:        config.TTL,
		privateKey: config.PrivateKey,
		now:        time.Now,
	}
	if len(issuer.audience) == 0 {
		issuer.audience = []string{config.Issuer}
	}
	if issuer.ttl <= 0 {
		issuer.ttl = time.Hour
	}
	if issuer.privateKey == nil {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		issuer.privateKey = key
	}
	return issuer, nil
}

// PublicKey returns the verification key for issued tokens.
func (g *JWTIssuer) PublicKey() *ecdsa.PublicKey {
	return &g.privateKey.PublicKey
}

// IssueToken mints a signed token whose subject is the user's handle.
func (g *JWTIssuer) IssueToken(ctx context.Context, user *User) (string, error) {
	if user == nil {
		return "", fmt.Errorf("%w: nil user", ErrInvalidConfiguration)
	}

	now := g.now()
	claims := jwt.MapClaims{
		"iss":                g.issuer,
		"aud":                g.audience,
		"sub":                base64.RawURLEncoding.EncodeToString(user.Handle),
		"iat":                now.Unix(),
		"nbf":                now.Unix(),
		"exp":                now.Add(g.ttl).Unix(),
		"name":               user.DisplayName,
		"preferred_username": user.Username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	signed, err := token.SignedString(g.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
