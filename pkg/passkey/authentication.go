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
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/jeremyhahn/go-passkey/pkg/validation"
)

// BeginLogin starts an authentication ceremony for username. The returned
// options carry a fresh challenge and the allow-list of the user's
// credentials. An unknown username is indistinguishable from a known one:
// the options are well formed with an empty allow-list, and failure only
// surfaces at completion. Starting a second login for the same username
// invalidates the first token.
func (s *Service) BeginLogin(ctx context.Context, username string, policy LoginPolicy) (*protocol.CredentialAssertion, string, error) {
	const op = "begin_login"
	start := s.now()

	normalized := NormalizeUsername(username)
	policy = s.config.loginPolicy(policy)

	credentials, err := s.credentials.FindCredentialsForUsername(ctx, normalized)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		recordCeremony(op, start, err)
		return nil, "", ceremonyError(op, err)
	}

	var userHandle []byte
	if len(credentials) > 0 {
		userHandle = credentials[0].UserHandle
	}

	assertion, token, err := s.beginAssertion(ctx, &Ceremony{
		Kind:        CeremonyLogin,
		Subject:     normalized,
		DisplayName: username,
	}, userHandle, credentialDescriptors(credentials), policy)
	if err != nil {
		recordCeremony(op, start, err)
		return nil, "", ceremonyError(op, err)
	}

	s.logger.Debug("login options issued",
		"username", normalized,
		"allowed_credentials", len(credentials))
	recordCeremony(op, start, nil)
	return assertion, token, nil
}

// BeginDiscoverableLogin starts a usernameless authentication ceremony. The
// options carry no allow-list; the authenticator picks a resident credential
// and the account is resolved at completion from the asserted user handle.
func (s *Service) BeginDiscoverableLogin(ctx context.Context, policy LoginPolicy) (*protocol.CredentialAssertion, string, error) {
	const op = "begin_discoverable_login"
	start := s.now()

	policy = s.config.loginPolicy(policy)
	assertion, token, err := s.beginAssertion(ctx, &Ceremony{Kind: CeremonyLogin}, nil, nil, policy)
	if err != nil {
		recordCeremony(op, start, err)
		return nil, "", ceremonyError(op, err)
	}

	s.logger.Debug("discoverable login options issued")
	recordCeremony(op, start, nil)
	return assertion, token, nil
}

// beginAssertion mints the challenge, builds request options and stores the
// pending ceremony. The devicePubKey extension is always requested so
// authenticators report device keys on every assertion. The session user
// handle stays nil for discoverable logins so completion resolves the
// account from the assertion itself.
func (s *Service) beginAssertion(ctx context.Context, ceremony *Ceremony, userHandle []byte, allowed []protocol.CredentialDescriptor, policy LoginPolicy) (*protocol.CredentialAssertion, string, error) {
	challenge, err := protocol.CreateChallenge()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	allowedIDs := make([][]byte, 0, len(allowed))
	for _, descriptor := range allowed {
		allowedIDs = append(allowedIDs, descriptor.CredentialID)
	}

	ceremony.Session = webauthn.SessionData{
		Challenge:            challenge.String(),
		UserID:               userHandle,
		AllowedCredentialIDs: allowedIDs,
		Expires:              s.now().Add(s.config.CeremonyTTL),
		UserVerification:     policy.UserVerification,
	}

	token, err := s.ceremonies.Save(ctx, ceremony)
	if err != nil {
		return nil, "", err
	}

	extensions := protocol.AuthenticationExtensions{
		"devicePubKey": map[string]interface{}{"attestation": "none"},
	}
	for name, value := range policy.Extensions {
		extensions[name] = value
	}

	assertion := &protocol.CredentialAssertion{
		Response: protocol.PublicKeyCredentialRequestOptions{
			Challenge:          challenge,
			Timeout:            int(s.config.CeremonyTTL.Milliseconds()),
			RelyingPartyID:     s.config.RPID,
			AllowedCredentials: allowed,
			UserVerification:   policy.UserVerification,
			Extensions:         extensions,
		},
	}
	return assertion, token, nil
}

// FinishLogin completes an authentication ceremony. The token is consumed
// whether or not verification succeeds. On success the credential's
// signature counter is advanced with compare-and-swap semantics, its device
// public key history and backup-state flag are refreshed, and a session
// token is minted when a TokenIssuer is configured.
func (s *Service) FinishLogin(ctx context.Context, token string, response io.Reader) (*AuthenticatedUser, error) {
	const op = "finish_login"
	start := s.now()
	fail := func(err error) (*AuthenticatedUser, error) {
		recordCeremony(op, start, err)
		return nil, ceremonyError(op, err)
	}

	if err := validation.ValidateCeremonyToken(token); err != nil {
		return fail(ErrCeremonyExpiredOrMissing)
	}

	ceremony, err := s.ceremonies.Take(ctx, token)
	if err != nil {
		return fail(err)
	}
	if ceremony.Kind != CeremonyLogin {
		return fail(ErrCeremonyExpiredOrMissing)
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(response)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrVerificationRejected, err))
	}

	credential, err := s.credentials.FindByCredentialID(ctx, parsed.RawID)
	if err != nil {
		return fail(err)
	}
	user, err := s.credentials.FindUserByHandle(ctx, credential.UserHandle)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.logger.Errorf("credential %s references missing user handle %s",
				base64.RawURLEncoding.EncodeToString(credential.ID),
				base64.RawURLEncoding.EncodeToString(credential.UserHandle))
		}
		return fail(err)
	}

	result, err := s.engine.VerifyAssertion(ctx, ceremony, parsed, user, credential, s.ownsCredential)
	if err != nil {
		if IsPossibleCloneDetected(err) {
			s.logger.Warn("possible cloned authenticator",
				"username", user.NormalizedUsername,
				"credential_id", base64.RawURLEncoding.EncodeToString(credential.ID))
		}
		return fail(err)
	}

	err = s.credentials.UpdateAfterAssertion(ctx, credential.ID,
		credential.SignatureCounter, result.NewCounter, result.DevicePublicKey, result.BackupState)
	if err != nil {
		return fail(err)
	}

	updated, err := s.credentials.FindByCredentialID(ctx, credential.ID)
	if err != nil {
		return fail(err)
	}

	var sessionToken string
	if s.tokenIssuer != nil {
		sessionToken, err = s.tokenIssuer.IssueToken(ctx, user)
		if err != nil {
			return fail(fmt.Errorf("issue token: %w", err))
		}
	}

	s.logger.Info("login verified",
		"username", user.NormalizedUsername,
		"credential_id", base64.RawURLEncoding.EncodeToString(credential.ID),
		"signature_counter", result.NewCounter)
	recordCeremony(op, start, nil)
	return &AuthenticatedUser{
		User:       user,
		Credential: updated,
		Token:      sessionToken,
	}, nil
}

// ownsCredential confirms an asserted user handle matches the credential's
// stored owner.
func (s *Service) ownsCredential(ctx context.Context, userHandle, credentialID []byte) (bool, error) {
	credential, err := s.credentials.FindByCredentialID(ctx, credentialID)
	if errors.Is(err, ErrCredentialNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return bytes.Equal(credential.UserHandle, userHandle), nil
}
