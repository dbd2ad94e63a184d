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
	"fmt"
	"io"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/jeremyhahn/go-passkey/pkg/validation"
)

// BeginRegistration starts a registration ceremony for username. A fresh
// random user handle is minted for the prospective account, existing
// credentials for the same normalized username are excluded so an
// authenticator is never enrolled twice, and the pending ceremony is stored
// under the returned single-use token. Starting a second registration for the
// same username invalidates the first token.
func (s *Service) BeginRegistration(ctx context.Context, username string, policy RegistrationPolicy) (*protocol.CredentialCreation, string, error) {
	const op = "begin_registration"
	start := s.now()

	if err := validation.ValidateUsername(username); err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
		recordCeremony(op, start, err)
		return nil, "", ceremonyError(op, err)
	}
	username = strings.TrimSpace(username)
	normalized := NormalizeUsername(username)
	policy = s.config.registrationPolicy(policy)

	handle := uuid.New()
	user := &ceremonyUser{
		handle:      handle[:],
		name:        username,
		displayName: username,
	}

	existing, err := s.credentials.FindCredentialsForUsername(ctx, normalized)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		recordCeremony(op, start, err)
		return nil, "", ceremonyError(op, err)
	}
	exclusions := credentialDescriptors(existing)

	selection := protocol.AuthenticatorSelection{
		AuthenticatorAttachment: policy.AuthenticatorAttachment,
		ResidentKey:             policy.ResidentKey,
		UserVerification:        policy.UserVerification,
	}
	if policy.ResidentKey == protocol.ResidentKeyRequirementRequired {
		required := true
		selection.RequireResidentKey = &required
	}

	extensions := protocol.AuthenticationExtensions{
		"credProps":    true,
		"devicePubKey": map[string]interface{}{"attestation": "none"},
	}
	for name, value := range policy.Extensions {
		extensions[name] = value
	}

	opts := []webauthn.RegistrationOption{
		webauthn.WithAuthenticatorSelection(selection),
		webauthn.WithConveyancePreference(policy.AttestationPreference),
		webauthn.WithExtensions(extensions),
	}
	if len(exclusions) > 0 {
		opts = append(opts, webauthn.WithExclusions(exclusions))
	}

	creation, session, err := s.web.BeginRegistration(user, opts...)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrVerificationRejected, err)
		recordCeremony(op, start, err)
		return nil, "", ceremonyError(op, err)
	}

	token, err := s.ceremonies.Save(ctx, &Ceremony{
		Kind:        CeremonyRegistration,
		Subject:     normalized,
		DisplayName: username,
		Session:     *session,
	})
	if err != nil {
		recordCeremony(op, start, err)
		return nil, "", ceremonyError(op, err)
	}

	s.logger.Debug("registration options issued",
		"username", normalized,
		"exclusions", len(exclusions))
	recordCeremony(op, start, nil)
	return creation, token, nil
}

// FinishRegistration completes a registration ceremony. The token is
// consumed whether or not verification succeeds; a retry needs a fresh
// ceremony. On success the new user and its first credential are persisted
// atomically.
func (s *Service) FinishRegistration(ctx context.Context, token string, response io.Reader) (*User, *Credential, error) {
	const op = "finish_registration"
	start := s.now()
	fail := func(err error) (*User, *Credential, error) {
		recordCeremony(op, start, err)
		return nil, nil, ceremonyError(op, err)
	}

	if err := validation.ValidateCeremonyToken(token); err != nil {
		return fail(ErrCeremonyExpiredOrMissing)
	}

	ceremony, err := s.ceremonies.Take(ctx, token)
	if err != nil {
		return fail(err)
	}
	if ceremony.Kind != CeremonyRegistration {
		return fail(ErrCeremonyExpiredOrMissing)
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(response)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrVerificationRejected, err))
	}

	result, err := s.engine.VerifyRegistration(ctx, ceremony, parsed, s.credentials.CredentialIDIsUnused)
	if err != nil {
		return fail(err)
	}

	now := s.now()
	user := &User{
		Handle:             result.UserHandle,
		Username:           ceremony.DisplayName,
		NormalizedUsername: ceremony.Subject,
		DisplayName:        ceremony.DisplayName,
		CreatedAt:          now,
	}
	credential := &Credential{
		ID:               result.CredentialID,
		UserHandle:       result.UserHandle,
		PublicKey:        result.PublicKey,
		AttestationType:  result.AttestationType,
		Transports:       result.Transports,
		Flags:            result.Flags,
		SignatureCounter: result.SignatureCounter,
		Attestation:      result.Attestation,
		CreatedAt:        now,
		LastUsedAt:       now,
	}
	if result.DevicePublicKey != nil {
		credential.DevicePublicKeys = [][]byte{result.DevicePublicKey}
	}

	if err := s.credentials.CreateUserWithCredential(ctx, user, credential); err != nil {
		return fail(err)
	}

	s.logger.Info("credential registered",
		"username", user.NormalizedUsername,
		"credential_id", base64.RawURLEncoding.EncodeToString(credential.ID),
		"attestation_format", credential.Attestation.Format)
	recordCeremony(op, start, nil)
	return user, credential, nil
}

func credentialDescriptors(credentials []*Credential) []protocol.CredentialDescriptor {
	descriptors := make([]protocol.CredentialDescriptor, 0, len(credentials))
	for _, credential := range credentials {
		descriptors = append(descriptors, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: credential.ID,
			Transport:    credential.Transports,
		})
	}
	return descriptors
}
