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
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// defaultEngine implements VerificationEngine on top of
// github.com/go-webauthn/webauthn.
type defaultEngine struct {
	web *webauthn.WebAuthn
}

func newDefaultEngine(web *webauthn.WebAuthn) *defaultEngine {
	return &defaultEngine{web: web}
}

func (e *defaultEngine) VerifyRegistration(ctx context.Context, ceremony *Ceremony, response *protocol.ParsedCredentialCreationData, unused UniquenessPredicate) (*RegistrationResult, error) {
	user := &ceremonyUser{
		handle:      ceremony.Session.UserID,
		name:        ceremony.DisplayName,
		displayName: ceremony.DisplayName,
	}

	credential, err := e.web.CreateCredential(user, ceremony.Session, response)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationRejected, err)
	}

	if unused != nil {
		ok, err := unused(ctx, credential.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrDuplicateCredential
		}
	}

	clientDataHash := sha256.Sum256(response.Raw.AttestationResponse.ClientDataJSON)
	return &RegistrationResult{
		UserHandle:      ceremony.Session.UserID,
		CredentialID:    credential.ID,
		PublicKey:       credential.PublicKey,
		AttestationType: credential.AttestationType,
		Transports:      credential.Transport,
		Flags: CredentialFlags{
			UserPresent:    credential.Flags.UserPresent,
			UserVerified:   credential.Flags.UserVerified,
			BackupEligible: credential.Flags.BackupEligible,
			BackupState:    credential.Flags.BackupState,
		},
		SignatureCounter: credential.Authenticator.SignCount,
		Attestation: AttestationMetadata{
			Format:         response.Response.AttestationObject.Format,
			Object:         response.Raw.AttestationResponse.AttestationObject,
			ClientDataHash: clientDataHash[:],
			AAGUID:         credential.Authenticator.AAGUID,
		},
		DevicePublicKey: devicePublicKeyOutput(response.ClientExtensionResults),
	}, nil
}

func (e *defaultEngine) VerifyAssertion(ctx context.Context, ceremony *Ceremony, response *protocol.ParsedCredentialAssertionData, user *User, credential *Credential, owns OwnershipPredicate) (*AssertionResult, error) {
	if handle := response.Response.UserHandle; len(handle) > 0 && owns != nil {
		ok, err := owns(ctx, handle, response.RawID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: credential is not owned by the asserted user", ErrVerificationRejected)
		}
	}

	webUser := &ceremonyUser{
		handle:      user.Handle,
		name:        user.Username,
		displayName: user.DisplayName,
		credentials: []webauthn.Credential{credential.toWebAuthn()},
	}

	var err error
	if len(ceremony.Session.UserID) > 0 {
		_, err = e.web.ValidateLogin(webUser, ceremony.Session, response)
	} else {
		handler := func(rawID, userHandle []byte) (webauthn.User, error) {
			return webUser, nil
		}
		_, err = e.web.ValidateDiscoverableLogin(handler, ceremony.Session, response)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationRejected, err)
	}

	// A valid signature with a stalled counter suggests a cloned
	// authenticator. Authenticators that never increment report zero on both
	// sides, which is accepted.
	newCounter := response.Response.AuthenticatorData.Counter
	if newCounter <= credential.SignatureCounter && credential.SignatureCounter != 0 {
		return nil, fmt.Errorf("%w: counter %d did not advance past %d",
			ErrPossibleCloneDetected, newCounter, credential.SignatureCounter)
	}

	flags := response.Response.AuthenticatorData.Flags
	return &AssertionResult{
		CredentialID:    response.RawID,
		UserHandle:      user.Handle,
		NewCounter:      newCounter,
		BackupEligible:  flags.HasBackupEligible(),
		BackupState:     flags.HasBackupState(),
		UserVerified:    flags.UserVerified(),
		DevicePublicKey: devicePublicKeyOutput(response.ClientExtensionResults),
	}, nil
}

// devicePublicKeyOutput extracts the devicePubKey extension output, if the
// authenticator produced one. Clients surface it either as a raw base64url
// string or as an object carrying the authenticator output.
func devicePublicKeyOutput(outputs protocol.AuthenticationExtensionsClientOutputs) []byte {
	raw, ok := outputs["devicePubKey"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		if decoded, err := base64.RawURLEncoding.DecodeString(v); err == nil {
			return decoded
		}
	case map[string]interface{}:
		if s, ok := v["authenticatorOutput"].(string); ok {
			if decoded, err := base64.RawURLEncoding.DecodeString(s); err == nil {
				return decoded
			}
		}
	}
	return nil
}
