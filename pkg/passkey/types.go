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
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// User is an account created through a registration ceremony. The handle is
// the opaque identifier handed to authenticators; it never changes and is
// never derived from the username.
type User struct {
	Handle             []byte    `json:"handle"`
	Username           string    `json:"username"`
	NormalizedUsername string    `json:"normalized_username"`
	DisplayName        string    `json:"display_name"`
	CreatedAt          time.Time `json:"created_at"`
}

// CredentialFlags captures the authenticator data flags observed at
// registration and refreshed on each assertion.
type CredentialFlags struct {
	UserPresent    bool `json:"user_present"`
	UserVerified   bool `json:"user_verified"`
	BackupEligible bool `json:"backup_eligible"`
	BackupState    bool `json:"backup_state"`
}

// AttestationMetadata preserves the raw registration evidence so a relying
// party can re-evaluate attestation policy after the fact.
type AttestationMetadata struct {
	Format         string `json:"format"`
	Object         []byte `json:"object"`
	ClientDataHash []byte `json:"client_data_hash"`
	AAGUID         []byte `json:"aaguid"`
}

// Credential is a registered passkey bound to a user handle.
type Credential struct {
	ID               []byte                            `json:"id"`
	UserHandle       []byte                            `json:"user_handle"`
	PublicKey        []byte                            `json:"public_key"`
	AttestationType  string                            `json:"attestation_type"`
	Transports       []protocol.AuthenticatorTransport `json:"transports"`
	Flags            CredentialFlags                   `json:"flags"`
	SignatureCounter uint32                            `json:"signature_counter"`
	DevicePublicKeys [][]byte                          `json:"device_public_keys"`
	Attestation      AttestationMetadata               `json:"attestation"`
	CreatedAt        time.Time                         `json:"created_at"`
	LastUsedAt       time.Time                         `json:"last_used_at"`
}

// HasDevicePublicKey reports whether key is already recorded for this
// credential.
func (c *Credential) HasDevicePublicKey(key []byte) bool {
	for _, existing := range c.DevicePublicKeys {
		if bytes.Equal(existing, key) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so repository callers cannot mutate stored state.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	clone := *c
	clone.ID = bytes.Clone(c.ID)
	clone.UserHandle = bytes.Clone(c.UserHandle)
	clone.PublicKey = bytes.Clone(c.PublicKey)
	clone.Transports = append([]protocol.AuthenticatorTransport(nil), c.Transports...)
	clone.DevicePublicKeys = make([][]byte, len(c.DevicePublicKeys))
	for i, key := range c.DevicePublicKeys {
		clone.DevicePublicKeys[i] = bytes.Clone(key)
	}
	clone.Attestation.Object = bytes.Clone(c.Attestation.Object)
	clone.Attestation.ClientDataHash = bytes.Clone(c.Attestation.ClientDataHash)
	clone.Attestation.AAGUID = bytes.Clone(c.Attestation.AAGUID)
	return &clone
}

// toWebAuthn converts the stored credential into the verification library's
// representation for assertion validation.
func (c *Credential) toWebAuthn() webauthn.Credential {
	return webauthn.Credential{
		ID:              c.ID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       c.Transports,
		Flags: webauthn.CredentialFlags{
			UserPresent:    c.Flags.UserPresent,
			UserVerified:   c.Flags.UserVerified,
			BackupEligible: c.Flags.BackupEligible,
			BackupState:    c.Flags.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:    c.Attestation.AAGUID,
			SignCount: c.SignatureCounter,
		},
	}
}

// RegistrationPolicy carries the per-ceremony knobs a caller may set when
// issuing registration options. Zero values fall back to the service
// configuration defaults.
type RegistrationPolicy struct {
	AttestationPreference   protocol.ConveyancePreference
	AuthenticatorAttachment protocol.AuthenticatorAttachment
	ResidentKey             protocol.ResidentKeyRequirement
	UserVerification        protocol.UserVerificationRequirement
	Extensions              protocol.AuthenticationExtensions
}

// LoginPolicy carries the per-ceremony knobs for authentication options.
type LoginPolicy struct {
	UserVerification protocol.UserVerificationRequirement
	Extensions       protocol.AuthenticationExtensions
}

// RegistrationResult is the verification engine's output for a successful
// attestation. The orchestrator persists it as a new user plus credential.
type RegistrationResult struct {
	UserHandle       []byte
	CredentialID     []byte
	PublicKey        []byte
	AttestationType  string
	Transports       []protocol.AuthenticatorTransport
	Flags            CredentialFlags
	SignatureCounter uint32
	Attestation      AttestationMetadata
	DevicePublicKey  []byte
}

// AssertionResult is the verification engine's output for a successful
// assertion.
type AssertionResult struct {
	CredentialID    []byte
	UserHandle      []byte
	NewCounter      uint32
	BackupEligible  bool
	BackupState     bool
	UserVerified    bool
	DevicePublicKey []byte
}

// AuthenticatedUser is returned by a completed authentication ceremony.
type AuthenticatedUser struct {
	User       *User       `json:"user"`
	Credential *Credential `json:"credential"`
	Token      string      `json:"token"`
}

// ceremonyUser adapts a user handle plus its credentials to the verification
// library's user interface. During registration the account does not exist
// yet, so the adapter is built from ceremony state alone.
type ceremonyUser struct {
	handle      []byte
	name        string
	displayName string
	credentials []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte                         { return u.handle }
func (u *ceremonyUser) WebAuthnName() string                       { return u.name }
func (u *ceremonyUser) WebAuthnDisplayName() string                { return u.displayName }
func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }
func (u *ceremonyUser) WebAuthnIcon() string                       { return "" }
