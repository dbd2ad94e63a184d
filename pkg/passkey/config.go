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
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Config holds the relying-party identity and default ceremony policy.
type Config struct {
	// RPID is the relying party identifier, typically the effective domain.
	RPID string `yaml:"rp_id" json:"rp_id" mapstructure:"rp_id"`

	// RPDisplayName is the human readable relying party name shown by
	// authenticator UIs.
	RPDisplayName string `yaml:"rp_display_name" json:"rp_display_name" mapstructure:"rp_display_name"`

	// RPOrigins are the web origins allowed to complete ceremonies.
	RPOrigins []string `yaml:"rp_origins" json:"rp_origins" mapstructure:"rp_origins"`

	// CeremonyTTL bounds how long issued options remain completable.
	CeremonyTTL time.Duration `yaml:"ceremony_ttl" json:"ceremony_ttl" mapstructure:"ceremony_ttl"`

	// UserVerification is the default user verification requirement applied
	// when a ceremony policy does not override it.
	UserVerification protocol.UserVerificationRequirement `yaml:"user_verification" json:"user_verification" mapstructure:"user_verification"`

	// AttestationPreference is the default attestation conveyance.
	AttestationPreference protocol.ConveyancePreference `yaml:"attestation_preference" json:"attestation_preference" mapstructure:"attestation_preference"`

	// ResidentKey is the default resident key requirement for registration.
	ResidentKey protocol.ResidentKeyRequirement `yaml:"resident_key" json:"resident_key" mapstructure:"resident_key"`

	// AuthenticatorAttachment restricts registration to platform or
	// cross-platform authenticators when set.
	AuthenticatorAttachment protocol.AuthenticatorAttachment `yaml:"authenticator_attachment" json:"authenticator_attachment" mapstructure:"authenticator_attachment"`
}

// DefaultConfig returns a development configuration for localhost.
func DefaultConfig() *Config {
	cfg := &Config{
		RPID:          "localhost",
		RPDisplayName: "Passkey Service",
		RPOrigins:     []string{"http://localhost:8080"},
	}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills unset policy fields.
func (c *Config) SetDefaults() {
	if c.CeremonyTTL <= 0 {
		c.CeremonyTTL = 5 * time.Minute
	}
	if c.UserVerification == "" {
		c.UserVerification = protocol.VerificationPreferred
	}
	if c.AttestationPreference == "" {
		c.AttestationPreference = protocol.PreferNoAttestation
	}
	if c.ResidentKey == "" {
		c.ResidentKey = protocol.ResidentKeyRequirementPreferred
	}
}

// Validate checks the configuration is complete enough to run ceremonies.
func (c *Config) Validate() error {
	if c.RPID == "" {
		return fmt.Errorf("%w: rp_id is required", ErrInvalidConfiguration)
	}
	if c.RPDisplayName == "" {
		return fmt.Errorf("%w: rp_display_name is required", ErrInvalidConfiguration)
	}
	if len(c.RPOrigins) == 0 {
		return fmt.Errorf("%w: at least one rp_origin is required", ErrInvalidConfiguration)
	}
	for _, origin := range c.RPOrigins {
		if origin == "" {
			return fmt.Errorf("%w: rp_origins must not contain empty entries", ErrInvalidConfiguration)
		}
	}
	if c.CeremonyTTL <= 0 {
		return fmt.Errorf("%w: ceremony_ttl must be positive", ErrInvalidConfiguration)
	}
	return nil
}

// toWebAuthnConfig converts to the verification library's configuration.
func (c *Config) toWebAuthnConfig() *webauthn.Config {
	return &webauthn.Config{
		RPID:          c.RPID,
		RPDisplayName: c.RPDisplayName,
		RPOrigins:     c.RPOrigins,
	}
}

// registrationPolicy merges a caller supplied policy with configured
// defaults.
func (c *Config) registrationPolicy(policy RegistrationPolicy) RegistrationPolicy {
	if policy.AttestationPreference == "" {
		policy.AttestationPreference = c.AttestationPreference
	}
	if policy.AuthenticatorAttachment == "" {
		policy.AuthenticatorAttachment = c.AuthenticatorAttachment
	}
	if policy.ResidentKey == "" {
		policy.ResidentKey = c.ResidentKey
	}
	if policy.UserVerification == "" {
		policy.UserVerification = c.UserVerification
	}
	return policy
}

// loginPolicy merges a caller supplied policy with configured defaults.
func (c *Config) loginPolicy(policy LoginPolicy) LoginPolicy {
	if policy.UserVerification == "" {
		policy.UserVerification = c.UserVerification
	}
	return policy
}
