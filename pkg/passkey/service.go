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

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/jeremyhahn/go-passkey/pkg/logging"
)

// ServiceParams holds the dependencies for a passkey Service. Config is
// required; every other field has a sensible default.
type ServiceParams struct {
	// Config is the relying-party identity and default policy. Required.
	Config *Config

	// Logger receives structured ceremony logs. Defaults to a stderr
	// logger.
	Logger *logging.Logger

	// Ceremonies holds pending ceremony state. Defaults to an in-memory
	// store with the configured ceremony TTL.
	Ceremonies CeremonyStore

	// Credentials is the durable user and credential store. Defaults to an
	// in-memory repository.
	Credentials CredentialRepository

	// Engine verifies attestation and assertion payloads. Defaults to the
	// go-webauthn backed engine.
	Engine VerificationEngine

	// TokenIssuer mints the session token returned from a completed login.
	// Optional; when nil the authenticated user carries no token.
	TokenIssuer TokenIssuer
}

// Service orchestrates registration and authentication ceremonies.
type Service struct {
	config      *Config
	logger      *logging.Logger
	ceremonies  CeremonyStore
	credentials CredentialRepository
	engine      VerificationEngine
	tokenIssuer TokenIssuer
	web         *webauthn.WebAuthn
	now         func() time.Time
}

// NewService validates params, applies defaults and returns a ready Service.
func NewService(params *ServiceParams) (*Service, error) {
	if params == nil || params.Config == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfiguration)
	}

	config := params.Config
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	web, err := webauthn.New(config.toWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	service := &Service{
		config:      config,
		logger:      params.Logger,
		ceremonies:  params.Ceremonies,
		credentials: params.Credentials,
		engine:      params.Engine,
		tokenIssuer: params.TokenIssuer,
		web:         web,
		now:         time.Now,
	}
	if service.logger == nil {
		service.logger = logging.DefaultLogger()
	}
	if service.ceremonies == nil {
		service.ceremonies = NewMemoryCeremonyStore(config.CeremonyTTL)
	}
	if service.credentials == nil {
		service.credentials = NewMemoryCredentialRepository()
	}
	if service.engine == nil {
		service.engine = newDefaultEngine(web)
	}
	return service, nil
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}
