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

// Package server assembles the passkey HTTP server from its parts:
// configuration, credential storage, the ceremony service, rate
// limiting, metrics, and health probes.
package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/pkg/health"
	"github.com/jeremyhahn/go-passkey/pkg/logging"
	"github.com/jeremyhahn/go-passkey/pkg/metrics"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	passkeyhttp "github.com/jeremyhahn/go-passkey/pkg/passkey/http"
	"github.com/jeremyhahn/go-passkey/pkg/passkey/sqlite"
	"github.com/jeremyhahn/go-passkey/pkg/ratelimit"
)

// Server is the assembled passkey HTTP server.
type Server struct {
	cfg     *config.Config
	logger  *logging.Logger
	service *passkey.Service
	store   *sqlite.Store
	limiter *ratelimit.Limiter
	checker *health.Checker
	server  *http.Server
}

// New builds a server from the given configuration. The returned
// server owns its stores and must be shut down with Stop.
func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := newLogger(cfg.Logging)
	checker := health.NewChecker()

	params := passkey.ServiceParams{
		Config: &cfg.Passkey,
		Logger: logger,
	}

	var store *sqlite.Store
	if cfg.Storage.Backend == config.StorageSQLite {
		var err error
		store, err = sqlite.Open(cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open credential store: %w", err)
		}
		params.Credentials = store
		checker.RegisterCheck("credential_store", health.PingCheck("credential_store", store))
	}

	if cfg.JWT.Enabled {
		issuer, err := newTokenIssuer(cfg.JWT)
		if err != nil {
			if store != nil {
				store.Close()
			}
			return nil, err
		}
		params.TokenIssuer = issuer
	}

	service, err := passkey.NewService(&params)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, fmt.Errorf("failed to create passkey service: %w", err)
	}

	srv := &Server{
		cfg:     cfg,
		logger:  logger,
		service: service,
		store:   store,
		checker: checker,
	}

	if cfg.RateLimit.Enabled {
		srv.limiter = ratelimit.New(&cfg.RateLimit)
	}

	router := srv.setupRouter()

	srv.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return srv, nil
}

// setupRouter configures the chi router with middleware and routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.recoveryMiddleware)
	r.Use(s.correlationMiddleware)
	r.Use(s.loggingMiddleware)
	if s.cfg.Metrics.Enabled {
		r.Use(metrics.HTTPMiddleware)
	}
	if s.limiter != nil {
		r.Use(ratelimit.Middleware(s.limiter))
	}

	if s.cfg.Health.Enabled {
		base := s.cfg.Health.Path
		r.Get(base, s.healthHandler)
		r.Head(base, s.healthHandler)
		r.Get(base+"/live", s.livenessHandler)
		r.Get(base+"/ready", s.readinessHandler)
		r.Get(base+"/startup", s.startupHandler)
	}

	if s.cfg.Metrics.Enabled {
		r.Handle(s.cfg.Metrics.Path, promhttp.Handler())
	}

	handler := passkeyhttp.NewHandler(s.service)
	r.Route("/passkey", func(r chi.Router) {
		passkeyhttp.MountChi(r, handler)
	})

	return r
}

// Start begins serving requests. It blocks until the listener fails
// or Stop is called.
func (s *Server) Start() error {
	s.checker.MarkStarted()

	if s.cfg.TLS.Enabled {
		s.logger.Info("starting HTTPS server",
			"addr", s.server.Addr,
			"rp_id", s.cfg.Passkey.RPID)
		if err := s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTPS server: %w", err)
		}
		return nil
	}

	s.logger.Info("starting HTTP server",
		"addr", s.server.Addr,
		"rp_id", s.cfg.Passkey.RPID)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server and closes its stores.
func (s *Server) Stop(ctx context.Context) error {
	s.checker.MarkNotStarted()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return fmt.Errorf("failed to close credential store: %w", err)
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Handler returns the assembled router, used by tests to serve
// requests without a listener.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Service returns the underlying ceremony service.
func (s *Server) Service() *passkey.Service {
	return s.service
}

// newLogger builds the process logger from the logging configuration.
func newLogger(cfg config.LoggingConfig) *logging.Logger {
	output := os.Stdout
	if cfg.Output == "stderr" {
		output = os.Stderr
	}
	return logging.NewStructuredLogger(cfg.Level, cfg.Format, output)
}

// newTokenIssuer builds a JWT issuer from configuration, loading the
// signing key from disk when one is configured.
func newTokenIssuer(cfg config.JWTConfig) (*passkey.JWTIssuer, error) {
	issuerCfg := &passkey.JWTIssuerConfig{
		Issuer: cfg.Issuer,
		TTL:    cfg.TTL,
	}
	if cfg.Audience != "" {
		issuerCfg.Audience = []string{cfg.Audience}
	}

	if cfg.KeyFile != "" {
		key, err := loadSigningKey(cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		issuerCfg.PrivateKey = key
	}

	issuer, err := passkey.NewJWTIssuer(issuerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}
	return issuer, nil
}

// loadSigningKey reads a PEM-encoded ECDSA private key. Both SEC 1
// ("EC PRIVATE KEY") and PKCS#8 ("PRIVATE KEY") encodings are accepted.
func loadSigningKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key %s: %w", path, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("signing key %s is not PEM encoded", path)
	}

	switch block.Type {
	case "EC PRIVATE KEY":
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse EC signing key %s: %w", path, err)
		}
		return key, nil
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#8 signing key %s: %w", path, err)
		}
		key, ok := parsed.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("signing key %s is not an ECDSA key", path)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block %q in signing key %s", block.Type, path)
	}
}

// ShutdownTimeout is the default grace period for in-flight requests.
const ShutdownTimeout = 30 * time.Second
