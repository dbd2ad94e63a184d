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

// Package passkey implements a WebAuthn relying-party ceremony engine.
//
// It orchestrates the two-step registration and authentication ceremonies
// (options issuance followed by response verification), owns the durable
// credential lifecycle, and enforces the anti-replay and anti-clone
// invariants that make repeated authentications safe: single-use pending
// ceremonies, a monotone signature counter persisted with compare-and-swap
// semantics, and append-only device public key history.
//
// The cryptographic verification of attestation and assertion payloads is
// delegated to github.com/go-webauthn/webauthn behind the VerificationEngine
// interface. Applications bring their own persistence by implementing
// CredentialRepository and CeremonyStore; in-memory implementations are
// provided for development and testing, and a SQLite-backed repository lives
// in the sqlite subpackage.
//
// The package is transport-agnostic. A chi-mountable HTTP surface is
// provided in the http subpackage.
package passkey
