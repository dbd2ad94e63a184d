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
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/secure/precis"
)

// NormalizeUsername canonicalizes a username for lookup and ceremony subject
// keys. Accounts store both the original form and the normalized form; all
// matching uses the normalized form, so "Alice" and "alice" resolve the same
// credentials.
//
// Normalization applies the PRECIS UsernameCaseMapped profile. Inputs the
// profile rejects (for example strings with disallowed code points) fall
// back to whitespace trimming plus Unicode case folding so lookups remain
// deterministic rather than failing the ceremony.
func NormalizeUsername(username string) string {
	trimmed := strings.TrimSpace(username)
	normalized, err := precis.UsernameCaseMapped.String(trimmed)
	if err != nil {
		return cases.Fold().String(trimmed)
	}
	return normalized
}
