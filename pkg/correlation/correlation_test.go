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

package correlation

import (
	"context"
	"testing"
)

func TestWithIDAndFromContext(t *testing.T) {
	ctx := WithID(context.Background(), "ceremony-abc")
	if got := FromContext(ctx); got != "ceremony-abc" {
		t.Errorf("FromContext() = %s, want ceremony-abc", got)
	}
}

func TestFromContextMissing(t *testing.T) {
	if got := FromContext(context.Background()); got != "" {
		t.Errorf("FromContext() = %s, want empty", got)
	}
	if got := FromContext(nil); got != "" {
		t.Errorf("FromContext(nil) = %s, want empty", got)
	}
}

func TestWithIDNilContext(t *testing.T) {
	ctx := WithID(nil, "id-1")
	if got := FromContext(ctx); got != "id-1" {
		t.Errorf("FromContext() = %s, want id-1", got)
	}
}

func TestNewIDIsUnique(t *testing.T) {
	a := NewID()
	b := NewID()
	if a == "" || b == "" {
		t.Fatal("NewID() returned empty string")
	}
	if a == b {
		t.Error("NewID() returned duplicate IDs")
	}
}

func TestGetOrGenerate(t *testing.T) {
	ctx := WithID(context.Background(), "existing")
	if got := GetOrGenerate(ctx); got != "existing" {
		t.Errorf("GetOrGenerate() = %s, want existing", got)
	}

	if got := GetOrGenerate(context.Background()); got == "" {
		t.Error("GetOrGenerate() returned empty string for bare context")
	}
}
