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

package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

func newTestServer(t *testing.T) (*httptest.Server, virtualwebauthn.RelyingParty) {
	t.Helper()

	cfg := &passkey.Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigins:     []string{"https://example.com"},
	}
	svc, err := passkey.NewService(&passkey.ServiceParams{Config: cfg})
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Route("/passkey", func(r chi.Router) {
		MountChi(r, NewHandler(svc))
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	rp := virtualwebauthn.RelyingParty{
		Name:   cfg.RPDisplayName,
		ID:     cfg.RPID,
		Origin: cfg.RPOrigins[0],
	}
	return server, rp
}

// publicKeyOptions unwraps the {"publicKey": {...}} envelope the options
// endpoints return.
func publicKeyOptions(t *testing.T, body io.Reader) string {
	t.Helper()

	var envelope struct {
		PublicKey json.RawMessage `json:"publicKey"`
	}
	require.NoError(t, json.NewDecoder(body).Decode(&envelope))
	require.NotEmpty(t, envelope.PublicKey)
	return string(envelope.PublicKey)
}

func postJSON(t *testing.T, url string, body interface{}, headers map[string]string) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	require.NoError(t, err)
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func postRaw(t *testing.T, url, body string, headers map[string]string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandler_RegistrationAndLoginFlow(t *testing.T) {
	server, rp := newTestServer(t)

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	// Begin registration.
	resp := postJSON(t, server.URL+"/passkey/registration/begin",
		BeginRegistrationRequest{Username: "alice@example.com"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	regToken := resp.Header.Get(HeaderCeremonyToken)
	require.NotEmpty(t, regToken)

	options := publicKeyOptions(t, resp.Body)
	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(options)
	require.NoError(t, err)
	attestation := virtualwebauthn.CreateAttestationResponse(rp, authenticator, credential, *parsedOptions)

	// Finish registration.
	resp = postRaw(t, server.URL+"/passkey/registration/finish", attestation,
		map[string]string{HeaderCeremonyToken: regToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var registered AuthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&registered))
	assert.Equal(t, "alice@example.com", registered.Username)
	assert.NotEmpty(t, registered.UserHandle)
	assert.NotEmpty(t, registered.CredentialID)

	authenticator.AddCredential(credential)

	// Begin login.
	credential.Counter = 1
	resp = postJSON(t, server.URL+"/passkey/login/begin",
		BeginLoginRequest{Username: "alice@example.com"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	loginToken := resp.Header.Get(HeaderCeremonyToken)
	require.NotEmpty(t, loginToken)

	loginOptions := publicKeyOptions(t, resp.Body)
	parsedLoginOptions, err := virtualwebauthn.ParseAssertionOptions(loginOptions)
	require.NoError(t, err)
	assertion := virtualwebauthn.CreateAssertionResponse(rp, authenticator, credential, *parsedLoginOptions)

	// Finish login.
	resp = postRaw(t, server.URL+"/passkey/login/finish", assertion,
		map[string]string{HeaderCeremonyToken: loginToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var authenticated AuthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&authenticated))
	assert.Equal(t, registered.UserHandle, authenticated.UserHandle)
	assert.Equal(t, registered.CredentialID, authenticated.CredentialID)
}

func TestHandler_BeginRegistration_RequiresUsername(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/passkey/registration/begin",
		BeginRegistrationRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	assert.Equal(t, ErrorCodeInvalidRequest, errResp.Error)
}

func TestHandler_FinishRegistration_RequiresTokenHeader(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postRaw(t, server.URL+"/passkey/registration/finish", "{}", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_FinishRegistration_UnknownToken(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postRaw(t, server.URL+"/passkey/registration/finish", "{}",
		map[string]string{HeaderCeremonyToken: "bogus"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	assert.Equal(t, ErrorCodeCeremonyExpired, errResp.Error)
}

func TestHandler_BeginLogin_EmptyBodyStartsDiscoverableFlow(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postRaw(t, server.URL+"/passkey/login/begin", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(HeaderCeremonyToken))
}

func TestHandler_FailedLoginsPresentIdentically(t *testing.T) {
	server, rp := newTestServer(t)

	// An assertion from a credential that was never registered.
	resp := postJSON(t, server.URL+"/passkey/login/begin",
		BeginLoginRequest{Username: "ghost"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := resp.Header.Get(HeaderCeremonyToken)

	options := publicKeyOptions(t, resp.Body)
	parsedOptions, err := virtualwebauthn.ParseAssertionOptions(options)
	require.NoError(t, err)

	authenticator := virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{
		UserHandle: []byte("ghost-handle"),
	})
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	authenticator.AddCredential(credential)
	assertion := virtualwebauthn.CreateAssertionResponse(rp, authenticator, credential, *parsedOptions)

	resp = postRaw(t, server.URL+"/passkey/login/finish", assertion,
		map[string]string{HeaderCeremonyToken: token})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	unknownCredentialBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	// A structurally invalid assertion rejected by the verifier.
	resp = postJSON(t, server.URL+"/passkey/login/begin",
		BeginLoginRequest{Username: "ghost"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token = resp.Header.Get(HeaderCeremonyToken)

	resp = postRaw(t, server.URL+"/passkey/login/finish", `{"id":"x"}`,
		map[string]string{HeaderCeremonyToken: token})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	rejectedBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	// Neither status nor body reveals which failure occurred.
	assert.Equal(t, string(unknownCredentialBody), string(rejectedBody))
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t)

	// Routes() documents the supported surface; everything is POST.
	handler := NewHandler(nil)
	for _, route := range handler.Routes() {
		assert.Equal(t, http.MethodPost, route.Method)
	}

	resp, err := http.Get(server.URL + "/passkey/registration/begin")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
