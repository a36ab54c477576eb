package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/affective-thought-kernel/internal/jsonx"
	"github.com/affective-thought-kernel/internal/kernel"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newAuthServer(t *testing.T) (*httptest.Server, *Authenticator) {
	t.Helper()
	cfg := kernel.DefaultConfig()
	cfg.AgingInterval = 0
	cfg.Thought.TickInterval = time.Hour
	k, err := kernel.New(cfg, kernel.Deps{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, k.Start(context.Background()))

	auth, err := NewAuthenticator(testSecret, zaptest.NewLogger(t))
	require.NoError(t, err)
	srv := New(k, DefaultConfig(), zaptest.NewLogger(t)).WithAuth(auth)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		k.Stop()
	})
	return ts, auth
}

func authed(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestNewAuthenticatorRejectsWeakSecret(t *testing.T) {
	_, err := NewAuthenticator("short", nil)
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestAuthRequiredOnAPI(t *testing.T) {
	ts, auth := newAuthServer(t)

	resp := authed(t, http.MethodGet, ts.URL+"/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = authed(t, http.MethodGet, ts.URL+"/api/state", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = authed(t, http.MethodGet, ts.URL+"/api/state", "not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := auth.IssueToken("mika", time.Minute)
	require.NoError(t, err)
	resp = authed(t, http.MethodGet, ts.URL+"/api/state", token, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRejectsExpiredAndForeignTokens(t *testing.T) {
	ts, auth := newAuthServer(t)

	expired, err := auth.IssueToken("mika", -time.Minute)
	require.NoError(t, err)
	resp := authed(t, http.MethodGet, ts.URL+"/api/state", expired, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	other, err := NewAuthenticator(strings.Repeat("z", 32), nil)
	require.NoError(t, err)
	foreign, err := other.IssueToken("mika", time.Minute)
	require.NoError(t, err)
	resp = authed(t, http.MethodGet, ts.URL+"/api/state", foreign, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "mika"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	resp = authed(t, http.MethodGet, ts.URL+"/api/state", unsigned, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMessageDefaultsPersonToTokenSubject(t *testing.T) {
	ts, auth := newAuthServer(t)
	token, err := auth.IssueToken("mika", time.Minute)
	require.NoError(t, err)

	resp := authed(t, http.MethodPost, ts.URL+"/api/messages", token, `{"text":"hi","emotion":"joy"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out kernel.Outcome
	require.NoError(t, jsonx.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "mika", out.Bond.PersonID)
}
