package gateway

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MustafaKhaled/quizify-ai-saas/internal/audit"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/authority"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// fakeAuthority is an httptest-backed Authority that counts requests.
type fakeAuthority struct {
	srv      *httptest.Server
	requests int
}

func newFakeAuthority(t *testing.T, handler http.HandlerFunc) *fakeAuthority {
	t.Helper()
	f := &fakeAuthority{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests++
		handler(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func newTestHandler(t *testing.T, auth *fakeAuthority, opts ...Option) (*Handler, session.Store) {
	t.Helper()
	store, err := session.NewCookieStore("test-secret", session.CookieOptions{})
	require.NoError(t, err)
	client := authority.New(auth.srv.URL, 5*time.Second, testLogger(), nil)
	return New(client, store, nil, nil, testLogger(), "test", opts...), store
}

func loginBody(email, password string) *bytes.Reader {
	payload, _ := json.Marshal(map[string]string{"email": email, "password": password})
	return bytes.NewReader(payload)
}

func sessionCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, raw := range rr.Header().Values("Set-Cookie") {
		cookie, err := http.ParseSetCookie(raw)
		require.NoError(t, err)
		if cookie.Name == session.DefaultCookieName && cookie.Value != "" {
			return cookie
		}
	}
	return nil
}

func TestLoginMissingFieldsSkipsAuthority(t *testing.T) {
	auth := newFakeAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("authority must not be called")
	})
	h, _ := newTestHandler(t, auth)

	rr := httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", loginBody("a@x.com", "")))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, auth.requests)
	assert.Nil(t, sessionCookie(t, rr))
}

func TestLoginRejectsInvalidEmailAddress(t *testing.T) {
	auth := newFakeAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("authority must not be called")
	})
	h, _ := newTestHandler(t, auth)

	rr := httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", loginBody("not-an-email", "pw")))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, auth.requests)
}

func TestLoginWrongPasswordIsGeneric(t *testing.T) {
	auth := newFakeAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Incorrect email or password"})
	})
	h, _ := newTestHandler(t, auth)

	rr := httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", loginBody("a@x.com", "wrong")))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, 1, auth.requests)
	assert.Nil(t, sessionCookie(t, rr), "no session on rejected credentials")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Invalid email or password", body["error_description"])
}

func TestLoginTokenWithoutUserIsRejected(t *testing.T) {
	auth := newFakeAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok1"})
	})
	h, _ := newTestHandler(t, auth)

	rr := httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", loginBody("a@x.com", "pw")))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Nil(t, sessionCookie(t, rr))
}

func TestLoginNonAdminOnAdminGateway(t *testing.T) {
	auth := newFakeAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok1",
			"user":         map[string]any{"id": "u-1", "email": "user@x.com", "is_admin": false},
		})
	})
	h, _ := newTestHandler(t, auth, RequireAdmin())

	rr := httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", loginBody("user@x.com", "pw")))

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, 1, auth.requests, "credential check happens before the privilege gate")
	assert.Nil(t, sessionCookie(t, rr), "valid but unprivileged credentials leave no session")
}

func TestLoginSealsTokenIntoCookieOnly(t *testing.T) {
	auth := newFakeAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-secret",
			"user":         map[string]any{"id": "u-1", "email": "a@x.com", "name": "Ada"},
		})
	})
	h, store := newTestHandler(t, auth)

	rr := httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", loginBody("a@x.com", "pw")))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "tok-secret", "token never appears in the response body")
	assert.JSONEq(t, `{"success": true}`, rr.Body.String())

	cookie := sessionCookie(t, rr)
	require.NotNil(t, cookie)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	sess, err := store.Read(req)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "tok-secret", sess.Token)
	assert.Equal(t, "a@x.com", sess.User.Email)
}

func TestLoginAdminGatewayStoresAdminFlag(t *testing.T) {
	auth := newFakeAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok1",
			"user":         map[string]any{"id": "u-9", "email": "root@x.com", "is_admin": true},
		})
	})
	h, store := newTestHandler(t, auth, RequireAdmin())

	rr := httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", loginBody("root@x.com", "pw")))
	require.Equal(t, http.StatusOK, rr.Code)

	cookie := sessionCookie(t, rr)
	require.NotNil(t, cookie)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	sess, err := store.Read(req)
	require.NoError(t, err)
	assert.True(t, sess.User.IsAdmin)
}

func TestLogoutRevokesBestEffort(t *testing.T) {
	var gotLogout bool
	auth := newFakeAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/auth/logout") {
			gotLogout = true
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok1",
			"user":         map[string]any{"id": "u-1", "email": "a@x.com"},
		})
	})
	h, store := newTestHandler(t, auth)

	loginRR := httptest.NewRecorder()
	h.Login(loginRR, httptest.NewRequest(http.MethodPost, "/api/auth/login", loginBody("a@x.com", "pw")))
	cookie := sessionCookie(t, loginRR)
	require.NotNil(t, cookie)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	h.Logout(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, gotLogout, "revocation is attempted")
	assert.JSONEq(t, `{"success": true}`, rr.Body.String())

	// The cleared cookie must read back as no session.
	cleared := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, raw := range rr.Header().Values("Set-Cookie") {
		c, err := http.ParseSetCookie(raw)
		require.NoError(t, err)
		assert.Equal(t, -1, c.MaxAge)
		cleared.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	sess, err := store.Read(cleared)
	require.NoError(t, err)
	assert.False(t, sess.Authenticated())
}

func TestLogoutWithoutSessionIsIdempotent(t *testing.T) {
	auth := newFakeAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("nothing to revoke without a session")
	})
	h, _ := newTestHandler(t, auth)

	rr := httptest.NewRecorder()
	h.Logout(rr, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success": true}`, rr.Body.String())
}

func TestLoginRecordsAuditEvents(t *testing.T) {
	auth := newFakeAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "nope"})
	})
	store, err := session.NewCookieStore("test-secret", session.CookieOptions{})
	require.NoError(t, err)
	sink := audit.NewMemorySink(8)
	dispatcher := audit.NewDispatcher(sink, 8, "dashboard", testLogger())
	client := authority.New(auth.srv.URL, 5*time.Second, testLogger(), nil)
	h := New(client, store, dispatcher, nil, testLogger(), "dashboard")

	rr := httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", loginBody("a@x.com", "pw")))
	dispatcher.Close()

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.KindLoginFailed, events[0].Kind)
	assert.Equal(t, "a@x.com", events[0].Actor)
	assert.Equal(t, "dashboard", events[0].Origin)
	assert.NotContains(t, events[0].Detail, "pw", "credentials never reach the audit trail")
}
