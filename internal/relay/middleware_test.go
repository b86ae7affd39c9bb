package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MustafaKhaled/quizify-ai-saas/internal/audit"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/session"
	dErrors "github.com/MustafaKhaled/quizify-ai-saas/pkg/domain-errors"
)

// recordingStore is an in-memory session.Store capturing mutations.
type recordingStore struct {
	created []session.Session
	current *session.Session
}

func (s *recordingStore) Create(_ http.ResponseWriter, sess session.Session) error {
	s.created = append(s.created, sess)
	s.current = &sess
	return nil
}

func (s *recordingStore) Read(*http.Request) (*session.Session, error) { return s.current, nil }

func (s *recordingStore) Destroy(http.ResponseWriter) { s.current = nil }

type staticVerifier struct {
	user session.User
	err  error
}

func (v staticVerifier) VerifyToken(context.Context, string) (session.User, error) {
	return v.user, v.err
}

func nextHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareCapturesToken(t *testing.T) {
	store := &recordingStore{}
	mw := NewMiddleware(store, NewMemoryConsumeRecorder(), nil, nil, testLogger(), nil)

	var nextCalled bool
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "https://dash.example/?token=tok1", nil)
	mw.Handler(nextHandler(&nextCalled)).ServeHTTP(rr, req)

	assert.False(t, nextCalled)
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.NotContains(t, rr.Header().Get("Location"), "tok1",
		"redirect target must not carry the token")
	require.Len(t, store.created, 1)
	assert.Equal(t, "tok1", store.created[0].Token)
}

func TestMiddlewareVerifiesBeforeMaterializing(t *testing.T) {
	store := &recordingStore{}
	verifier := staticVerifier{user: session.User{ID: "u-4", Email: "u@x.com"}}
	mw := NewMiddleware(store, nil, verifier, nil, testLogger(), nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "https://dash.example/?token=tok1", nil)
	var nextCalled bool
	mw.Handler(nextHandler(&nextCalled)).ServeHTTP(rr, req)

	require.Len(t, store.created, 1)
	assert.Equal(t, "u@x.com", store.created[0].User.Email)
	assert.Equal(t, "tok1", store.created[0].Token)
}

func TestMiddlewareRejectedTokenCreatesNoSession(t *testing.T) {
	store := &recordingStore{}
	verifier := staticVerifier{err: dErrors.New(dErrors.CodeAuthorityRejected, "expired")}
	mw := NewMiddleware(store, nil, verifier, nil, testLogger(), nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "https://dash.example/?token=stale", nil)
	var nextCalled bool
	mw.Handler(nextHandler(&nextCalled)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Empty(t, store.created)
	assert.NotContains(t, rr.Header().Get("Location"), "stale")
}

func TestMiddlewareReplayedTokenCreatesNoSession(t *testing.T) {
	store := &recordingStore{}
	recorder := NewMemoryConsumeRecorder()
	_, err := recorder.Consume(context.Background(), "tok1")
	require.NoError(t, err)

	mw := NewMiddleware(store, recorder, nil, nil, testLogger(), nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "https://dash.example/?token=tok1", nil)
	var nextCalled bool
	mw.Handler(nextHandler(&nextCalled)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Empty(t, store.created)
}

func TestMiddlewareCaptureRecordsAuditEvent(t *testing.T) {
	sink := audit.NewMemorySink(8)
	auditor := audit.NewDispatcher(sink, 8, "dashboard", testLogger())
	store := &recordingStore{}
	verifier := staticVerifier{user: session.User{ID: "u-4", Email: "u@x.com"}}
	mw := NewMiddleware(store, NewMemoryConsumeRecorder(), verifier, auditor, testLogger(), nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "https://dash.example/welcome?token=tok1", nil)
	var nextCalled bool
	mw.Handler(nextHandler(&nextCalled)).ServeHTTP(rr, req)
	auditor.Close()

	require.Equal(t, http.StatusFound, rr.Code)
	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.KindRelayCaptured, events[0].Kind)
	assert.Equal(t, "u@x.com", events[0].Actor)
	assert.Equal(t, "dashboard", events[0].Origin)
	assert.Equal(t, "/welcome", events[0].Detail)
}

func TestMiddlewarePassesThroughWithoutToken(t *testing.T) {
	store := &recordingStore{}
	mw := NewMiddleware(store, NewMemoryConsumeRecorder(), nil, nil, testLogger(), nil)

	var nextCalled bool
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "https://dash.example/welcome", nil)
	mw.Handler(nextHandler(&nextCalled)).ServeHTTP(rr, req)

	assert.True(t, nextCalled)
	assert.Empty(t, store.created)
}

func TestMiddlewareIgnoresNonGET(t *testing.T) {
	store := &recordingStore{}
	mw := NewMiddleware(store, NewMemoryConsumeRecorder(), nil, nil, testLogger(), nil)

	var nextCalled bool
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "https://dash.example/api/auth/login?token=x", nil)
	mw.Handler(nextHandler(&nextCalled)).ServeHTTP(rr, req)

	assert.True(t, nextCalled)
	assert.Empty(t, store.created)
}
