package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MustafaKhaled/quizify-ai-saas/internal/authority"
	dErrors "github.com/MustafaKhaled/quizify-ai-saas/pkg/domain-errors"
)

func TestAuthorityVerifierProjectsUser(t *testing.T) {
	auth := newFakeAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/verify", r.URL.Path)
		require.Equal(t, "Bearer tok1", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "u-1", "email": "a@x.com", "is_admin": true,
			"subscription": map[string]string{"status": "active_yearly"},
		})
	})
	client := authority.New(auth.srv.URL, 5*time.Second, testLogger(), nil)
	verifier := NewAuthorityVerifier(client)

	user, err := verifier.VerifyToken(context.Background(), "tok1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", user.Email)
	assert.True(t, user.IsAdmin)
	require.NotNil(t, user.Subscription)
	assert.Equal(t, "active_yearly", user.Subscription.Status)
}

func TestAuthorityVerifierPropagatesRejection(t *testing.T) {
	auth := newFakeAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Token expired"})
	})
	client := authority.New(auth.srv.URL, 5*time.Second, testLogger(), nil)
	verifier := NewAuthorityVerifier(client)

	_, err := verifier.VerifyToken(context.Background(), "stale")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeAuthorityRejected))
}
