package gateway

import (
	"context"

	"github.com/MustafaKhaled/quizify-ai-saas/internal/authority"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/session"
)

// AuthorityVerifier adapts the Authority client to the token verification
// shape the route guard and the relay middleware consume.
type AuthorityVerifier struct {
	client *authority.Client
}

// NewAuthorityVerifier wraps client for guard and relay use.
func NewAuthorityVerifier(client *authority.Client) AuthorityVerifier {
	return AuthorityVerifier{client: client}
}

// VerifyToken asks the Authority whether token is still valid and returns the
// projected current user.
func (v AuthorityVerifier) VerifyToken(ctx context.Context, token string) (session.User, error) {
	user, err := v.client.Verify(ctx, token)
	if err != nil {
		return session.User{}, err
	}
	return ProjectUser(user), nil
}
