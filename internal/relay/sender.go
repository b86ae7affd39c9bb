package relay

import (
	"log/slog"
	"net/http"

	"github.com/MustafaKhaled/quizify-ai-saas/internal/session"
)

// Sender is the sending side of the relay: an entry route on this origin that
// hands the visitor over to another origin. Authenticated visitors are
// redirected with their token appended; everyone else goes to this origin's
// login page.
type Sender struct {
	sessions  session.Store
	target    string
	loginPath string
	logger    *slog.Logger
}

// NewSender creates a relay sender redirecting to the target origin.
func NewSender(sessions session.Store, target, loginPath string, logger *slog.Logger) *Sender {
	return &Sender{sessions: sessions, target: target, loginPath: loginPath, logger: logger}
}

func (s *Sender) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := s.sessions.Read(r)
	if err != nil {
		s.logger.ErrorContext(ctx, "session read failed", "error", err)
	}
	if !sess.Authenticated() {
		http.Redirect(w, r, s.loginPath, http.StatusFound)
		return
	}

	dest, err := URL(s.target, sess.Token)
	if err != nil {
		s.logger.ErrorContext(ctx, "relay target URL invalid", "error", err)
		http.Redirect(w, r, s.loginPath, http.StatusFound)
		return
	}
	s.logger.InfoContext(ctx, "relaying session to peer origin", "target", s.target)
	http.Redirect(w, r, dest, http.StatusFound)
}
