package relay

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/MustafaKhaled/quizify-ai-saas/internal/audit"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/platform/metrics"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/session"
)

// Verifier resolves a relayed token to the user it belongs to before a local
// session is materialized from it.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (session.User, error)
}

// Middleware is the server-context receiver for a Go-served frontend: when a
// navigation arrives carrying the relay parameter, it consumes the token,
// materializes the local session cookie, and redirects to the same URL with
// the parameter removed so the token never survives in the address bar.
type Middleware struct {
	sessions session.Store
	consume  ConsumeRecorder
	verifier Verifier
	audit    *audit.Dispatcher
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewMiddleware creates the relay capture middleware. verifier may be nil
// when the receiving origin trusts relayed tokens until first use; consume
// may be nil on single-instance deployments that accept replay within one
// process lifetime. auditor and metrics may be nil.
func NewMiddleware(sessions session.Store, consume ConsumeRecorder, verifier Verifier,
	auditor *audit.Dispatcher, logger *slog.Logger, m *metrics.Metrics) *Middleware {
	return &Middleware{sessions: sessions, consume: consume, verifier: verifier, audit: auditor, logger: logger, metrics: m}
}

func (m *Middleware) capture(outcome string) {
	if m.metrics != nil {
		m.metrics.RelayCaptures.WithLabelValues(outcome).Inc()
	}
}

// Handler wraps next with relay capture.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Query().Get(Param) == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		clean, token, _ := Strip(r.URL.String())

		if m.consume != nil {
			first, err := m.consume.Consume(ctx, token)
			if err != nil {
				// Fail closed: an unverifiable token is not captured,
				// the guard will send the user to login.
				m.logger.ErrorContext(ctx, "relay consume check failed", "error", err)
				m.capture("error")
				http.Redirect(w, r, clean, http.StatusFound)
				return
			}
			if !first {
				m.logger.WarnContext(ctx, "relayed token already consumed")
				m.capture("replayed")
				http.Redirect(w, r, clean, http.StatusFound)
				return
			}
		}

		user := session.User{}
		if m.verifier != nil {
			u, err := m.verifier.VerifyToken(ctx, token)
			if err != nil {
				m.logger.WarnContext(ctx, "relayed token rejected by authority", "error", err)
				m.capture("rejected")
				http.Redirect(w, r, clean, http.StatusFound)
				return
			}
			user = u
		}

		// The session cookie must be durably set before the redirect that
		// rewrites the visible URL, else a reload could re-trigger capture
		// from a stale URL.
		if err := m.sessions.Create(w, session.Session{User: user, Token: token}); err != nil {
			m.logger.WarnContext(ctx, "relay session write failed, leaving user unauthenticated",
				"error", err,
			)
			m.capture("error")
			http.Redirect(w, r, clean, http.StatusFound)
			return
		}

		m.logger.InfoContext(ctx, "relay token captured")
		m.capture("captured")
		if m.audit != nil {
			m.audit.Record(audit.Event{Kind: audit.KindRelayCaptured, Actor: user.Email, Detail: r.URL.Path})
		}
		http.Redirect(w, r, clean, http.StatusFound)
	})
}
