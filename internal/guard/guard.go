// Package guard makes the per-navigation access decision for a frontend:
// allow, or redirect to the origin's login entry point. Each frontend owns a
// separate cookie jar, so the guard never assumes a globally consistent
// session; it re-derives truth from local state and, where configured, from a
// live Authority check.
package guard

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MustafaKhaled/quizify-ai-saas/internal/audit"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/platform/metrics"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/session"
)

// RevalidatePolicy controls whether an authenticated navigation re-checks the
// token against the Authority.
type RevalidatePolicy int

const (
	// RevalidateNever trusts the locally stored token between logins.
	// Lower latency, weaker consistency; used where stakes are lower.
	RevalidateNever RevalidatePolicy = iota
	// RevalidateAlways performs a live Authority check on every protected
	// navigation. The admin console pays the latency for the consistency.
	RevalidateAlways
)

// Verifier revalidates a bearer token against the Authority.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (session.User, error)
}

// Policy is the per-frontend guard configuration.
type Policy struct {
	// LoginPath is this origin's login entry point.
	LoginPath string
	// HomePath receives authenticated users who navigate to LoginPath.
	HomePath string
	// ExemptPrefixes bypass the guard entirely: the public API namespace,
	// static assets, anything that sets up the session itself.
	ExemptPrefixes []string
	// Revalidate selects the consistency/latency trade-off.
	Revalidate RevalidatePolicy
}

// Guard evaluates the access decision ahead of every protected navigation.
type Guard struct {
	sessions session.Store
	verifier Verifier
	policy   Policy
	audit    *audit.Dispatcher
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New creates a route guard. verifier is required only when policy.Revalidate
// is RevalidateAlways; auditor and metrics may be nil.
func New(sessions session.Store, verifier Verifier, policy Policy, auditor *audit.Dispatcher,
	logger *slog.Logger, m *metrics.Metrics) *Guard {
	return &Guard{sessions: sessions, verifier: verifier, policy: policy, audit: auditor, logger: logger, metrics: m}
}

type contextKeySession struct{}

// SessionFromContext returns the session attached by an allowed navigation,
// or nil.
func SessionFromContext(ctx context.Context) *session.Session {
	s, ok := ctx.Value(contextKeySession{}).(*session.Session)
	if !ok {
		return nil
	}
	return s
}

func (g *Guard) decide(outcome string) {
	if g.metrics != nil {
		g.metrics.GuardDecisions.WithLabelValues(outcome).Inc()
	}
}

func (g *Guard) exempt(path string) bool {
	for _, prefix := range g.policy.ExemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Middleware gates every navigation not covered by an exempt prefix. Denial
// destroys the local session before the redirect so a stale cookie cannot be
// retried; the navigation either fully allows or fully redirects.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if g.exempt(path) {
			g.decide("exempt")
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		sess, err := g.sessions.Read(r)
		if err != nil {
			g.logger.ErrorContext(ctx, "session read failed", "error", err)
			sess = nil
		}
		authenticated := sess.Authenticated()
		actor := ""
		if sess != nil {
			actor = sess.User.Email
		}

		destroyed := false
		if authenticated && g.policy.Revalidate == RevalidateAlways && g.verifier != nil {
			user, err := g.verifier.VerifyToken(ctx, sess.Token)
			if err != nil {
				// Fail closed on rejection, timeout, or outage alike:
				// deny and clear, never trust an unverifiable token.
				g.logger.WarnContext(ctx, "token revalidation failed, clearing session",
					"error", err,
					"path", path,
				)
				g.sessions.Destroy(w)
				destroyed = true
				authenticated = false
				sess = nil
			} else {
				sess.User = user
			}
		}

		if path == g.policy.LoginPath {
			if authenticated {
				g.decide("login_redirect")
				http.Redirect(w, r, g.policy.HomePath, http.StatusFound)
				return
			}
			g.decide("allowed")
			next.ServeHTTP(w, r)
			return
		}

		if !authenticated {
			g.decide("denied")
			if g.audit != nil {
				g.audit.Record(audit.Event{Kind: audit.KindGuardDenied, Actor: actor, Detail: path})
			}
			if !destroyed {
				g.sessions.Destroy(w)
			}
			http.Redirect(w, r, g.policy.LoginPath, http.StatusFound)
			return
		}

		g.decide("allowed")
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, contextKeySession{}, sess)))
	})
}
