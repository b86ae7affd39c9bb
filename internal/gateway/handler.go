// Package gateway implements the /api/auth endpoints and the resource proxies
// each frontend exposes to its own browser code. The gateway is the only layer
// that sees both the raw Authority token and the sealed session cookie; the
// token goes into the cookie and never into a response body.
package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"

	"github.com/MustafaKhaled/quizify-ai-saas/internal/audit"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/authority"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/platform/metrics"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/session"
	dErrors "github.com/MustafaKhaled/quizify-ai-saas/pkg/domain-errors"
	"github.com/MustafaKhaled/quizify-ai-saas/pkg/platform/httputil"
)

const invalidCredentials = "Invalid email or password"

// Handler serves the auth endpoints and proxies for one frontend.
type Handler struct {
	authority    *authority.Client
	sessions     session.Store
	audit        *audit.Dispatcher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	origin       string
	requireAdmin bool
}

// Option configures a Handler.
type Option func(*Handler)

// RequireAdmin gates login on the Authority's is_admin flag. A valid
// credential without the flag is rejected before any session exists.
func RequireAdmin() Option {
	return func(h *Handler) { h.requireAdmin = true }
}

// New creates a gateway handler for the named origin (marketing, dashboard,
// admin). audit and m may be nil.
func New(client *authority.Client, sessions session.Store, auditor *audit.Dispatcher,
	m *metrics.Metrics, logger *slog.Logger, origin string, opts ...Option) *Handler {
	h := &Handler{
		authority: client,
		sessions:  sessions,
		audit:     auditor,
		metrics:   m,
		logger:    logger,
		origin:    origin,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterAuth mounts the login/logout pair shared by every frontend.
func (h *Handler) RegisterAuth(r chi.Router) {
	r.Post("/api/auth/login", h.Login)
	r.Post("/api/auth/logout", h.Logout)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges browser credentials for a sealed session cookie. The
// Authority token ends up only inside the cookie; the body confirms success
// and nothing else.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.loginOutcome("bad_request")
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	if req.Email == "" || req.Password == "" {
		h.loginOutcome("bad_request")
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "email and password are required"))
		return
	}
	if !govalidator.IsEmail(req.Email) {
		h.loginOutcome("bad_request")
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "email address is not valid"))
		return
	}

	result, err := h.authority.Login(ctx, req.Email, req.Password)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeAuthorityUnavailable) {
			h.loginOutcome("unavailable")
			h.logger.ErrorContext(ctx, "login failed, authority unavailable", "error", err)
			httputil.WriteError(w, err)
			return
		}
		h.rejectLogin(w, r, req.Email, "authority rejected credentials")
		return
	}
	if result.User == nil {
		// Token without a user: nothing to build a session identity from.
		h.rejectLogin(w, r, req.Email, "authority response missing user")
		return
	}
	if h.requireAdmin && !result.User.IsAdmin {
		h.loginOutcome("forbidden")
		h.record(audit.KindLoginFailed, req.Email, "admin access required")
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "Admin access required"))
		return
	}

	sess := session.Session{
		User:     ProjectUser(result.User),
		Token:    result.AccessToken,
		IssuedAt: time.Now().UTC(),
	}
	if err := h.sessions.Create(w, sess); err != nil {
		h.loginOutcome("error")
		h.logger.ErrorContext(ctx, "session create failed", "error", err)
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "create session", err))
		return
	}

	h.loginOutcome("success")
	h.record(audit.KindLoginSucceeded, req.Email, "")
	h.logger.InfoContext(ctx, "login succeeded", "email", req.Email)
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// rejectLogin answers every credential failure identically so responses do
// not distinguish unknown users from wrong passwords.
func (h *Handler) rejectLogin(w http.ResponseWriter, r *http.Request, email, reason string) {
	h.loginOutcome("invalid_credentials")
	h.record(audit.KindLoginFailed, email, reason)
	h.logger.InfoContext(r.Context(), "login rejected", "email", email, "reason", reason)
	httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, invalidCredentials))
}

// Logout revokes the Authority token best-effort and always clears the local
// session. Repeating it on an already-logged-out browser succeeds.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, err := h.sessions.Read(r)
	if err != nil {
		h.logger.WarnContext(ctx, "session read failed during logout", "error", err)
	}
	if sess.Authenticated() {
		if err := h.authority.Logout(ctx, sess.Token); err != nil {
			h.logger.WarnContext(ctx, "authority logout failed, clearing local session anyway", "error", err)
		}
		h.record(audit.KindLogout, sess.User.Email, "")
	}

	h.sessions.Destroy(w)
	if h.metrics != nil {
		h.metrics.Logouts.Inc()
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// requireSession loads the caller's session and writes a 401 when it is
// absent. Proxy endpoints live under the guard-exempt /api/ namespace and do
// their own gating here.
func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := h.sessions.Read(r)
	if err != nil {
		h.logger.WarnContext(r.Context(), "session read failed", "error", err)
	}
	if !sess.Authenticated() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return nil, false
	}
	return sess, true
}

func (h *Handler) loginOutcome(outcome string) {
	if h.metrics != nil {
		h.metrics.Logins.WithLabelValues(outcome).Inc()
	}
}

func (h *Handler) record(kind audit.Kind, actor, detail string) {
	if h.audit != nil {
		h.audit.Record(audit.Event{Kind: kind, Actor: actor, Origin: h.origin, Detail: detail})
	}
}

// ProjectUser narrows an Authority user to the fields a session carries.
func ProjectUser(u *authority.User) session.User {
	if u == nil {
		return session.User{}
	}
	out := session.User{
		ID:          string(u.ID),
		Email:       u.Email,
		Name:        u.Name,
		IsAdmin:     u.IsAdmin,
		IsPro:       u.IsPro,
		TrialEndsAt: u.TrialEndsAt,
	}
	if u.Subscription != nil {
		out.Subscription = &session.Subscription{Status: u.Subscription.Status}
	}
	return out
}
