// Package authority is the HTTP client for the external identity service
// that owns users and issues bearer tokens. The gateways never interpret a
// token themselves; this client is the only place the Authority contract is
// encoded, and every response shape is validated at this boundary.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MustafaKhaled/quizify-ai-saas/internal/platform/metrics"
	dErrors "github.com/MustafaKhaled/quizify-ai-saas/pkg/domain-errors"
)

// UserID is a user identifier as the Authority serializes it. Current
// backends emit UUID strings; older payloads carried numeric ids, so both
// decode.
type UserID string

func (id *UserID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id is neither string nor number: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

// User is the Authority's user record as it appears on the wire.
type User struct {
	ID           UserID        `json:"id"`
	Email        string        `json:"email"`
	Name         string        `json:"name"`
	IsAdmin      bool          `json:"is_admin"`
	IsPro        bool          `json:"is_pro"`
	TrialEndsAt  string        `json:"trial_ends_at,omitempty"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// Subscription mirrors the Authority's subscription payload. Status values
// observed on the wire: trial, active_monthly, active_yearly, expired.
type Subscription struct {
	Status string `json:"status"`
}

// LoginResult is the validated outcome of a successful Authority login.
type LoginResult struct {
	AccessToken string
	User        *User
}

// RegisterParams creates a user through the admin-bearer register endpoint.
type RegisterParams struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
}

// Client talks to the Authority over HTTPS. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// New creates an Authority client. metrics may be nil.
func New(baseURL string, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("authority"),
	}
}

// loginResponse tolerates both login shapes the Authority has been observed
// returning: a nested user object and user fields flattened into the top
// level. The nested shape wins when both are present.
type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Nested      *User  `json:"user"`
	User
}

func (lr *loginResponse) user() *User {
	if lr.Nested != nil {
		return lr.Nested
	}
	if lr.User.ID != "" || lr.User.Email != "" {
		flat := lr.User
		return &flat
	}
	return nil
}

// Login exchanges credentials for a bearer token using the Authority's
// form-encoded login operation. A 2xx response without an access token is a
// contract violation, never a success.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "build login request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req, "login")
	if err != nil {
		return nil, err
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeAuthorityContract, "authority returned malformed login response", err)
	}
	if resp.AccessToken == "" {
		return nil, dErrors.New(dErrors.CodeAuthorityContract, "authority login response missing access token")
	}
	return &LoginResult{AccessToken: resp.AccessToken, User: resp.user()}, nil
}

// Logout asks the Authority to revoke token. Callers treat failure as
// best-effort; local logout never waits on a remote outage.
func (c *Client) Logout(ctx context.Context, token string) error {
	req, err := c.bearerRequest(ctx, http.MethodPost, "/auth/logout", token, nil)
	if err != nil {
		return err
	}
	_, err = c.do(req, "logout")
	return err
}

// Verify asks the Authority whether token is still valid and returns the
// current user. Route guards use this for revalidation.
func (c *Client) Verify(ctx context.Context, token string) (*User, error) {
	return c.fetchUser(ctx, "/auth/verify", token, "verify")
}

// Me returns the user the token belongs to via the Authority's profile
// endpoint. Behaviorally equivalent to Verify for access decisions.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	return c.fetchUser(ctx, "/auth/me", token, "me")
}

func (c *Client) fetchUser(ctx context.Context, path, token, op string) (*User, error) {
	req, err := c.bearerRequest(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req, op)
	if err != nil {
		return nil, err
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeAuthorityContract, "authority returned malformed user", err)
	}
	return &user, nil
}

// Register creates a user through the Authority, authorized by an admin
// bearer token. Returns the created user payload unchanged.
func (c *Client) Register(ctx context.Context, adminToken string, params RegisterParams) (json.RawMessage, error) {
	return c.PostJSON(ctx, adminToken, "/auth/register", params)
}

// Get proxies a bearer-authenticated GET and returns the payload unchanged.
func (c *Client) Get(ctx context.Context, token, path string) (json.RawMessage, error) {
	req, err := c.bearerRequest(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, "proxy_get")
}

// PostJSON proxies a bearer-authenticated POST with a JSON body.
func (c *Client) PostJSON(ctx context.Context, token, path string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "encode request body", err)
	}
	req, err := c.bearerRequest(ctx, http.MethodPost, path, token, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, "proxy_post")
}

// PostRaw proxies a bearer-authenticated POST streaming body through
// unchanged under the caller's Content-Type. Multipart uploads go through
// here so file contents are never buffered into an intermediate decode.
func (c *Client) PostRaw(ctx context.Context, token, path, contentType string, body io.Reader) (json.RawMessage, error) {
	req, err := c.bearerRequest(ctx, http.MethodPost, path, token, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.do(req, "proxy_post")
}

// Delete proxies a bearer-authenticated DELETE.
func (c *Client) Delete(ctx context.Context, token, path string) error {
	req, err := c.bearerRequest(ctx, http.MethodDelete, path, token, nil)
	if err != nil {
		return err
	}
	_, err = c.do(req, "proxy_delete")
	return err
}

func (c *Client) bearerRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "build authority request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

// do executes the request, records telemetry, and translates failures into
// the domain taxonomy. Authority error bodies are decoded for their detail
// message only; the raw error object never crosses this boundary.
func (c *Client) do(req *http.Request, op string) (json.RawMessage, error) {
	ctx, span := c.tracer.Start(req.Context(), "authority."+op)
	defer span.End()

	start := time.Now()
	resp, err := c.http.Do(req.WithContext(ctx))
	if c.metrics != nil {
		c.metrics.AuthorityDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		span.SetStatus(codes.Error, "authority unreachable")
		span.RecordError(err)
		c.logger.WarnContext(ctx, "authority request failed",
			"operation", op,
			"error", err,
		)
		return nil, dErrors.Wrap(dErrors.CodeAuthorityUnavailable, "authority unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		span.SetStatus(codes.Error, "authority response read failed")
		return nil, dErrors.Wrap(dErrors.CodeAuthorityUnavailable, "authority response unreadable", err)
	}

	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, resp.Status)
		return nil, c.translateStatus(resp.StatusCode, body)
	}
	return body, nil
}

// errorDetail is the Authority's error envelope.
type errorDetail struct {
	Detail string `json:"detail"`
}

func (c *Client) translateStatus(status int, body []byte) error {
	detail := ""
	var envelope errorDetail
	if err := json.Unmarshal(body, &envelope); err == nil {
		detail = strings.TrimSpace(envelope.Detail)
	}

	switch {
	case status == http.StatusUnauthorized:
		return dErrors.New(dErrors.CodeAuthorityRejected, messageOr(detail, "invalid or expired credential"))
	case status == http.StatusForbidden:
		return dErrors.New(dErrors.CodeForbidden, messageOr(detail, "insufficient privileges"))
	case status == http.StatusNotFound:
		return dErrors.New(dErrors.CodeNotFound, messageOr(detail, "resource not found"))
	case status >= 500:
		// Backend detail on 5xx may describe internals; substitute.
		return dErrors.New(dErrors.CodeAuthorityUnavailable, "authority error")
	default:
		return dErrors.New(dErrors.CodeBadRequest, messageOr(detail, "invalid request"))
	}
}

func messageOr(detail, fallback string) string {
	if detail == "" || len(detail) > 200 {
		return fallback
	}
	return detail
}
