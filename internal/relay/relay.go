// Package relay moves an authenticated bearer token from the origin where
// login happened to a different origin, given that cookies are not shared
// across origins. The sender appends the token to a redirect URL as a
// transient query parameter; the receiver captures it exactly once and strips
// it from the visible URL so it cannot be re-derived from browser history.
package relay

import (
	"context"
	"log/slog"
	"net/url"
)

// Param is the query parameter carrying the token between origins.
const Param = "token"

// URL builds the redirect URL to target with the token appended, preserving
// the target's existing path and query.
func URL(target, token string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(Param, token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Strip removes the relay parameter from rawURL and returns the clean URL
// plus the token. ok is false when no relay parameter is present.
func Strip(rawURL string) (clean, token string, ok bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, "", false
	}
	q := u.Query()
	token = q.Get(Param)
	if token == "" {
		return rawURL, "", false
	}
	q.Del(Param)
	u.RawQuery = q.Encode()
	return u.String(), token, true
}

// TokenStorage abstracts the receiving origin's local client storage.
type TokenStorage interface {
	Save(ctx context.Context, token string) error
	Load(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// Receiver captures relayed tokens on the receiving origin. It runs once per
// page load in the client context.
type Receiver struct {
	storage TokenStorage
	logger  *slog.Logger
}

// NewReceiver creates a relay receiver backed by storage.
func NewReceiver(storage TokenStorage, logger *slog.Logger) *Receiver {
	return &Receiver{storage: storage, logger: logger}
}

// Capture inspects rawURL for the relay parameter. When present it persists
// the token into local storage, then returns the URL with the parameter
// removed for the visible-URL rewrite. The storage write strictly precedes
// the rewrite so a reload cannot re-trigger capture from a stale URL.
//
// A storage failure leaves the user unauthenticated on this origin, where the
// route guard will redirect to login; it is not escalated as a hard error.
func (r *Receiver) Capture(ctx context.Context, rawURL string) (clean string, captured bool) {
	clean, token, ok := Strip(rawURL)
	if !ok {
		return rawURL, false
	}
	if err := r.storage.Save(ctx, token); err != nil {
		r.logger.WarnContext(ctx, "relay token storage failed, leaving user unauthenticated",
			"error", err,
		)
		return clean, false
	}
	r.logger.InfoContext(ctx, "relay token captured")
	return clean, true
}
