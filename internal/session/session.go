// Package session provides the per-origin authentication state: the Session
// model and the sealed-cookie store that persists it. Each frontend owns its
// session exclusively; only the bearer token ever crosses origins, and only
// through the relay.
package session

import (
	"net/http"
	"time"
)

// Subscription is the slice of the Authority's subscription record the
// frontends need for entitlement decisions.
type Subscription struct {
	Status string `json:"status"`
}

// User carries the identity attributes relevant to access control. It is a
// projection of the Authority's user record, not a local copy of it.
type User struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	Name         string        `json:"name"`
	IsAdmin      bool          `json:"is_admin"`
	IsPro        bool          `json:"is_pro"`
	TrialEndsAt  string        `json:"trial_ends_at,omitempty"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// Session is the unit of authentication state on one origin.
type Session struct {
	User     User      `json:"user"`
	Token    string    `json:"token"`
	IssuedAt time.Time `json:"issued_at"`
}

// Authenticated reports whether the session may be trusted. A session with a
// user object but no token is never partially trusted.
func (s *Session) Authenticated() bool {
	return s != nil && s.Token != ""
}

// Store defines durable, origin-scoped storage of a Session. Read re-hydrates
// from the request on every call; implementations never cache across requests.
// All mutations write response headers, so they must run before the body.
type Store interface {
	Create(w http.ResponseWriter, s Session) error
	Read(r *http.Request) (*Session, error)
	Destroy(w http.ResponseWriter)
}
