package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultCookieName is used when CookieOptions does not name the cookie.
const DefaultCookieName = "quizify-session"

// CookieOptions defines how the sealed session cookie is issued.
type CookieOptions struct {
	Name   string
	Secure bool
	// MaxAge bounds the sealed session's lifetime. Zero means the cookie
	// is scoped to the browser session and the seal itself never expires;
	// the Authority remains the judge of token validity either way.
	MaxAge time.Duration
}

func (o CookieOptions) normalize() CookieOptions {
	if o.Name == "" {
		o.Name = DefaultCookieName
	}
	return o
}

// CookieStore seals the session into a tamper-evident cookie signed with a
// server-held secret, so the server reads it back without a database lookup.
// Tampered, malformed, or expired cookies read as an absent session.
type CookieStore struct {
	secret []byte
	opts   CookieOptions
}

// NewCookieStore creates a sealed-cookie session store.
func NewCookieStore(secret string, opts CookieOptions) (*CookieStore, error) {
	if secret == "" {
		return nil, errors.New("session: secret must not be empty")
	}
	return &CookieStore{secret: []byte(secret), opts: opts.normalize()}, nil
}

type sessionClaims struct {
	User  User   `json:"user"`
	Token string `json:"token"`
	jwt.RegisteredClaims
}

// Create seals s into the response cookie. Must be called before the response
// body is written.
func (c *CookieStore) Create(w http.ResponseWriter, s Session) error {
	issuedAt := s.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}
	claims := sessionClaims{
		User:  s.User,
		Token: s.Token,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(issuedAt),
		},
	}
	if c.opts.MaxAge > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(issuedAt.Add(c.opts.MaxAge))
	}

	sealed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return fmt.Errorf("session: seal cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:        c.opts.Name,
		Value:       sealed,
		Path:        "/",
		MaxAge:      int(c.opts.MaxAge / time.Second),
		HttpOnly:    true,
		Secure:      c.opts.Secure,
		SameSite:    http.SameSiteLaxMode,
		Partitioned: true,
	})
	return nil
}

// Read returns the current Session, or nil when the cookie is absent, sealed
// with a different secret, malformed, or expired. Tamper reads the same as
// absence.
func (c *CookieStore) Read(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(c.opts.Name)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	var claims sessionClaims
	_, err = jwt.ParseWithClaims(cookie.Value, &claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, nil
	}

	s := &Session{User: claims.User, Token: claims.Token}
	if claims.IssuedAt != nil {
		s.IssuedAt = claims.IssuedAt.Time
	}
	return s, nil
}

// Destroy expires the session cookie. Destroying an absent session is not an
// error.
func (c *CookieStore) Destroy(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:        c.opts.Name,
		Value:       "",
		Path:        "/",
		MaxAge:      -1,
		HttpOnly:    true,
		Secure:      c.opts.Secure,
		SameSite:    http.SameSiteLaxMode,
		Partitioned: true,
	})
}
