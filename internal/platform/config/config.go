// Package config loads per-frontend configuration from the environment so
// main stays lean. All three gateways share the same shape; they differ only
// in the defaults each binary passes and the flags it honors.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures everything a frontend gateway needs to boot.
type Config struct {
	// Addr is the listen address for the gateway's HTTP server.
	Addr string `env:"ADDR" envDefault:":3000"`

	// AuthorityURL is the base URL of the backend identity service.
	AuthorityURL string `env:"AUTHORITY_URL" envDefault:"http://localhost:8000"`

	// SessionSecret seals the session cookie. Must be overridden in
	// production; the default exists so local boots work out of the box.
	SessionSecret string `env:"SESSION_SECRET" envDefault:"dev-secret-change-in-production"`

	// SessionCookieName names the sealed session cookie on this origin.
	SessionCookieName string `env:"SESSION_COOKIE_NAME" envDefault:"quizify-session"`

	// SecureCookies marks the session cookie Secure. Disable only for plain
	// HTTP local development.
	SecureCookies bool `env:"SECURE_COOKIES" envDefault:"true"`

	// StaticDir is the directory of frontend assets this gateway serves
	// behind its route guard.
	StaticDir string `env:"STATIC_DIR" envDefault:"./public"`

	// DashboardURL is the origin tokens are relayed to after a marketing
	// login. Only the marketing gateway reads it.
	DashboardURL string `env:"DASHBOARD_URL" envDefault:"http://localhost:3001"`

	// RedisURL enables the Redis-backed relay token storage when set.
	// Empty means the in-memory storage is used.
	RedisURL string `env:"REDIS_URL"`

	// AuthorityTimeout bounds every call to the Authority. A timed-out
	// verification is a denial, never fail-open.
	AuthorityTimeout time.Duration `env:"AUTHORITY_TIMEOUT" envDefault:"10s"`

	// RevalidateSessions forces a live Authority check on every protected
	// navigation. The admin gateway turns this on; the others trust the
	// local cookie between logins.
	RevalidateSessions bool `env:"REVALIDATE_SESSIONS"`

	// LogLevel is the slog level name (debug, info, warn, error).
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
