package grantway

import (
	"log/slog"
	"time"
)

// Default lifetimes. Codes are short-lived by design (RFC 6749 Section
// 4.1.2 recommends a maximum of ten minutes).
const (
	DefaultCodeTTL  = 5 * time.Minute
	DefaultTokenTTL = time.Hour
	DefaultRealm    = "grantway"
)

// Config tunes the engine. The zero value is usable; applyDefaults fills in
// the blanks.
type Config struct {
	// CodeTTL is how long an authorization code stays exchangeable.
	CodeTTL time.Duration

	// TokenTTL is the access token lifetime.
	TokenTTL time.Duration

	// Realm is emitted in WWW-Authenticate challenges.
	Realm string

	// Logger receives flow diagnostics. Nil falls back to slog.Default().
	Logger *slog.Logger

	// AuditEnabled turns on security event logging.
	AuditEnabled bool

	// Now is replaceable for expiry tests. Nil means time.Now.
	Now func() time.Time
}

// applyDefaults fills unset fields with defaults.
func (c *Config) applyDefaults() {
	if c.CodeTTL <= 0 {
		c.CodeTTL = DefaultCodeTTL
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = DefaultTokenTTL
	}
	if c.Realm == "" {
		c.Realm = DefaultRealm
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}
