// Package storage defines the pluggable primitive contracts the flow state
// machines are generic over: client registry (Registrar), one-time
// authorization-code store (Authorizer), access/refresh token issuer
// (Issuer), and tag generation (TokenGenerator). Implementations may be
// in-memory, database-backed, or stateless (self-encoding tokens); the flows
// only ever see these interfaces.
//
// All stateful methods accept context.Context for tracing and cancellation.
// Primitives are shared, long-lived state accessed by many concurrent flow
// invocations; every method must be safe for concurrent use.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/grantway/grantway/grant"
	"github.com/grantway/grantway/scope"
)

// Sentinel errors returned by primitives. Flows translate these into the
// wire-level error taxonomy; primitives never shape protocol responses
// themselves.
var (
	// ErrUnregistered means the client is unknown. Flows must treat this as
	// a silent deny: no redirect is issued and nothing about client
	// existence is disclosed.
	ErrUnregistered = errors.New("client not registered")

	// ErrRedirectMismatch means the supplied redirect URI is not an exact
	// match for any URI registered for the client (RFC 6749 Section 3.1.2.3
	// requires exact matching; prefix or partial matches are rejected).
	ErrRedirectMismatch = errors.New("redirect URI does not match registration")

	// ErrScopeExceeded means the requested scope is outside what the client
	// is allowed. Requesting too much is an error, never silent truncation.
	ErrScopeExceeded = errors.New("requested scope exceeds client allowance")

	// ErrUnauthorizedClient means client authentication failed at the token
	// endpoint.
	ErrUnauthorizedClient = errors.New("client authentication failed")

	// ErrCodeNotFound means the authorization code is unknown, expired, or
	// already consumed. The three cases are deliberately indistinguishable.
	ErrCodeNotFound = errors.New("authorization code not found")

	// ErrTokenNotFound means the token is unknown or expired. The two cases
	// are deliberately indistinguishable so lookups cannot be used as an
	// existence oracle.
	ErrTokenNotFound = errors.New("token not found")
)

// Client is a registered OAuth client. Records are created at configuration
// time, read on every flow invocation, and never mutated by flows.
type Client struct {
	// ClientID is the unique client identifier.
	ClientID string

	// RedirectURIs lists the registered redirect URIs (exact-match only).
	RedirectURIs []string

	// DefaultScope is the scope granted when the client requests none.
	DefaultScope scope.Scope

	// AllowedScope bounds what the client may request. Requested scopes
	// must be a subset of this.
	AllowedScope scope.Scope

	// Confidential marks secret-bearing clients. Public clients carry no
	// secret and must authenticate with none.
	Confidential bool

	// SecretHash is the bcrypt hash of the client secret (confidential
	// clients only).
	SecretHash []byte

	// CreatedAt is when the client was registered.
	CreatedAt time.Time
}

// BoundClient is the result of binding an authorization request to a
// registered client and a validated redirect URI.
type BoundClient struct {
	ClientID    string
	RedirectURI string
}

// PreGrant is the negotiated shape of an authorization before the owner has
// decided: the client, the validated redirect URI, and the effective scope.
type PreGrant struct {
	ClientID    string
	RedirectURI string
	Scope       scope.Scope
}

// TokenPair is an issued access/refresh token pair. RefreshToken may be
// empty when the issuer does not hand one out.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	Until        time.Time
}

// Registrar validates client identity and redirect URIs and negotiates the
// effective scope for a request.
type Registrar interface {
	// BoundRedirect binds a client to a redirect URI. When redirectURI is
	// empty the client's sole registered URI is chosen; a client with
	// several registered URIs then fails with ErrRedirectMismatch. A
	// non-empty redirectURI must exactly match a registered one. Unknown
	// clients fail with ErrUnregistered.
	BoundRedirect(ctx context.Context, clientID, redirectURI string) (*BoundClient, error)

	// Negotiate determines the effective scope: the client's default when
	// requested is nil, otherwise the requested scope validated against the
	// client's allowance. Scope outside the allowance fails with
	// ErrScopeExceeded.
	Negotiate(ctx context.Context, bound *BoundClient, requested *scope.Scope) (*PreGrant, error)

	// Check verifies client authentication for the token endpoint.
	// Confidential clients must present their secret; public clients must
	// succeed with an empty secret and fail with ErrUnauthorizedClient when
	// one is supplied.
	Check(ctx context.Context, clientID, clientSecret string) error
}

// Authorizer stores one-time authorization codes mapped to grants.
type Authorizer interface {
	// Authorize stores the grant and returns a fresh code. Two calls never
	// return the same code, even for identical grants; a repeated code is a
	// protocol security defect, not an allowed optimization.
	Authorize(ctx context.Context, g grant.Grant) (string, error)

	// Extract consumes a code, returning its grant exactly once. Every
	// later call for the same code returns ErrCodeNotFound, and concurrent
	// calls for the same code must resolve so that exactly one caller
	// observes the grant.
	Extract(ctx context.Context, code string) (*grant.Grant, error)
}

// Issuer issues and tracks access/refresh token pairs mapped to grants.
type Issuer interface {
	// Issue creates a token pair for the grant. Tokens are distinct from
	// every previously issued token, across all grants.
	Issue(ctx context.Context, g grant.Grant) (*TokenPair, error)

	// Refresh rotates the pair bound to refreshToken. The supplied grant's
	// scope must be a subset of the scope originally bound to the refresh
	// token; widening fails with ErrScopeExceeded. Unknown or expired
	// refresh tokens fail with ErrTokenNotFound.
	Refresh(ctx context.Context, refreshToken string, g grant.Grant) (*TokenPair, error)

	// RecoverAccess is a read-only lookup of the grant behind an access
	// token. Unknown and expired tokens both return ErrTokenNotFound.
	RecoverAccess(ctx context.Context, accessToken string) (*grant.Grant, error)

	// RecoverRefresh is a read-only lookup of the grant behind a refresh
	// token. Unknown and expired tokens both return ErrTokenNotFound.
	RecoverRefresh(ctx context.Context, refreshToken string) (*grant.Grant, error)
}

// TokenGenerator produces unique, unpredictable string tags for codes and
// tokens. A generator may emit opaque random tags (the issuer then keeps a
// side table) or self-describing signed encodings of the grant (letting
// recovery be stateless). Either way tags must be unforgeable without the
// key or entropy source, and tags for different grants must be unlinkable.
type TokenGenerator interface {
	Generate(g *grant.Grant) (string, error)
}
