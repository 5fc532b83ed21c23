// Package grant defines the immutable record of an authorization decision:
// which resource owner authorized which client, for what scope, until when.
// A Grant is created once and never mutated; every "modification" produces a
// new value, so primitives can hand grants to concurrent flows without
// copying discipline at the call sites.
package grant

import (
	"net/url"
	"time"

	"github.com/grantway/grantway/scope"
)

// Grant records an authorization decision. Extension data is addressed by
// stable extension identifier, not position, so hooks can be added or removed
// without invalidating stored grants.
type Grant struct {
	// OwnerID identifies the resource owner who approved the request.
	OwnerID string

	// ClientID identifies the client the grant was issued to.
	ClientID string

	// Scope is the set of permissions the owner approved.
	Scope scope.Scope

	// RedirectURI is the redirect URI the authorization was bound to.
	RedirectURI *url.URL

	// IssuedAt is when the grant was created.
	IssuedAt time.Time

	// Until is the moment the grant stops being valid.
	Until time.Time

	// extensions maps extension identifiers to opaque payloads.
	extensions map[string][]byte
}

// New creates a grant valid from now until now+validity.
func New(ownerID, clientID string, sc scope.Scope, redirectURI *url.URL, now time.Time, validity time.Duration) Grant {
	return Grant{
		OwnerID:     ownerID,
		ClientID:    clientID,
		Scope:       sc,
		RedirectURI: redirectURI,
		IssuedAt:    now,
		Until:       now.Add(validity),
	}
}

// Expired reports whether the grant is no longer valid at the given instant.
func (g Grant) Expired(now time.Time) bool {
	return now.After(g.Until)
}

// Extension returns the opaque payload stored for the given extension
// identifier. An absent identifier yields ok == false, never an error:
// unknown identifiers at consumption time are simply not present.
func (g Grant) Extension(id string) (payload []byte, ok bool) {
	payload, ok = g.extensions[id]
	return payload, ok
}

// ExtensionIDs returns the identifiers that carry payloads on this grant.
func (g Grant) ExtensionIDs() []string {
	ids := make([]string, 0, len(g.extensions))
	for id := range g.extensions {
		ids = append(ids, id)
	}
	return ids
}

// WithExtension returns a copy of the grant carrying payload under the given
// extension identifier. The receiver is left untouched.
func (g Grant) WithExtension(id string, payload []byte) Grant {
	out := g
	out.extensions = make(map[string][]byte, len(g.extensions)+1)
	for k, v := range g.extensions {
		out.extensions[k] = v
	}
	out.extensions[id] = append([]byte(nil), payload...)
	return out
}

// WithoutExtension returns a copy of the grant with the payload for the
// given identifier removed.
func (g Grant) WithoutExtension(id string) Grant {
	out := g
	out.extensions = make(map[string][]byte, len(g.extensions))
	for k, v := range g.extensions {
		if k != id {
			out.extensions[k] = v
		}
	}
	return out
}

// WithScope returns a copy of the grant carrying the given scope. Used on
// refresh, where the effective scope may only narrow.
func (g Grant) WithScope(sc scope.Scope) Grant {
	out := g
	out.Scope = sc
	return out
}

// WithUntil returns a copy of the grant with a new expiry.
func (g Grant) WithUntil(until time.Time) Grant {
	out := g
	out.Until = until
	return out
}
