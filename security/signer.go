package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/grantway/grantway/grant"
	"github.com/grantway/grantway/scope"
	"github.com/grantway/grantway/storage"
)

// ErrBadSignature is returned by Recover for tags that are malformed, were
// not produced with the signer's key, or were tampered with. The three cases
// are deliberately indistinguishable.
var ErrBadSignature = errors.New("tag signature invalid")

// signedTagNonceBytes is the per-tag nonce size. The nonce makes tags for
// identical grants unlinkable and guarantees Generate never repeats.
const signedTagNonceBytes = 16

// SignedTokens is a self-encoding token generator: each tag carries a
// serialized grant plus a keyed HMAC-SHA256 over it, so an issuer built on
// it can recover grants without a side table. Anyone without the key can
// neither forge a tag nor link two tags to the same grant.
type SignedTokens struct {
	key []byte
}

var _ storage.TokenGenerator = (*SignedTokens)(nil)

// NewSignedTokens creates a signer with the given key. The key must be at
// least 32 bytes; shorter keys weaken the MAC below its design strength.
func NewSignedTokens(key []byte) (*SignedTokens, error) {
	if len(key) < 32 {
		return nil, fmt.Errorf("signing key must be at least 32 bytes, got %d", len(key))
	}
	return &SignedTokens{key: append([]byte(nil), key...)}, nil
}

// GenerateSigningKey generates a fresh 32-byte signing key.
func GenerateSigningKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// signedGrant is the serialized form embedded in a tag. Extension payloads
// ride along so consumption-time hooks see them after recovery.
type signedGrant struct {
	OwnerID     string            `json:"o"`
	ClientID    string            `json:"c"`
	Scope       string            `json:"s"`
	RedirectURI string            `json:"r"`
	IssuedAt    int64             `json:"ia"`
	Until       int64             `json:"u"`
	Extensions  map[string][]byte `json:"x,omitempty"`
	Nonce       []byte            `json:"n"`
}

// Generate encodes the grant and signs it. Tag layout is
// base64url(body) "." base64url(hmac), both unpadded.
func (s *SignedTokens) Generate(g *grant.Grant) (string, error) {
	nonce := make([]byte, signedTagNonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to read entropy: %w", err)
	}

	sg := signedGrant{
		OwnerID:  g.OwnerID,
		ClientID: g.ClientID,
		Scope:    g.Scope.String(),
		IssuedAt: g.IssuedAt.Unix(),
		Until:    g.Until.Unix(),
		Nonce:    nonce,
	}
	if g.RedirectURI != nil {
		sg.RedirectURI = g.RedirectURI.String()
	}
	for _, id := range g.ExtensionIDs() {
		if sg.Extensions == nil {
			sg.Extensions = make(map[string][]byte)
		}
		payload, _ := g.Extension(id)
		sg.Extensions[id] = payload
	}

	body, err := json.Marshal(sg)
	if err != nil {
		return "", fmt.Errorf("failed to serialize grant: %w", err)
	}

	mac := hmac.New(sha256.New, s.key)
	mac.Write(body)

	return base64.RawURLEncoding.EncodeToString(body) + "." +
		base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Recover verifies a tag and reconstructs the grant it encodes. It performs
// no expiry check; callers compare Until against their clock, as they would
// for a stored grant.
func (s *SignedTokens) Recover(tag string) (*grant.Grant, error) {
	dot := strings.IndexByte(tag, '.')
	if dot < 0 {
		return nil, ErrBadSignature
	}

	body, err := base64.RawURLEncoding.DecodeString(tag[:dot])
	if err != nil {
		return nil, ErrBadSignature
	}
	sig, err := base64.RawURLEncoding.DecodeString(tag[dot+1:])
	if err != nil {
		return nil, ErrBadSignature
	}

	mac := hmac.New(sha256.New, s.key)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), sig) {
		return nil, ErrBadSignature
	}

	var sg signedGrant
	if err := json.Unmarshal(body, &sg); err != nil {
		return nil, ErrBadSignature
	}

	sc, err := scope.Parse(sg.Scope)
	if err != nil {
		return nil, ErrBadSignature
	}

	g := grant.Grant{
		OwnerID:  sg.OwnerID,
		ClientID: sg.ClientID,
		Scope:    sc,
		IssuedAt: time.Unix(sg.IssuedAt, 0),
		Until:    time.Unix(sg.Until, 0),
	}
	if sg.RedirectURI != "" {
		uri, err := url.Parse(sg.RedirectURI)
		if err != nil {
			return nil, ErrBadSignature
		}
		g.RedirectURI = uri
	}
	for id, payload := range sg.Extensions {
		g = g.WithExtension(id, payload)
	}

	return &g, nil
}
