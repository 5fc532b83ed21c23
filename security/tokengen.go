// Package security provides the cryptographic and abuse-protection building
// blocks of the engine: token tag generation (random and signed
// self-encoding), security audit logging, and per-identifier rate limiting.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/grantway/grantway/grant"
	"github.com/grantway/grantway/storage"
)

// randomTagBytes is the entropy per generated tag. 32 bytes gives 256 bits,
// which makes collisions and guessing attacks infeasible without keeping a
// uniqueness table.
const randomTagBytes = 32

// RandomTokens generates opaque random tags. Callers that use it must keep a
// side table mapping tags to grants; the tag itself encodes nothing.
type RandomTokens struct{}

var _ storage.TokenGenerator = RandomTokens{}

// NewRandomTokens creates a generator backed by crypto/rand.
func NewRandomTokens() RandomTokens {
	return RandomTokens{}
}

// Generate returns a fresh URL-safe tag. The grant is ignored: two calls for
// identical grants yield unrelated tags, which is what makes tags unlinkable.
func (RandomTokens) Generate(_ *grant.Grant) (string, error) {
	b := make([]byte, randomTagBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
