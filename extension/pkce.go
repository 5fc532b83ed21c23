package extension

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"
)

// PKCE hook identifier and wire parameters (RFC 7636).
const (
	PKCEID = "pkce"

	paramCodeChallenge       = "code_challenge"
	paramCodeChallengeMethod = "code_challenge_method"
	paramCodeVerifier        = "code_verifier"

	// PKCEMethodS256 hashes the verifier with SHA-256 (recommended).
	PKCEMethodS256 = "S256"

	// PKCEMethodPlain compares the verifier directly (deprecated).
	PKCEMethodPlain = "plain"

	// RFC 7636 Section 4.1: code_verifier length bounds.
	minVerifierLength = 43
	maxVerifierLength = 128
)

// PKCE binds an authorization code to the client that requested it: the code
// request carries a challenge, the token request must present the matching
// verifier. Stored payload format is "method:challenge".
type PKCE struct {
	// Required vetoes authorization requests that carry no challenge.
	// Recommended for public clients.
	Required bool

	// AllowPlain permits the deprecated "plain" method. S256 is always
	// accepted.
	AllowPlain bool
}

var _ Hook = (*PKCE)(nil)

// ID returns the stable extension identifier.
func (p *PKCE) ID() string { return PKCEID }

// OnAuthorization captures the code challenge from the authorization request.
func (p *PKCE) OnAuthorization(req Request) ([]byte, error) {
	challenge, hasChallenge := req.Param(paramCodeChallenge)
	method, hasMethod := req.Param(paramCodeChallengeMethod)

	if !hasChallenge || challenge == "" {
		if p.Required {
			return nil, Veto(PKCEID, "code_challenge is required")
		}
		return nil, nil
	}

	// RFC 7636 Section 4.3: method defaults to plain when omitted.
	if !hasMethod || method == "" {
		method = PKCEMethodPlain
	}

	switch method {
	case PKCEMethodS256:
	case PKCEMethodPlain:
		if !p.AllowPlain {
			return nil, Veto(PKCEID, "'plain' code_challenge_method is not allowed")
		}
	default:
		return nil, Veto(PKCEID, "unsupported code_challenge_method %q", method)
	}

	return []byte(method + ":" + challenge), nil
}

// OnAccessToken verifies the code verifier against the stored challenge.
func (p *PKCE) OnAccessToken(req Request, stored []byte, present bool) ([]byte, error) {
	if !present {
		// No challenge was bound to the code; nothing to verify.
		return nil, nil
	}

	method, challenge, ok := strings.Cut(string(stored), ":")
	if !ok {
		return nil, Veto(PKCEID, "stored challenge is malformed")
	}

	verifier, _ := req.Param(paramCodeVerifier)
	if verifier == "" {
		return nil, Veto(PKCEID, "code_verifier is required")
	}
	if len(verifier) < minVerifierLength || len(verifier) > maxVerifierLength {
		return nil, Veto(PKCEID, "code_verifier length must be %d-%d characters", minVerifierLength, maxVerifierLength)
	}
	for i := 0; i < len(verifier); i++ {
		if !validVerifierChar(verifier[i]) {
			return nil, Veto(PKCEID, "code_verifier contains invalid characters")
		}
	}

	var computed string
	switch method {
	case PKCEMethodS256:
		hash := sha256.Sum256([]byte(verifier))
		computed = base64.RawURLEncoding.EncodeToString(hash[:])
	case PKCEMethodPlain:
		computed = verifier
	default:
		return nil, Veto(PKCEID, "stored challenge uses unsupported method %q", method)
	}

	// Constant-time comparison to keep the challenge free of timing
	// side channels.
	if subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
		return nil, Veto(PKCEID, "code_verifier does not match code_challenge")
	}

	return nil, nil
}

// validVerifierChar reports whether c is in the RFC 7636 unreserved set
// [A-Za-z0-9-._~].
func validVerifierChar(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
		c == '-' || c == '.' || c == '_' || c == '~'
}
