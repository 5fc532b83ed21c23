package extension

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
)

func pkcePair() (challenge, verifier string) {
	verifier = strings.Repeat("a", 43)
	hash := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(hash[:])
	return challenge, verifier
}

func TestPKCE_AuthorizationCapturesChallenge(t *testing.T) {
	p := &PKCE{}
	challenge, _ := pkcePair()

	payload, err := p.OnAuthorization(paramMap{
		paramCodeChallenge:       challenge,
		paramCodeChallengeMethod: PKCEMethodS256,
	})
	if err != nil {
		t.Fatalf("OnAuthorization() error = %v", err)
	}
	if want := PKCEMethodS256 + ":" + challenge; string(payload) != want {
		t.Errorf("payload = %q, want %q", payload, want)
	}
}

func TestPKCE_OptionalWhenAbsent(t *testing.T) {
	p := &PKCE{}
	payload, err := p.OnAuthorization(paramMap{})
	if err != nil {
		t.Fatalf("OnAuthorization() error = %v", err)
	}
	if payload != nil {
		t.Errorf("payload = %q, want nil", payload)
	}
}

func TestPKCE_RequiredVetoesWhenAbsent(t *testing.T) {
	p := &PKCE{Required: true}
	if _, err := p.OnAuthorization(paramMap{}); err == nil {
		t.Error("OnAuthorization() succeeded without challenge")
	}
}

func TestPKCE_PlainRejectedByDefault(t *testing.T) {
	p := &PKCE{}
	_, err := p.OnAuthorization(paramMap{
		paramCodeChallenge: "challenge-value",
		// No method: RFC 7636 defaults to plain.
	})
	if err == nil {
		t.Error("plain method accepted without AllowPlain")
	}
}

func TestPKCE_UnknownMethodVetoed(t *testing.T) {
	p := &PKCE{}
	_, err := p.OnAuthorization(paramMap{
		paramCodeChallenge:       "challenge-value",
		paramCodeChallengeMethod: "S999",
	})
	if err == nil {
		t.Error("unknown method accepted")
	}
}

func TestPKCE_TokenVerifierMatches(t *testing.T) {
	p := &PKCE{}
	challenge, verifier := pkcePair()
	stored := []byte(PKCEMethodS256 + ":" + challenge)

	payload, err := p.OnAccessToken(paramMap{paramCodeVerifier: verifier}, stored, true)
	if err != nil {
		t.Fatalf("OnAccessToken() error = %v", err)
	}
	if payload != nil {
		t.Error("payload not consumed after successful verification")
	}
}

func TestPKCE_TokenVerifierFailures(t *testing.T) {
	p := &PKCE{AllowPlain: true}
	challenge, _ := pkcePair()
	stored := []byte(PKCEMethodS256 + ":" + challenge)

	tests := []struct {
		name     string
		verifier string
	}{
		{"missing", ""},
		{"too short", strings.Repeat("a", 42)},
		{"too long", strings.Repeat("a", 129)},
		{"bad characters", strings.Repeat("a", 42) + "!"},
		{"wrong value", strings.Repeat("b", 43)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := paramMap{}
			if tt.verifier != "" {
				req[paramCodeVerifier] = tt.verifier
			}
			if _, err := p.OnAccessToken(req, stored, true); err == nil {
				t.Error("verification succeeded, want veto")
			}
		})
	}
}

func TestPKCE_TokenNoChallengeStored(t *testing.T) {
	p := &PKCE{}
	if _, err := p.OnAccessToken(paramMap{}, nil, false); err != nil {
		t.Errorf("OnAccessToken() without stored challenge error = %v", err)
	}
}

func TestPKCE_PlainRoundTrip(t *testing.T) {
	p := &PKCE{AllowPlain: true}
	verifier := strings.Repeat("v", 43)

	payload, err := p.OnAuthorization(paramMap{paramCodeChallenge: verifier})
	if err != nil {
		t.Fatalf("OnAuthorization() error = %v", err)
	}
	if _, err := p.OnAccessToken(paramMap{paramCodeVerifier: verifier}, payload, true); err != nil {
		t.Errorf("OnAccessToken() error = %v", err)
	}
}
