package security

import (
	"strings"
	"testing"
)

func newTestSigner(t *testing.T) *SignedTokens {
	t.Helper()
	key, err := GenerateSigningKey()
	if err != nil {
		t.Fatalf("GenerateSigningKey() error = %v", err)
	}
	s, err := NewSignedTokens(key)
	if err != nil {
		t.Fatalf("NewSignedTokens() error = %v", err)
	}
	return s
}

func TestNewSignedTokens_ShortKey(t *testing.T) {
	if _, err := NewSignedTokens([]byte("too short")); err == nil {
		t.Error("NewSignedTokens() accepted a short key")
	}
}

func TestSignedTokens_RoundTrip(t *testing.T) {
	s := newTestSigner(t)
	g := testGrant(t).WithExtension("pkce", []byte("S256:challenge"))

	tag, err := s.Generate(&g)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	got, err := s.Recover(tag)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}

	if got.OwnerID != g.OwnerID || got.ClientID != g.ClientID {
		t.Errorf("recovered identity = %s/%s, want %s/%s", got.OwnerID, got.ClientID, g.OwnerID, g.ClientID)
	}
	if !got.Scope.Equal(g.Scope) {
		t.Errorf("recovered scope = %q, want %q", got.Scope, g.Scope)
	}
	if got.RedirectURI == nil || got.RedirectURI.String() != g.RedirectURI.String() {
		t.Errorf("recovered redirect URI = %v, want %v", got.RedirectURI, g.RedirectURI)
	}
	if !got.Until.Equal(g.Until) {
		t.Errorf("recovered until = %v, want %v", got.Until, g.Until)
	}
	payload, ok := got.Extension("pkce")
	if !ok || string(payload) != "S256:challenge" {
		t.Errorf("recovered extension = (%q, %v)", payload, ok)
	}
}

func TestSignedTokens_Unlinkable(t *testing.T) {
	s := newTestSigner(t)
	g := testGrant(t)

	a, err := s.Generate(&g)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	b, err := s.Generate(&g)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if a == b {
		t.Error("identical grants produced identical tags")
	}
}

func TestSignedTokens_TamperRejected(t *testing.T) {
	s := newTestSigner(t)
	g := testGrant(t)

	tag, err := s.Generate(&g)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	tests := []struct {
		name string
		tag  string
	}{
		{"flipped body byte", "A" + tag[1:]},
		{"truncated signature", tag[:len(tag)-4]},
		{"missing separator", strings.ReplaceAll(tag, ".", "")},
		{"empty", ""},
		{"garbage", "not-a-tag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Recover(tt.tag); err == nil {
				t.Errorf("Recover(%q) succeeded, want error", tt.tag)
			}
		})
	}
}

func TestSignedTokens_WrongKeyRejected(t *testing.T) {
	a := newTestSigner(t)
	b := newTestSigner(t)
	g := testGrant(t)

	tag, err := a.Generate(&g)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, err := b.Recover(tag); err == nil {
		t.Error("Recover() with a different key succeeded")
	}
}
