package grant

import (
	"bytes"
	"net/url"
	"testing"
	"time"

	"github.com/grantway/grantway/scope"
)

func testGrant(t *testing.T) Grant {
	t.Helper()
	uri, err := url.Parse("https://cb.example/")
	if err != nil {
		t.Fatalf("url.Parse() error = %v", err)
	}
	return New("owner-1", "demo", scope.MustParse("read"), uri, time.Now(), 10*time.Minute)
}

func TestExpired(t *testing.T) {
	g := testGrant(t)
	if g.Expired(time.Now()) {
		t.Error("fresh grant reported expired")
	}
	if !g.Expired(g.Until.Add(time.Second)) {
		t.Error("grant past Until not reported expired")
	}
	// Boundary: exactly at Until the grant is still valid.
	if g.Expired(g.Until) {
		t.Error("grant exactly at Until reported expired")
	}
}

func TestWithExtension_DoesNotMutateReceiver(t *testing.T) {
	g := testGrant(t)
	g2 := g.WithExtension("pkce", []byte("S256:abc"))

	if _, ok := g.Extension("pkce"); ok {
		t.Error("WithExtension mutated the original grant")
	}

	payload, ok := g2.Extension("pkce")
	if !ok {
		t.Fatal("extension missing on derived grant")
	}
	if !bytes.Equal(payload, []byte("S256:abc")) {
		t.Errorf("payload = %q, want %q", payload, "S256:abc")
	}
}

func TestWithExtension_CopiesPayload(t *testing.T) {
	g := testGrant(t)
	buf := []byte("secret")
	g2 := g.WithExtension("x", buf)
	buf[0] = 'X'

	payload, _ := g2.Extension("x")
	if !bytes.Equal(payload, []byte("secret")) {
		t.Errorf("payload aliased caller buffer: %q", payload)
	}
}

func TestWithoutExtension(t *testing.T) {
	g := testGrant(t).WithExtension("a", []byte("1")).WithExtension("b", []byte("2"))
	g2 := g.WithoutExtension("a")

	if _, ok := g2.Extension("a"); ok {
		t.Error("extension a still present after removal")
	}
	if _, ok := g2.Extension("b"); !ok {
		t.Error("extension b lost on removal of a")
	}
	if _, ok := g.Extension("a"); !ok {
		t.Error("WithoutExtension mutated the original grant")
	}
}

func TestExtension_UnknownIdentifier(t *testing.T) {
	g := testGrant(t)
	if payload, ok := g.Extension("nope"); ok || payload != nil {
		t.Errorf("Extension(nope) = (%q, %v), want absent", payload, ok)
	}
}

func TestWithScope(t *testing.T) {
	g := testGrant(t)
	narrowed := g.WithScope(scope.MustParse(""))

	if !narrowed.Scope.IsEmpty() {
		t.Error("narrowed scope not empty")
	}
	if g.Scope.IsEmpty() {
		t.Error("WithScope mutated the original grant")
	}
	if narrowed.OwnerID != g.OwnerID || narrowed.ClientID != g.ClientID {
		t.Error("WithScope lost identity fields")
	}
}
