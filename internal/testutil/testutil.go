// Package testutil provides testing helpers and fixtures shared across the
// engine's test suites.
package testutil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/grantway/grantway/grant"
	"github.com/grantway/grantway/scope"
	"github.com/grantway/grantway/storage"
)

// MockTime provides a controllable time source for deterministic expiry
// tests. It is safe for concurrent use, so it can back components that read
// the clock from their own goroutines.
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a mock time provider.
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time.
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration.
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value.
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// TestClient returns a public client fixture with a single redirect URI.
func TestClient() storage.Client {
	return storage.Client{
		ClientID:     "demo",
		RedirectURIs: []string{"https://cb.example/"},
		DefaultScope: scope.MustParse("read"),
		AllowedScope: scope.MustParse("read write"),
		CreatedAt:    time.Now(),
	}
}

// TestGrant returns a grant fixture for the TestClient.
func TestGrant(tb testing.TB, validity time.Duration) grant.Grant {
	tb.Helper()
	uri, err := url.Parse("https://cb.example/")
	if err != nil {
		tb.Fatalf("parsing fixture redirect URI: %v", err)
	}
	return grant.New("owner", "demo", scope.MustParse("read"), uri, time.Now(), validity)
}

// RandomString generates a random base64url string of the given length.
func RandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// PKCEPair generates a valid S256 challenge/verifier pair.
func PKCEPair() (challenge, verifier string) {
	verifier = RandomString(50)
	hash := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(hash[:])
	return challenge, verifier
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

// AssertEqual fails the test if got != want.
func AssertEqual(t *testing.T, got, want interface{}) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// AssertStringContains fails the test if s does not contain substr.
func AssertStringContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("string %q does not contain %q", s, substr)
	}
}

// AssertTrue fails the test if condition is false.
func AssertTrue(t *testing.T, condition bool, message string) {
	t.Helper()
	if !condition {
		t.Errorf("assertion failed: %s", message)
	}
}
