package extension

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/grantway/grantway/grant"
	"github.com/grantway/grantway/scope"
)

// paramMap is a Request backed by a plain map.
type paramMap map[string]string

func (m paramMap) Param(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// recordingHook stores a fixed payload and records invocation order.
type recordingHook struct {
	id      string
	payload []byte
	authErr error
	tokErr  error
	calls   *[]string
}

func (h *recordingHook) ID() string { return h.id }

func (h *recordingHook) OnAuthorization(Request) ([]byte, error) {
	*h.calls = append(*h.calls, h.id+":auth")
	return h.payload, h.authErr
}

func (h *recordingHook) OnAccessToken(_ Request, stored []byte, present bool) ([]byte, error) {
	*h.calls = append(*h.calls, h.id+":token")
	return nil, h.tokErr
}

func emptyGrant(t *testing.T) grant.Grant {
	t.Helper()
	uri, err := url.Parse("https://cb.example/")
	if err != nil {
		t.Fatalf("url.Parse() error = %v", err)
	}
	return grant.New("owner", "demo", scope.MustParse("read"), uri, time.Now(), time.Minute)
}

func TestSystem_AuthorizeAttachesPayloads(t *testing.T) {
	var calls []string
	sys := NewSystem(
		&recordingHook{id: "a", payload: []byte("pa"), calls: &calls},
		&recordingHook{id: "b", calls: &calls}, // contributes nothing
	)

	g, err := sys.Authorize(paramMap{}, emptyGrant(t))
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	if payload, ok := g.Extension("a"); !ok || string(payload) != "pa" {
		t.Errorf("extension a = (%q, %v), want (pa, true)", payload, ok)
	}
	if _, ok := g.Extension("b"); ok {
		t.Error("hook b stored a payload despite returning nil")
	}
	if len(calls) != 2 || calls[0] != "a:auth" || calls[1] != "b:auth" {
		t.Errorf("call order = %v", calls)
	}
}

func TestSystem_FirstVetoShortCircuits(t *testing.T) {
	var calls []string
	veto := Veto("a", "no")
	sys := NewSystem(
		&recordingHook{id: "a", authErr: veto, calls: &calls},
		&recordingHook{id: "b", calls: &calls},
	)

	_, err := sys.Authorize(paramMap{}, emptyGrant(t))
	if err == nil {
		t.Fatal("Authorize() succeeded despite veto")
	}

	var ve *VetoError
	if !errors.As(err, &ve) || ve.HookID != "a" {
		t.Errorf("error = %v, want VetoError from hook a", err)
	}
	if len(calls) != 1 {
		t.Errorf("later hooks ran after veto: %v", calls)
	}
}

func TestSystem_ValidateConsumesPayload(t *testing.T) {
	var calls []string
	sys := NewSystem(&recordingHook{id: "a", calls: &calls})

	g := emptyGrant(t).WithExtension("a", []byte("pa"))
	g, err := sys.Validate(paramMap{}, g)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if _, ok := g.Extension("a"); ok {
		t.Error("payload not consumed after validation")
	}
}

func TestSystem_NilSystemRunsNothing(t *testing.T) {
	var sys *System
	g, err := sys.Authorize(paramMap{}, emptyGrant(t))
	if err != nil {
		t.Fatalf("Authorize() on nil system error = %v", err)
	}
	g, err = sys.Validate(paramMap{}, g)
	if err != nil {
		t.Fatalf("Validate() on nil system error = %v", err)
	}
}

func TestSystem_UnknownStoredIdentifierIgnored(t *testing.T) {
	// A payload stored by a hook that has since been removed must not
	// break validation.
	var calls []string
	sys := NewSystem(&recordingHook{id: "current", calls: &calls})

	g := emptyGrant(t).WithExtension("retired", []byte("old"))
	if _, err := sys.Validate(paramMap{}, g); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}
