// Package extension implements the pluggable hook system that threads
// opaque, per-extension data from the authorization request into the
// access-token request. Hooks run in registration order; the first veto
// short-circuits the remainder and fails the flow.
package extension

import (
	"fmt"

	"github.com/grantway/grantway/grant"
)

// Request is the view of an incoming request a hook may inspect. Hooks see
// parameters only; they never touch the transport.
type Request interface {
	// Param returns the named request parameter. For authorization requests
	// these are query parameters, for access-token requests form-body
	// parameters.
	Param(name string) (value string, ok bool)
}

// Hook is one extension. Implementations are identified by a stable ID under
// which their payload is stored on the grant, so hooks can be added or
// removed without breaking stored grants.
type Hook interface {
	// ID returns the stable extension identifier.
	ID() string

	// OnAuthorization inspects the code request. A non-nil payload is
	// stored against the hook's ID in the grant; nil stores nothing. A
	// non-nil error vetoes the request.
	OnAuthorization(req Request) (payload []byte, err error)

	// OnAccessToken inspects the access-token request together with the
	// payload the hook stored at authorization time (present reports
	// whether one exists). Returning a non-nil payload replaces the stored
	// data; returning nil consumes it. A non-nil error vetoes the request.
	OnAccessToken(req Request, stored []byte, present bool) (payload []byte, err error)
}

// VetoError marks a hook rejection. Flows surface vetoes as client-visible
// protocol errors, never as silent denies: the client caused them.
type VetoError struct {
	HookID string
	Reason string
}

func (e *VetoError) Error() string {
	return fmt.Sprintf("extension %s vetoed request: %s", e.HookID, e.Reason)
}

// Veto creates a VetoError for the given hook.
func Veto(hookID, format string, args ...any) error {
	return &VetoError{HookID: hookID, Reason: fmt.Sprintf(format, args...)}
}

// System is an ordered set of hooks shared by the authorization and
// access-token flows. The zero value is usable and runs no hooks.
type System struct {
	hooks []Hook
}

// NewSystem creates a system running the given hooks in order.
func NewSystem(hooks ...Hook) *System {
	return &System{hooks: hooks}
}

// Register appends a hook. Hooks run in registration order.
func (s *System) Register(h Hook) {
	s.hooks = append(s.hooks, h)
}

// Authorize runs every hook against the code request, attaching contributed
// payloads to the grant. The first veto aborts and is returned unwrapped so
// callers can inspect the VetoError.
func (s *System) Authorize(req Request, g grant.Grant) (grant.Grant, error) {
	if s == nil {
		return g, nil
	}
	for _, h := range s.hooks {
		payload, err := h.OnAuthorization(req)
		if err != nil {
			return g, err
		}
		if payload != nil {
			g = g.WithExtension(h.ID(), payload)
		}
	}
	return g, nil
}

// Validate runs every hook against the access-token request, handing each
// its previously stored payload. Payloads are consumed unless the hook
// replaces them. The first veto aborts.
func (s *System) Validate(req Request, g grant.Grant) (grant.Grant, error) {
	if s == nil {
		return g, nil
	}
	for _, h := range s.hooks {
		stored, present := g.Extension(h.ID())
		payload, err := h.OnAccessToken(req, stored, present)
		if err != nil {
			return g, err
		}
		if payload != nil {
			g = g.WithExtension(h.ID(), payload)
		} else if present {
			g = g.WithoutExtension(h.ID())
		}
	}
	return g, nil
}
