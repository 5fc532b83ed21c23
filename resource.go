package grantway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/grantway/grantway/grant"
	"github.com/grantway/grantway/scope"
	"github.com/grantway/grantway/storage"
)

// Guard runs the resource flow: validate the Bearer token and check that the
// grant's scope covers required. On success the grant is returned and
// nothing is written to resp; on failure the RFC 6750 challenge response is
// written and ok is false.
func (e *Endpoint) Guard(ctx context.Context, req WebRequest, resp WebResponse, required scope.Scope) (g *grant.Grant, ok bool) {
	start := e.config.Now()
	defer e.observeFlow(ctx, flowResource, start)

	token, found := bearerToken(req.Authorization())
	if !found {
		e.challenge(ctx, resp, http.StatusUnauthorized,
			fmt.Sprintf("Bearer realm=%q", e.config.Realm), nil)
		return nil, false
	}

	g, err := e.issuer.RecoverAccess(ctx, token)
	if err != nil {
		// A primitive failure is an internal fault, not a statement about
		// the token.
		if !errors.Is(err, storage.ErrTokenNotFound) {
			e.logger.Error("Recovering access token failed", "error", err)
			if m := e.metrics(); m != nil {
				m.RecordFlowError(ctx, flowResource, ErrorCodeServerError)
			}
			resp.SetHeader("Content-Type", "application/json")
			resp.SetStatus(http.StatusInternalServerError)
			_ = resp.WriteJSON(&ErrorResponse{Error: ErrorCodeServerError})
			return nil, false
		}
		if m := e.metrics(); m != nil {
			m.RecordFlowError(ctx, flowResource, ErrorCodeInvalidToken)
		}
		e.challenge(ctx, resp, http.StatusUnauthorized,
			fmt.Sprintf("Bearer realm=%q, error=%q", e.config.Realm, ErrorCodeInvalidToken),
			&ErrorResponse{Error: ErrorCodeInvalidToken})
		return nil, false
	}

	if !required.IsSubsetOf(g.Scope) {
		e.auditor.LogAuthFailure(g.OwnerID, g.ClientID, "insufficient scope")
		if m := e.metrics(); m != nil {
			m.RecordFlowError(ctx, flowResource, ErrorCodeInsufficientScope)
		}
		e.challenge(ctx, resp, http.StatusForbidden,
			fmt.Sprintf("Bearer realm=%q, error=%q, scope=%q",
				e.config.Realm, ErrorCodeInsufficientScope, required.String()),
			&ErrorResponse{
				Error:            ErrorCodeInsufficientScope,
				ErrorDescription: "granted scope does not cover this resource",
			})
		return nil, false
	}

	return g, true
}

// bearerToken extracts the token from an Authorization header
// (RFC 6750 Section 2.1). The scheme comparison is case-insensitive.
func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// challenge writes a WWW-Authenticate challenge response with an optional
// JSON body.
func (e *Endpoint) challenge(ctx context.Context, resp WebResponse, status int, challenge string, body *ErrorResponse) {
	resp.SetHeader("WWW-Authenticate", challenge)
	if body == nil {
		resp.SetStatus(status)
		_ = resp.WriteEmpty()
		return
	}
	resp.SetHeader("Content-Type", "application/json")
	resp.SetStatus(status)
	_ = resp.WriteJSON(body)
}
