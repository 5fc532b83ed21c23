package grantway

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/grantway/grantway/extension"
	"github.com/grantway/grantway/grant"
	"github.com/grantway/grantway/scope"
	"github.com/grantway/grantway/storage"
)

// flow names used in metrics and logs.
const (
	flowAuthorization = "authorization"
	flowAccessToken   = "access_token"
	flowRefresh       = "refresh"
	flowResource      = "resource"
)

// authParam reads a parameter from the query string, falling back to the
// form body. The authorization endpoint accepts GET and POST.
func authParam(req WebRequest, name string) (string, bool) {
	if v, ok := req.Query(name); ok {
		return v, ok
	}
	return req.Form(name)
}

// authView exposes the authorization request's parameters to extension
// hooks.
type authView struct {
	req WebRequest
}

func (v authView) Param(name string) (string, bool) {
	return authParam(v.req, name)
}

// Authorize runs the authorization flow for one request: bind the client and
// redirect URI, negotiate scope, solicit consent, and on approval issue a
// one-time code delivered by redirect.
//
// The outcome is written to resp; the returned error reports only transport
// write failures.
func (e *Endpoint) Authorize(ctx context.Context, req WebRequest, resp WebResponse) error {
	start := e.config.Now()
	defer e.observeFlow(ctx, flowAuthorization, start)

	clientID, ok := authParam(req, paramClientID)
	if !ok || clientID == "" {
		return e.silentDeny(ctx, resp, "", "missing client_id")
	}
	if m := e.metrics(); m != nil {
		m.RecordAuthorizationRequest(ctx, clientID)
	}

	redirectURI, _ := authParam(req, paramRedirectURI)
	bound, err := e.registrar.BoundRedirect(ctx, clientID, redirectURI)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrUnregistered):
			return e.silentDeny(ctx, resp, clientID, "unregistered client")
		case errors.Is(err, storage.ErrRedirectMismatch):
			// Redirecting anywhere here would be an open redirect.
			return e.silentDeny(ctx, resp, clientID, "redirect URI mismatch")
		default:
			e.logger.Error("Binding redirect failed", "client_id", clientID, "error", err)
			resp.SetStatus(http.StatusInternalServerError)
			return resp.WriteEmpty()
		}
	}

	// From here the redirect URI is validated; errors go back to the client.
	state, _ := authParam(req, paramState)

	if rt, _ := authParam(req, paramResponseType); rt != responseTypeCode {
		return e.redirectError(ctx, resp, bound.RedirectURI, state,
			ErrInvalidRequest("response_type must be 'code'"))
	}

	var requested *scope.Scope
	if raw, ok := authParam(req, paramScope); ok && raw != "" {
		sc, err := scope.Parse(raw)
		if err != nil {
			return e.redirectError(ctx, resp, bound.RedirectURI, state,
				ErrInvalidScope("malformed scope"))
		}
		requested = &sc
	}

	pre, err := e.registrar.Negotiate(ctx, bound, requested)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrScopeExceeded):
			return e.redirectError(ctx, resp, bound.RedirectURI, state,
				ErrInvalidScope("requested scope exceeds client allowance"))
		case errors.Is(err, storage.ErrUnregistered):
			return e.silentDeny(ctx, resp, clientID, "client vanished during negotiation")
		default:
			e.logger.Error("Scope negotiation failed", "client_id", clientID, "error", err)
			return e.redirectError(ctx, resp, bound.RedirectURI, state,
				ErrServerError("scope negotiation failed"))
		}
	}

	consent, err := e.consent.Solicit(ctx, req, pre)
	if err != nil {
		e.logger.Error("Consent solicitation failed", "client_id", clientID, "error", err)
		return e.redirectError(ctx, resp, bound.RedirectURI, state,
			ErrServerError("consent unavailable"))
	}

	switch consent.kind {
	case consentInProgress:
		// Cooperative suspension: answer with the partial response. The
		// flow resumes as a fresh invocation carrying the decision.
		return consent.render(resp)

	case consentDenied:
		e.auditor.LogAccessDenied(pre.ClientID)
		return e.redirectError(ctx, resp, bound.RedirectURI, state,
			ErrAccessDenied("resource owner denied the request"))
	}

	parsedRedirect, err := url.Parse(pre.RedirectURI)
	if err != nil {
		e.logger.Error("Registered redirect URI unparseable", "client_id", clientID, "error", err)
		resp.SetStatus(http.StatusInternalServerError)
		return resp.WriteEmpty()
	}

	g := grant.New(consent.ownerID, pre.ClientID, pre.Scope, parsedRedirect,
		e.config.Now(), e.config.CodeTTL)

	g, err = e.extensions.Authorize(authView{req}, g)
	if err != nil {
		var veto *extension.VetoError
		if errors.As(err, &veto) {
			return e.redirectError(ctx, resp, bound.RedirectURI, state,
				ErrInvalidRequest(veto.Reason))
		}
		e.logger.Error("Extension hook failed", "client_id", clientID, "error", err)
		return e.redirectError(ctx, resp, bound.RedirectURI, state,
			ErrServerError("extension processing failed"))
	}

	code, err := e.authorizer.Authorize(ctx, g)
	if err != nil {
		e.logger.Error("Storing authorization code failed", "client_id", clientID, "error", err)
		return e.redirectError(ctx, resp, bound.RedirectURI, state,
			ErrServerError("could not issue code"))
	}

	e.auditor.LogCodeIssued(g.OwnerID, g.ClientID, g.Scope.String())
	if m := e.metrics(); m != nil {
		m.RecordCodeIssued(ctx, g.ClientID)
	}

	params := url.Values{paramCode: {code}}
	if state != "" {
		params.Set(paramState, state)
	}
	return resp.Redirect(appendQuery(bound.RedirectURI, params))
}

// silentDeny drops the request with a content-free response. Used when even
// acknowledging the request's shape would aid an attacker.
func (e *Endpoint) silentDeny(ctx context.Context, resp WebResponse, clientID, reason string) error {
	e.logger.Warn("Silently denied authorization request",
		"client_id", clientID,
		"reason", reason)
	e.auditor.LogSilentDeny(clientID, reason)
	if m := e.metrics(); m != nil {
		m.RecordSilentDeny(ctx, flowAuthorization)
	}

	resp.SetStatus(http.StatusBadRequest)
	return resp.WriteEmpty()
}

// redirectError delivers a protocol error to the validated redirect URI,
// echoing state verbatim.
func (e *Endpoint) redirectError(ctx context.Context, resp WebResponse, redirectURI, state string, protoErr *Error) error {
	if m := e.metrics(); m != nil {
		m.RecordFlowError(ctx, flowAuthorization, protoErr.Code)
	}

	params := url.Values{paramError: {protoErr.Code}}
	if protoErr.Description != "" {
		params.Set(paramErrorDesc, protoErr.Description)
	}
	if state != "" {
		params.Set(paramState, state)
	}
	return resp.Redirect(appendQuery(redirectURI, params))
}

// appendQuery adds params to a URI, preserving any query it already carries.
func appendQuery(uri string, params url.Values) string {
	u, err := url.Parse(uri)
	if err != nil {
		// The URI was validated at registration; fall back to naive append.
		return uri + "?" + params.Encode()
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
