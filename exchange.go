package grantway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/grantway/grantway/extension"
	"github.com/grantway/grantway/storage"
)

// Token runs the token endpoint for one request, dispatching on grant_type.
// Supported grant types are authorization_code and refresh_token.
func (e *Endpoint) Token(ctx context.Context, req WebRequest, resp WebResponse) error {
	grantType, ok := req.Form(paramGrantType)
	if !ok || grantType == "" {
		return e.writeTokenError(ctx, resp, flowAccessToken,
			ErrInvalidRequest("missing grant_type"))
	}

	switch grantType {
	case grantTypeAuthorization:
		return e.exchangeCode(ctx, req, resp)
	case grantTypeRefresh:
		return e.refreshToken(ctx, req, resp)
	default:
		return e.writeTokenError(ctx, resp, flowAccessToken,
			ErrUnsupportedGrantType(fmt.Sprintf("grant type %q is not supported", grantType)))
	}
}

// exchangeCode runs the access-token flow: authenticate the client, consume
// the one-time code, validate the grant against the request, run extension
// hooks, and issue a token pair.
func (e *Endpoint) exchangeCode(ctx context.Context, req WebRequest, resp WebResponse) error {
	start := e.config.Now()
	defer e.observeFlow(ctx, flowAccessToken, start)

	clientID, protoErr := e.authenticateClient(ctx, req)
	if protoErr != nil {
		return e.writeTokenError(ctx, resp, flowAccessToken, protoErr)
	}

	code, ok := req.Form(paramCode)
	if !ok || code == "" {
		return e.writeTokenError(ctx, resp, flowAccessToken,
			ErrInvalidRequest("missing code"))
	}

	g, err := e.authorizer.Extract(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrCodeNotFound) {
			// Unknown, expired, and reused codes answer identically.
			if m := e.metrics(); m != nil {
				m.RecordCodeReuseDetected(ctx)
			}
			e.auditor.LogAuthFailure("", clientID, "code not extractable")
			return e.writeTokenError(ctx, resp, flowAccessToken,
				ErrInvalidGrant("authorization code is invalid"))
		}
		e.logger.Error("Extracting authorization code failed", "client_id", clientID, "error", err)
		return e.writeTokenError(ctx, resp, flowAccessToken,
			ErrServerError("code extraction failed"))
	}

	redirectURI, _ := req.Form(paramRedirectURI)
	switch {
	case g.RedirectURI == nil || redirectURI != g.RedirectURI.String():
		e.auditor.LogAuthFailure(g.OwnerID, clientID, "redirect URI mismatch at exchange")
		return e.writeTokenError(ctx, resp, flowAccessToken,
			ErrInvalidGrant("redirect_uri does not match the authorization request"))
	case g.ClientID != clientID:
		e.auditor.LogAuthFailure(g.OwnerID, clientID, "code bound to another client")
		return e.writeTokenError(ctx, resp, flowAccessToken,
			ErrInvalidGrant("authorization code is invalid"))
	case g.Expired(e.config.Now()):
		return e.writeTokenError(ctx, resp, flowAccessToken,
			ErrInvalidGrant("authorization code is invalid"))
	}

	validated, err := e.extensions.Validate(formView{req}, *g)
	if err != nil {
		var veto *extension.VetoError
		if errors.As(err, &veto) {
			e.auditor.LogAuthFailure(g.OwnerID, clientID, "extension veto: "+veto.Reason)
			return e.writeTokenError(ctx, resp, flowAccessToken,
				ErrInvalidGrant(veto.Reason))
		}
		e.logger.Error("Extension hook failed", "client_id", clientID, "error", err)
		return e.writeTokenError(ctx, resp, flowAccessToken,
			ErrServerError("extension processing failed"))
	}

	now := e.config.Now()
	tokenGrant := validated.WithUntil(now.Add(e.config.TokenTTL))
	pair, err := e.issuer.Issue(ctx, tokenGrant)
	if err != nil {
		e.logger.Error("Issuing tokens failed", "client_id", clientID, "error", err)
		return e.writeTokenError(ctx, resp, flowAccessToken,
			ErrServerError("token issuance failed"))
	}

	e.auditor.LogTokenIssued(tokenGrant.OwnerID, tokenGrant.ClientID, tokenGrant.Scope.String())
	if m := e.metrics(); m != nil {
		m.RecordTokenIssued(ctx, tokenGrant.ClientID)
	}

	return e.writeTokenResponse(resp, &TokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(pair.Until.Sub(now).Seconds()),
		RefreshToken: pair.RefreshToken,
		Scope:        tokenGrant.Scope.String(),
	})
}

// authenticateClient resolves and verifies client credentials from the HTTP
// Basic header or the form body. Credentials present in both places must
// agree (RFC 6749 Section 2.3.1 forbids using more than one method).
func (e *Endpoint) authenticateClient(ctx context.Context, req WebRequest) (string, *Error) {
	basicID, basicSecret, hasBasic, err := basicCredentials(req.Authorization())
	if err != nil {
		return "", ErrInvalidRequest("malformed Authorization header")
	}

	bodyID, hasBodyID := req.Form(paramClientID)
	bodySecret, hasBodySecret := req.Form(paramClientSecret)

	if hasBasic && (hasBodyID || hasBodySecret) {
		if (hasBodyID && bodyID != basicID) || (hasBodySecret && bodySecret != basicSecret) {
			return "", ErrInvalidRequest("conflicting client credentials")
		}
	}

	clientID, clientSecret := basicID, basicSecret
	if !hasBasic {
		clientID, clientSecret = bodyID, bodySecret
	}
	if clientID == "" {
		return "", ErrInvalidClient("client authentication required")
	}

	if err := e.registrar.Check(ctx, clientID, clientSecret); err != nil {
		e.auditor.LogAuthFailure("", clientID, "client authentication failed")
		return "", ErrInvalidClient("client authentication failed")
	}
	return clientID, nil
}

// basicCredentials parses an HTTP Basic Authorization header value.
func basicCredentials(header string) (id, secret string, present bool, err error) {
	const prefix = "Basic "
	if header == "" || !strings.HasPrefix(header, prefix) {
		return "", "", false, nil
	}
	decoded, decodeErr := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, prefix))
	if decodeErr != nil {
		return "", "", true, fmt.Errorf("decoding Basic credentials: %w", decodeErr)
	}
	id, secret, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", true, fmt.Errorf("basic credentials lack a separator")
	}
	return id, secret, true, nil
}

// writeTokenError writes a protocol error in the token endpoint's JSON wire
// format. 401 responses carry the Basic challenge per RFC 6749 Section 5.2.
func (e *Endpoint) writeTokenError(ctx context.Context, resp WebResponse, flow string, protoErr *Error) error {
	if m := e.metrics(); m != nil {
		m.RecordFlowError(ctx, flow, protoErr.Code)
	}

	if protoErr.Status == http.StatusUnauthorized {
		resp.SetHeader("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", e.config.Realm))
	}
	resp.SetHeader("Content-Type", "application/json")
	resp.SetStatus(protoErr.Status)
	return resp.WriteJSON(&ErrorResponse{
		Error:            protoErr.Code,
		ErrorDescription: protoErr.Description,
	})
}

// writeTokenResponse writes the token endpoint's JSON success body. Token
// responses must not be cached (RFC 6749 Section 5.1).
func (e *Endpoint) writeTokenResponse(resp WebResponse, tr *TokenResponse) error {
	resp.SetHeader("Content-Type", "application/json")
	resp.SetHeader("Cache-Control", "no-store")
	resp.SetHeader("Pragma", "no-cache")
	resp.SetStatus(http.StatusOK)
	return resp.WriteJSON(tr)
}
