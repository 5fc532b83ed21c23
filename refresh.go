package grantway

import (
	"context"
	"errors"

	"github.com/grantway/grantway/scope"
	"github.com/grantway/grantway/storage"
)

// refreshToken runs the refresh flow: authenticate the client, recover the
// grant behind the refresh token, apply the narrowing-only scope rule, and
// rotate the pair.
func (e *Endpoint) refreshToken(ctx context.Context, req WebRequest, resp WebResponse) error {
	start := e.config.Now()
	defer e.observeFlow(ctx, flowRefresh, start)

	clientID, protoErr := e.authenticateClient(ctx, req)
	if protoErr != nil {
		return e.writeTokenError(ctx, resp, flowRefresh, protoErr)
	}

	token, ok := req.Form(paramRefreshToken)
	if !ok || token == "" {
		return e.writeTokenError(ctx, resp, flowRefresh,
			ErrInvalidRequest("missing refresh_token"))
	}

	g, err := e.issuer.RecoverRefresh(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			e.auditor.LogAuthFailure("", clientID, "refresh token not recoverable")
			return e.writeTokenError(ctx, resp, flowRefresh,
				ErrInvalidGrant("refresh token is invalid"))
		}
		e.logger.Error("Recovering refresh token failed", "client_id", clientID, "error", err)
		return e.writeTokenError(ctx, resp, flowRefresh,
			ErrServerError("refresh token lookup failed"))
	}

	if g.ClientID != clientID {
		e.auditor.LogAuthFailure(g.OwnerID, clientID, "refresh token bound to another client")
		return e.writeTokenError(ctx, resp, flowRefresh,
			ErrInvalidGrant("refresh token is invalid"))
	}

	// An explicit scope parameter narrows the grant; an empty value narrows
	// it to nothing. Absence keeps the original scope.
	effective := g.Scope
	if raw, ok := req.Form(paramScope); ok {
		sc, err := scope.Parse(raw)
		if err != nil {
			return e.writeTokenError(ctx, resp, flowRefresh,
				ErrInvalidScope("malformed scope"))
		}
		effective = sc
	}

	now := e.config.Now()
	next := g.WithScope(effective).WithUntil(now.Add(e.config.TokenTTL))

	pair, err := e.issuer.Refresh(ctx, token, next)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrTokenNotFound):
			return e.writeTokenError(ctx, resp, flowRefresh,
				ErrInvalidGrant("refresh token is invalid"))
		case errors.Is(err, storage.ErrScopeExceeded):
			return e.writeTokenError(ctx, resp, flowRefresh,
				ErrInvalidScope("scope may only narrow on refresh"))
		default:
			e.logger.Error("Rotating tokens failed", "client_id", clientID, "error", err)
			return e.writeTokenError(ctx, resp, flowRefresh,
				ErrServerError("token rotation failed"))
		}
	}

	e.auditor.LogTokenRefreshed(next.OwnerID, next.ClientID, next.Scope.String())
	if m := e.metrics(); m != nil {
		m.RecordTokenRefreshed(ctx, next.ClientID)
	}

	return e.writeTokenResponse(resp, &TokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(pair.Until.Sub(now).Seconds()),
		RefreshToken: pair.RefreshToken,
		Scope:        next.Scope.String(),
	})
}
