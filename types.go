package grantway

import (
	"time"

	"golang.org/x/oauth2"
)

// Wire-level parameter and header names (RFC 6749 Sections 4.1 and 5.1,
// RFC 6750 Section 2.1).
const (
	paramResponseType = "response_type"
	paramClientID     = "client_id"
	paramClientSecret = "client_secret"
	paramRedirectURI  = "redirect_uri"
	paramScope        = "scope"
	paramState        = "state"
	paramCode         = "code"
	paramGrantType    = "grant_type"
	paramRefreshToken = "refresh_token"
	paramError        = "error"
	paramErrorDesc    = "error_description"

	responseTypeCode       = "code"
	grantTypeAuthorization = "authorization_code"
	grantTypeRefresh       = "refresh_token"

	// TokenTypeBearer is the only token type the engine issues.
	TokenTypeBearer = "Bearer"
)

// TokenResponse is the JSON success body of the token endpoint
// (RFC 6749 Section 5.1).
type TokenResponse struct {
	// AccessToken is the issued access token.
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// RefreshToken rotates the grant without owner interaction.
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the effective scope of the grant.
	Scope string `json:"scope,omitempty"`
}

// Token converts the response into an x/oauth2 token so host applications
// can hand it to standard oauth2 machinery.
func (r *TokenResponse) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  r.AccessToken,
		TokenType:    r.TokenType,
		RefreshToken: r.RefreshToken,
	}
	if r.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return tok
}

// ErrorResponse is the JSON error body of the token endpoint
// (RFC 6749 Section 5.2).
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// ErrorDescription provides additional information.
	ErrorDescription string `json:"error_description,omitempty"`
}
