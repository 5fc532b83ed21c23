// Package grantway is an embeddable OAuth2 authorization-server engine
// implementing the RFC 6749 code-grant family: authorization code issuance,
// access-token exchange, token refresh, and Bearer resource guarding.
//
// The engine is a protocol state machine decoupled from transport and
// storage. Host applications compose an Endpoint from four pluggable
// primitives (storage.Registrar, storage.Authorizer, storage.Issuer,
// storage.TokenGenerator), a consent solicitor, and an optional extension
// system, then drive it either through the WebRequest/WebResponse adapter
// contracts or through the bundled net/http Handler.
package grantway
