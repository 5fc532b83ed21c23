// Package memory provides an in-memory implementation of the Registrar,
// Authorizer, and Issuer primitives. It is suitable for development, testing,
// and single-instance deployments; multi-instance deployments need a shared
// backing store instead.
package memory
