package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
//
// Never put credential values (codes, tokens, secrets) in span attributes.
// Only metadata such as client IDs, scope strings, and error codes is safe.
const (
	AttrClientID = "oauth.client_id"
	AttrOwnerID  = "oauth.owner_id"
	AttrScope    = "oauth.scope"
	AttrFlow     = "oauth.flow"
	AttrError    = "oauth.error"

	AttrStoreOperation = "storage.operation"
	AttrStoreResult    = "storage.result"

	AttrRateLimiterType = "security.rate_limiter.type"
)

// RecordError records an error on a span with an error status (nil-safe).
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe).
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe).
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddFlowAttributes adds common flow attributes to a span (nil-safe).
func AddFlowAttributes(span trace.Span, clientID, ownerID, scope string) {
	if clientID != "" {
		SetSpanAttributes(span, attribute.String(AttrClientID, clientID))
	}
	if ownerID != "" {
		SetSpanAttributes(span, attribute.String(AttrOwnerID, ownerID))
	}
	if scope != "" {
		SetSpanAttributes(span, attribute.String(AttrScope, scope))
	}
}
