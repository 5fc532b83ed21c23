// Package instrumentation provides OpenTelemetry metrics and tracing for the
// authorization engine. When disabled it falls back to no-op providers so the
// engine carries no observability overhead.
package instrumentation
