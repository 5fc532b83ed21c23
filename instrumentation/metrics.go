package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the authorization engine.
type Metrics struct {
	// Flow metrics
	AuthorizationRequests metric.Int64Counter
	CodesIssued           metric.Int64Counter
	TokensIssued          metric.Int64Counter
	TokensRefreshed       metric.Int64Counter
	SilentDenies          metric.Int64Counter
	FlowErrors            metric.Int64Counter
	FlowDuration          metric.Float64Histogram

	// Security metrics
	CodeReuseDetected metric.Int64Counter
	RateLimitExceeded metric.Int64Counter

	// Storage metrics
	StoreOperationTotal    metric.Int64Counter
	StoreOperationDuration metric.Float64Histogram
	StoreClientsCount      metric.Int64ObservableGauge
	StoreCodesCount        metric.Int64ObservableGauge
	StoreTokensCount       metric.Int64ObservableGauge
}

// newMetrics creates and registers all metric instruments.
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	flowMeter := inst.Meter("flow")
	securityMeter := inst.Meter("security")
	storageMeter := inst.Meter("storage")

	var err error
	m.AuthorizationRequests, err = flowMeter.Int64Counter(
		"oauth.authorization.requests",
		metric.WithDescription("Number of authorization requests received"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization.requests counter: %w", err)
	}

	m.CodesIssued, err = flowMeter.Int64Counter(
		"oauth.codes.issued",
		metric.WithDescription("Number of authorization codes issued"),
		metric.WithUnit("{code}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create codes.issued counter: %w", err)
	}

	m.TokensIssued, err = flowMeter.Int64Counter(
		"oauth.tokens.issued",
		metric.WithDescription("Number of access tokens issued via code exchange"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.issued counter: %w", err)
	}

	m.TokensRefreshed, err = flowMeter.Int64Counter(
		"oauth.tokens.refreshed",
		metric.WithDescription("Number of access tokens issued via refresh"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.refreshed counter: %w", err)
	}

	m.SilentDenies, err = flowMeter.Int64Counter(
		"oauth.silent_denies",
		metric.WithDescription("Number of requests denied without informing the caller"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create silent_denies counter: %w", err)
	}

	m.FlowErrors, err = flowMeter.Int64Counter(
		"oauth.flow.errors",
		metric.WithDescription("Number of protocol errors returned to clients"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow.errors counter: %w", err)
	}

	m.FlowDuration, err = flowMeter.Float64Histogram(
		"oauth.flow.duration",
		metric.WithDescription("Flow processing duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow.duration histogram: %w", err)
	}

	m.CodeReuseDetected, err = securityMeter.Int64Counter(
		"oauth.code.reuse_detected",
		metric.WithDescription("Number of authorization code reuse attempts detected"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create code.reuse_detected counter: %w", err)
	}

	m.RateLimitExceeded, err = securityMeter.Int64Counter(
		"oauth.rate_limit.exceeded",
		metric.WithDescription("Number of rate limit violations"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.exceeded counter: %w", err)
	}

	m.StoreOperationTotal, err = storageMeter.Int64Counter(
		"storage.operation.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.total counter: %w", err)
	}

	m.StoreOperationDuration, err = storageMeter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	m.StoreClientsCount, err = storageMeter.Int64ObservableGauge(
		"storage.clients.count",
		metric.WithDescription("Number of registered clients"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.clients.count gauge: %w", err)
	}

	m.StoreCodesCount, err = storageMeter.Int64ObservableGauge(
		"storage.codes.count",
		metric.WithDescription("Number of outstanding authorization codes"),
		metric.WithUnit("{code}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.codes.count gauge: %w", err)
	}

	m.StoreTokensCount, err = storageMeter.Int64ObservableGauge(
		"storage.tokens.count",
		metric.WithDescription("Number of live access tokens"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.tokens.count gauge: %w", err)
	}

	return m, nil
}

// RecordAuthorizationRequest records an incoming authorization request.
func (m *Metrics) RecordAuthorizationRequest(ctx context.Context, clientID string) {
	m.AuthorizationRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrClientID, clientID),
	))
}

// RecordCodeIssued records a successfully issued authorization code.
func (m *Metrics) RecordCodeIssued(ctx context.Context, clientID string) {
	m.CodesIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrClientID, clientID),
	))
}

// RecordTokenIssued records a successful code exchange.
func (m *Metrics) RecordTokenIssued(ctx context.Context, clientID string) {
	m.TokensIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrClientID, clientID),
	))
}

// RecordTokenRefreshed records a successful refresh.
func (m *Metrics) RecordTokenRefreshed(ctx context.Context, clientID string) {
	m.TokensRefreshed.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrClientID, clientID),
	))
}

// RecordSilentDeny records a request that was denied without response detail.
func (m *Metrics) RecordSilentDeny(ctx context.Context, flow string) {
	m.SilentDenies.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrFlow, flow),
	))
}

// RecordFlowError records a protocol error returned to a client.
func (m *Metrics) RecordFlowError(ctx context.Context, flow, errorCode string) {
	m.FlowErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrFlow, flow),
		attribute.String(AttrError, errorCode),
	))
}

// RecordFlowDuration records how long a flow took.
func (m *Metrics) RecordFlowDuration(ctx context.Context, flow string, durationMs float64) {
	m.FlowDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String(AttrFlow, flow),
	))
}

// RecordCodeReuseDetected records an authorization code reuse attempt.
func (m *Metrics) RecordCodeReuseDetected(ctx context.Context) {
	m.CodeReuseDetected.Add(ctx, 1)
}

// RecordRateLimitExceeded records a rate limit violation.
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, limiterType string) {
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrRateLimiterType, limiterType),
	))
}

// RecordStoreOperation records a storage operation.
func (m *Metrics) RecordStoreOperation(ctx context.Context, operation, result string, durationMs float64) {
	m.StoreOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrStoreOperation, operation),
		attribute.String(AttrStoreResult, result),
	))
	m.StoreOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String(AttrStoreOperation, operation),
	))
}
