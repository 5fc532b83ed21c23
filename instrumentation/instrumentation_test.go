package instrumentation

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew_Defaults(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if inst.Metrics() == nil {
		t.Error("Metrics() = nil")
	}
	if inst.Meter("flow") == nil {
		t.Error("Meter() = nil")
	}
	if inst.Tracer("flow") == nil {
		t.Error("Tracer() = nil")
	}
}

func TestNew_DisabledUsesNoopProviders(t *testing.T) {
	inst, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Recording against no-op providers must not panic.
	ctx := context.Background()
	m := inst.Metrics()
	m.RecordAuthorizationRequest(ctx, "demo")
	m.RecordCodeIssued(ctx, "demo")
	m.RecordTokenIssued(ctx, "demo")
	m.RecordTokenRefreshed(ctx, "demo")
	m.RecordSilentDeny(ctx, "authorization")
	m.RecordFlowError(ctx, "access_token", "invalid_grant")
	m.RecordFlowDuration(ctx, "authorization", 1.5)
	m.RecordCodeReuseDetected(ctx)
	m.RecordRateLimitExceeded(ctx, "token")
	m.RecordStoreOperation(ctx, "authorize", "success", 0.2)
}

func TestRegisterStoreSizeCallbacks(t *testing.T) {
	inst, err := New(Config{Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = inst.RegisterStoreSizeCallbacks(
		func() int64 { return 1 },
		func() int64 { return 2 },
		func() int64 { return 3 },
	)
	if err != nil {
		t.Fatalf("RegisterStoreSizeCallbacks() error = %v", err)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestSpanHelpers_NilSafe(t *testing.T) {
	RecordError(nil, context.Canceled)
	SetSpanSuccess(nil)
	SetSpanAttributes(nil)
	AddFlowAttributes(nil, "demo", "owner", "read")
}

func TestSpanHelpers_RecordOnSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	_, failing := tracer.Start(context.Background(), "failing")
	RecordError(failing, context.Canceled)
	failing.End()

	_, succeeding := tracer.Start(context.Background(), "succeeding")
	AddFlowAttributes(succeeding, "demo", "owner", "read write")
	SetSpanSuccess(succeeding)
	succeeding.End()

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}

	if spans[0].Status().Code != codes.Error {
		t.Errorf("failing span status = %v, want Error", spans[0].Status().Code)
	}
	if len(spans[0].Events()) == 0 {
		t.Error("failing span recorded no error event")
	}

	if spans[1].Status().Code != codes.Ok {
		t.Errorf("succeeding span status = %v, want Ok", spans[1].Status().Code)
	}
	attrs := attribute.NewSet(spans[1].Attributes()...)
	for key, want := range map[string]string{
		AttrClientID: "demo",
		AttrOwnerID:  "owner",
		AttrScope:    "read write",
	} {
		if v, ok := attrs.Value(attribute.Key(key)); !ok || v.AsString() != want {
			t.Errorf("attribute %s = %v, %v, want %q", key, v, ok, want)
		}
	}
}

func TestAddFlowAttributes_SkipsEmptyValues(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	_, span := tracer.Start(context.Background(), "sparse")
	AddFlowAttributes(span, "demo", "", "")
	span.End()

	attrs := attribute.NewSet(recorder.Ended()[0].Attributes()...)
	if _, ok := attrs.Value(attribute.Key(AttrOwnerID)); ok {
		t.Error("empty owner ID recorded as attribute")
	}
	if _, ok := attrs.Value(attribute.Key(AttrScope)); ok {
		t.Error("empty scope recorded as attribute")
	}
	if v, ok := attrs.Value(attribute.Key(AttrClientID)); !ok || v.AsString() != "demo" {
		t.Errorf("client_id attribute = %v, %v, want demo", v, ok)
	}
}
