package grantway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/grantway/grantway/extension"
	"github.com/grantway/grantway/instrumentation"
	"github.com/grantway/grantway/security"
	"github.com/grantway/grantway/storage"
)

// Endpoint is the composition root: it holds the pluggable primitives the
// flows are generic over. Flows never share state except through these
// references, so one Endpoint safely serves many concurrent requests.
type Endpoint struct {
	registrar  storage.Registrar
	authorizer storage.Authorizer
	issuer     storage.Issuer
	extensions *extension.System
	consent    ConsentSolicitor

	config  Config
	logger  *slog.Logger
	auditor *security.Auditor
	inst    *instrumentation.Instrumentation
}

// EndpointOptions assembles an Endpoint. Registrar, Authorizer, Issuer, and
// Consent are required; the rest is optional.
type EndpointOptions struct {
	Registrar  storage.Registrar
	Authorizer storage.Authorizer
	Issuer     storage.Issuer
	Consent    ConsentSolicitor

	// Extensions is the ordered hook system. Nil runs no hooks.
	Extensions *extension.System

	// Instrumentation enables OpenTelemetry metrics and traces.
	Instrumentation *instrumentation.Instrumentation

	Config Config
}

// NewEndpoint validates the options and builds an Endpoint.
func NewEndpoint(opts EndpointOptions) (*Endpoint, error) {
	if opts.Registrar == nil {
		return nil, fmt.Errorf("endpoint needs a registrar")
	}
	if opts.Authorizer == nil {
		return nil, fmt.Errorf("endpoint needs an authorizer")
	}
	if opts.Issuer == nil {
		return nil, fmt.Errorf("endpoint needs an issuer")
	}
	if opts.Consent == nil {
		return nil, fmt.Errorf("endpoint needs a consent solicitor")
	}

	cfg := opts.Config
	cfg.applyDefaults()

	return &Endpoint{
		registrar:  opts.Registrar,
		authorizer: opts.Authorizer,
		issuer:     opts.Issuer,
		extensions: opts.Extensions,
		consent:    opts.Consent,
		config:     cfg,
		logger:     cfg.Logger,
		auditor:    security.NewAuditor(cfg.Logger, cfg.AuditEnabled),
		inst:       opts.Instrumentation,
	}, nil
}

// Registrar returns the client registry primitive.
func (e *Endpoint) Registrar() storage.Registrar { return e.registrar }

// Authorizer returns the one-time code store primitive.
func (e *Endpoint) Authorizer() storage.Authorizer { return e.authorizer }

// Issuer returns the token issuer primitive.
func (e *Endpoint) Issuer() storage.Issuer { return e.issuer }

// Extensions returns the hook system. May be nil.
func (e *Endpoint) Extensions() *extension.System { return e.extensions }

// metrics returns the metrics holder, or nil when uninstrumented.
func (e *Endpoint) metrics() *instrumentation.Metrics {
	if e.inst == nil {
		return nil
	}
	return e.inst.Metrics()
}

// observeFlow records a flow's duration when instrumented.
func (e *Endpoint) observeFlow(ctx context.Context, flow string, start time.Time) {
	if m := e.metrics(); m != nil {
		m.RecordFlowDuration(ctx, flow, float64(time.Since(start).Microseconds())/1000.0)
	}
}
