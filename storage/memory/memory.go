package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/crypto/bcrypt"

	"github.com/grantway/grantway/grant"
	"github.com/grantway/grantway/instrumentation"
	"github.com/grantway/grantway/scope"
	"github.com/grantway/grantway/security"
	"github.com/grantway/grantway/storage"
)

const (
	// defaultCleanupInterval is how often expired codes and tokens are swept.
	defaultCleanupInterval = time.Minute

	// maxGenerateAttempts bounds tag regeneration on collision. With 256-bit
	// random tags a collision is effectively impossible; the bound exists so
	// a broken generator fails loudly instead of looping.
	maxGenerateAttempts = 3
)

// codeRecord is an outstanding one-time authorization code.
type codeRecord struct {
	grant grant.Grant
}

// accessRecord is a live access token.
type accessRecord struct {
	grant grant.Grant
}

// refreshRecord is a live refresh token. Each refresh token remembers the
// access token it was issued alongside so rotation can revoke the pair.
type refreshRecord struct {
	grant  grant.Grant
	access string
}

// Store is an in-memory implementation of the Registrar, Authorizer, and
// Issuer primitives.
type Store struct {
	mu sync.RWMutex

	clients map[string]*storage.Client
	codes   map[string]*codeRecord
	access  map[string]*accessRecord
	refresh map[string]*refreshRecord

	tokens storage.TokenGenerator

	// retainAccess leaves the old access token alive when its refresh token
	// is rotated. Default is to revoke it with the rotation.
	retainAccess bool

	// now comes from Options.Now and is fixed before the cleanup goroutine
	// starts.
	now func() time.Time

	inst   *instrumentation.Instrumentation
	tracer trace.Tracer

	clientsCountAtomic atomic.Int64
	codesCountAtomic   atomic.Int64
	tokensCountAtomic  atomic.Int64

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

var (
	_ storage.Registrar  = (*Store)(nil)
	_ storage.Authorizer = (*Store)(nil)
	_ storage.Issuer     = (*Store)(nil)
)

// Options configures a Store. The zero value is usable.
type Options struct {
	// Tokens generates code and token tags. Defaults to random 256-bit tags.
	Tokens storage.TokenGenerator

	// CleanupInterval is how often expired entries are swept. Zero or
	// negative uses the default of one minute.
	CleanupInterval time.Duration

	// RetainAccessOnRefresh leaves the previous access token valid after its
	// refresh token is used. The default revokes it together with the
	// rotated refresh token.
	RetainAccessOnRefresh bool

	// Logger receives sweep diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// Now overrides the time source, mostly for expiry tests. It must be
	// safe for concurrent use; the cleanup goroutine calls it. Defaults to
	// time.Now.
	Now func() time.Time
}

// New creates an in-memory store with default options and starts its cleanup
// goroutine. Call Stop when done.
func New() *Store {
	return NewWithOptions(Options{})
}

// NewWithOptions creates an in-memory store and starts its cleanup goroutine.
func NewWithOptions(opts Options) *Store {
	if opts.Tokens == nil {
		opts.Tokens = security.NewRandomTokens()
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Store{
		clients:         make(map[string]*storage.Client),
		codes:           make(map[string]*codeRecord),
		access:          make(map[string]*accessRecord),
		refresh:         make(map[string]*refreshRecord),
		tokens:          opts.Tokens,
		retainAccess:    opts.RetainAccessOnRefresh,
		now:             opts.Now,
		tracer:          tracenoop.NewTracerProvider().Tracer("memory"),
		cleanupInterval: opts.CleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          opts.Logger,
	}

	go s.cleanupLoop()

	return s
}

// SetInstrumentation wires OpenTelemetry instrumentation into the store.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) error {
	s.inst = inst
	s.tracer = inst.Tracer("storage")
	return inst.RegisterStoreSizeCallbacks(
		s.clientsCountAtomic.Load,
		s.codesCountAtomic.Load,
		s.tokensCountAtomic.Load,
	)
}

// Stop terminates the cleanup goroutine. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// RegisterClient adds a client to the registry. An empty ClientID is filled
// with a fresh UUID. Confidential clients get their secret bcrypt-hashed;
// the plaintext is never stored.
func (s *Store) RegisterClient(ctx context.Context, c storage.Client, secret string) (*storage.Client, error) {
	if c.ClientID == "" {
		c.ClientID = uuid.NewString()
	}
	if len(c.RedirectURIs) == 0 {
		return nil, fmt.Errorf("client %s has no redirect URIs", c.ClientID)
	}
	if c.Confidential {
		if secret == "" {
			return nil, fmt.Errorf("confidential client %s needs a secret", c.ClientID)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing client secret: %w", err)
		}
		c.SecretHash = hash
	} else if secret != "" {
		return nil, fmt.Errorf("public client %s must not carry a secret", c.ClientID)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[c.ClientID]; exists {
		return nil, fmt.Errorf("client %s already registered", c.ClientID)
	}
	s.clients[c.ClientID] = &c
	s.clientsCountAtomic.Store(int64(len(s.clients)))

	return &c, nil
}

// BoundRedirect implements storage.Registrar.
func (s *Store) BoundRedirect(ctx context.Context, clientID, redirectURI string) (*storage.BoundClient, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "memory.BoundRedirect",
		trace.WithAttributes(attribute.String(instrumentation.AttrClientID, clientID)))
	defer span.End()

	s.mu.RLock()
	client, ok := s.clients[clientID]
	s.mu.RUnlock()

	if !ok {
		s.recordOp(ctx, span, "bound_redirect", "unregistered", start, storage.ErrUnregistered)
		return nil, storage.ErrUnregistered
	}

	if redirectURI == "" {
		if len(client.RedirectURIs) != 1 {
			s.recordOp(ctx, span, "bound_redirect", "mismatch", start, storage.ErrRedirectMismatch)
			return nil, storage.ErrRedirectMismatch
		}
		s.recordOp(ctx, span, "bound_redirect", "success", start, nil)
		return &storage.BoundClient{ClientID: clientID, RedirectURI: client.RedirectURIs[0]}, nil
	}

	// RFC 6749 Section 3.1.2.3: exact string match only.
	for _, registered := range client.RedirectURIs {
		if registered == redirectURI {
			s.recordOp(ctx, span, "bound_redirect", "success", start, nil)
			return &storage.BoundClient{ClientID: clientID, RedirectURI: redirectURI}, nil
		}
	}

	s.recordOp(ctx, span, "bound_redirect", "mismatch", start, storage.ErrRedirectMismatch)
	return nil, storage.ErrRedirectMismatch
}

// Negotiate implements storage.Registrar.
func (s *Store) Negotiate(ctx context.Context, bound *storage.BoundClient, requested *scope.Scope) (*storage.PreGrant, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "memory.Negotiate",
		trace.WithAttributes(attribute.String(instrumentation.AttrClientID, bound.ClientID)))
	defer span.End()

	s.mu.RLock()
	client, ok := s.clients[bound.ClientID]
	s.mu.RUnlock()

	if !ok {
		s.recordOp(ctx, span, "negotiate", "unregistered", start, storage.ErrUnregistered)
		return nil, storage.ErrUnregistered
	}

	if requested == nil {
		s.recordOp(ctx, span, "negotiate", "success", start, nil)
		return &storage.PreGrant{
			ClientID:    bound.ClientID,
			RedirectURI: bound.RedirectURI,
			Scope:       client.DefaultScope,
		}, nil
	}

	// Requesting more than allowed is an error, never silent truncation.
	if !requested.IsSubsetOf(client.AllowedScope) {
		s.recordOp(ctx, span, "negotiate", "scope_exceeded", start, storage.ErrScopeExceeded)
		return nil, storage.ErrScopeExceeded
	}

	s.recordOp(ctx, span, "negotiate", "success", start, nil)
	return &storage.PreGrant{
		ClientID:    bound.ClientID,
		RedirectURI: bound.RedirectURI,
		Scope:       *requested,
	}, nil
}

// Check implements storage.Registrar. All failure modes collapse into
// ErrUnauthorizedClient so authentication cannot probe client existence.
func (s *Store) Check(ctx context.Context, clientID, clientSecret string) error {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "memory.Check",
		trace.WithAttributes(attribute.String(instrumentation.AttrClientID, clientID)))
	defer span.End()

	s.mu.RLock()
	client, ok := s.clients[clientID]
	s.mu.RUnlock()

	if !ok {
		s.recordOp(ctx, span, "check", "failure", start, storage.ErrUnauthorizedClient)
		return storage.ErrUnauthorizedClient
	}

	if !client.Confidential {
		// Public clients authenticate with no secret. Presenting one is a
		// misconfigured client, not a weaker form of success.
		if clientSecret != "" {
			s.recordOp(ctx, span, "check", "failure", start, storage.ErrUnauthorizedClient)
			return storage.ErrUnauthorizedClient
		}
		s.recordOp(ctx, span, "check", "success", start, nil)
		return nil
	}

	if err := bcrypt.CompareHashAndPassword(client.SecretHash, []byte(clientSecret)); err != nil {
		s.recordOp(ctx, span, "check", "failure", start, storage.ErrUnauthorizedClient)
		return storage.ErrUnauthorizedClient
	}

	s.recordOp(ctx, span, "check", "success", start, nil)
	return nil
}

// Authorize implements storage.Authorizer.
func (s *Store) Authorize(ctx context.Context, g grant.Grant) (string, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "memory.Authorize")
	defer span.End()
	instrumentation.AddFlowAttributes(span, g.ClientID, g.OwnerID, g.Scope.String())

	s.mu.Lock()
	defer s.mu.Unlock()

	code, err := s.freshTag(&g, func(tag string) bool {
		_, taken := s.codes[tag]
		return taken
	})
	if err != nil {
		s.recordOp(ctx, span, "authorize", "error", start, err)
		return "", err
	}

	s.codes[code] = &codeRecord{grant: g}
	s.codesCountAtomic.Store(int64(len(s.codes)))

	s.recordOp(ctx, span, "authorize", "success", start, nil)
	return code, nil
}

// Extract implements storage.Authorizer. The lookup and delete happen under
// one write lock, so concurrent extraction of the same code resolves to
// exactly one winner.
func (s *Store) Extract(ctx context.Context, code string) (*grant.Grant, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "memory.Extract")
	defer span.End()

	s.mu.Lock()
	rec, ok := s.codes[code]
	if ok {
		delete(s.codes, code)
		s.codesCountAtomic.Store(int64(len(s.codes)))
	}
	s.mu.Unlock()

	// Unknown, consumed, and expired codes are indistinguishable.
	if !ok || rec.grant.Expired(s.now()) {
		s.recordOp(ctx, span, "extract", "not_found", start, storage.ErrCodeNotFound)
		return nil, storage.ErrCodeNotFound
	}

	s.recordOp(ctx, span, "extract", "success", start, nil)
	g := rec.grant
	return &g, nil
}

// Issue implements storage.Issuer.
func (s *Store) Issue(ctx context.Context, g grant.Grant) (*storage.TokenPair, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "memory.Issue")
	defer span.End()
	instrumentation.AddFlowAttributes(span, g.ClientID, g.OwnerID, g.Scope.String())

	s.mu.Lock()
	defer s.mu.Unlock()

	pair, err := s.issueLocked(g)
	if err != nil {
		s.recordOp(ctx, span, "issue", "error", start, err)
		return nil, err
	}

	s.recordOp(ctx, span, "issue", "success", start, nil)
	return pair, nil
}

// issueLocked creates a fresh token pair for g. Caller holds the write lock.
func (s *Store) issueLocked(g grant.Grant) (*storage.TokenPair, error) {
	accessToken, err := s.freshTag(&g, func(tag string) bool {
		_, taken := s.access[tag]
		return taken
	})
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.freshTag(&g, func(tag string) bool {
		if tag == accessToken {
			return true
		}
		_, taken := s.refresh[tag]
		return taken
	})
	if err != nil {
		return nil, err
	}

	s.access[accessToken] = &accessRecord{grant: g}
	s.refresh[refreshToken] = &refreshRecord{grant: g, access: accessToken}
	s.tokensCountAtomic.Store(int64(len(s.access)))

	return &storage.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Until:        g.Until,
	}, nil
}

// Refresh implements storage.Issuer. The old pair is consumed and a new one
// issued atomically.
func (s *Store) Refresh(ctx context.Context, refreshToken string, g grant.Grant) (*storage.TokenPair, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "memory.Refresh")
	defer span.End()
	instrumentation.AddFlowAttributes(span, g.ClientID, g.OwnerID, g.Scope.String())

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.refresh[refreshToken]
	if !ok || rec.grant.Expired(s.now()) {
		s.recordOp(ctx, span, "refresh", "not_found", start, storage.ErrTokenNotFound)
		return nil, storage.ErrTokenNotFound
	}

	// Scope may only narrow across a refresh.
	if !g.Scope.IsSubsetOf(rec.grant.Scope) {
		s.recordOp(ctx, span, "refresh", "scope_exceeded", start, storage.ErrScopeExceeded)
		return nil, storage.ErrScopeExceeded
	}

	delete(s.refresh, refreshToken)
	if !s.retainAccess {
		delete(s.access, rec.access)
	}

	pair, err := s.issueLocked(g)
	if err != nil {
		s.recordOp(ctx, span, "refresh", "error", start, err)
		return nil, err
	}
	s.tokensCountAtomic.Store(int64(len(s.access)))

	s.recordOp(ctx, span, "refresh", "success", start, nil)
	return pair, nil
}

// RecoverAccess implements storage.Issuer.
func (s *Store) RecoverAccess(ctx context.Context, accessToken string) (*grant.Grant, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "memory.RecoverAccess")
	defer span.End()

	s.mu.RLock()
	rec, ok := s.access[accessToken]
	s.mu.RUnlock()

	if !ok || rec.grant.Expired(s.now()) {
		s.recordOp(ctx, span, "recover_access", "not_found", start, storage.ErrTokenNotFound)
		return nil, storage.ErrTokenNotFound
	}

	s.recordOp(ctx, span, "recover_access", "success", start, nil)
	g := rec.grant
	return &g, nil
}

// RecoverRefresh implements storage.Issuer.
func (s *Store) RecoverRefresh(ctx context.Context, refreshToken string) (*grant.Grant, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "memory.RecoverRefresh")
	defer span.End()

	s.mu.RLock()
	rec, ok := s.refresh[refreshToken]
	s.mu.RUnlock()

	if !ok || rec.grant.Expired(s.now()) {
		s.recordOp(ctx, span, "recover_refresh", "not_found", start, storage.ErrTokenNotFound)
		return nil, storage.ErrTokenNotFound
	}

	s.recordOp(ctx, span, "recover_refresh", "success", start, nil)
	g := rec.grant
	return &g, nil
}

// freshTag generates a tag that is not currently taken. Caller holds the
// write lock for the relevant map.
func (s *Store) freshTag(g *grant.Grant, taken func(string) bool) (string, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		tag, err := s.tokens.Generate(g)
		if err != nil {
			return "", fmt.Errorf("generating tag: %w", err)
		}
		if !taken(tag) {
			return tag, nil
		}
	}
	return "", fmt.Errorf("tag generator produced %d collisions in a row", maxGenerateAttempts)
}

// recordOp finalizes an operation's span status and emits a storage metric
// when instrumentation is wired.
func (s *Store) recordOp(ctx context.Context, span trace.Span, operation, result string, start time.Time, err error) {
	if err != nil {
		instrumentation.RecordError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	if s.inst == nil {
		return
	}
	durationMs := float64(s.now().Sub(start).Microseconds()) / 1000.0
	s.inst.Metrics().RecordStoreOperation(ctx, operation, result, durationMs)
}

// cleanupLoop periodically sweeps expired codes and tokens.
func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanupExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanupExpired removes every expired code and token.
func (s *Store) cleanupExpired() {
	now := s.now()
	removed := 0

	s.mu.Lock()
	for code, rec := range s.codes {
		if rec.grant.Expired(now) {
			delete(s.codes, code)
			removed++
		}
	}
	for token, rec := range s.access {
		if rec.grant.Expired(now) {
			delete(s.access, token)
			removed++
		}
	}
	for token, rec := range s.refresh {
		if rec.grant.Expired(now) {
			delete(s.refresh, token)
			removed++
		}
	}
	s.codesCountAtomic.Store(int64(len(s.codes)))
	s.tokensCountAtomic.Store(int64(len(s.access)))
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Debug("Cleaned up expired entries", "count", removed)
	}
}
