// Package memory provides an in-memory implementation of all storage interfaces.
// It is suitable for development, testing, and single-instance deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/threatgate/threatgate/instrumentation"
	"github.com/threatgate/threatgate/internal/util"
	"github.com/threatgate/threatgate/security"
	"github.com/threatgate/threatgate/storage"
)

const (
	// tokenIDLogLength is the number of characters to include when logging token values.
	// This provides enough uniqueness for debugging while keeping logs secure.
	tokenIDLogLength = 8
)

// Store is an in-memory implementation of all storage interfaces.
// It implements ClientStore, FlowStore, and TokenStore.
type Store struct {
	mu sync.RWMutex

	// Client storage
	clients      map[string]*storage.Client
	clientsPerIP map[string]int // IP address -> client count (for DoS protection)

	// Flow storage
	sessions  map[string]*storage.AuthorizationSession
	authCodes map[string]*storage.AuthorizationCode

	// Token storage
	accessTokens map[string]*storage.AccessToken

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	// Atomic counters for metrics (lock-free access during metric collection)
	clientsCountAtomic  atomic.Int64
	sessionsCountAtomic atomic.Int64
	codesCountAtomic    atomic.Int64
	tokensCountAtomic   atomic.Int64

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	logger          *slog.Logger
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.ClientStore = (*Store)(nil)
	_ storage.FlowStore   = (*Store)(nil)
	_ storage.TokenStore  = (*Store)(nil)
)

// New creates a new in-memory store with default cleanup interval (1 minute)
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with custom cleanup interval.
// If cleanupInterval is 0 or negative, uses default of 1 minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		clients:         make(map[string]*storage.Client),
		clientsPerIP:    make(map[string]int),
		sessions:        make(map[string]*storage.AuthorizationSession),
		authCodes:       make(map[string]*storage.AuthorizationCode),
		accessTokens:    make(map[string]*storage.AccessToken),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	// Start background cleanup
	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}

	// Initialize atomic counters with current counts
	s.clientsCountAtomic.Store(int64(len(s.clients)))
	s.sessionsCountAtomic.Store(int64(len(s.sessions)))
	s.codesCountAtomic.Store(int64(len(s.authCodes)))
	s.tokensCountAtomic.Store(int64(len(s.accessTokens)))
	s.mu.Unlock()

	if inst != nil {
		// Register storage size callbacks using atomic counters (lock-free).
		// These provide real-time visibility into store growth for capacity
		// planning and abuse detection.
		err := inst.RegisterStorageSizeCallbacks(
			func() int64 { return s.clientsCountAtomic.Load() },
			func() int64 { return s.sessionsCountAtomic.Load() },
			func() int64 { return s.codesCountAtomic.Load() },
			func() int64 { return s.tokensCountAtomic.Load() },
		)
		if err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Stop gracefully stops the cleanup goroutine
func (s *Store) Stop() {
	close(s.stopCleanup)
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient saves a registered client
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	ctx, span := s.startStorageSpan(ctx, "save_client")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_client", err, startTime)
	}()

	if client == nil || client.ClientID == "" {
		err = fmt.Errorf("invalid client")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.clients[client.ClientID]

	s.clients[client.ClientID] = client

	if !existed {
		s.clientsCountAtomic.Add(1)
	}

	s.logger.Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_client", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		err = fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
		return nil, err
	}

	clientCopy := *client
	return &clientCopy, nil
}

// ListClients lists all registered clients
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]*storage.Client, 0, len(s.clients))
	for _, client := range s.clients {
		clientCopy := *client
		clients = append(clients, &clientCopy)
	}
	return clients, nil
}

// CheckIPLimit checks if an IP has reached the client registration limit
func (s *Store) CheckIPLimit(ctx context.Context, ip string, maxClientsPerIP int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if maxClientsPerIP <= 0 {
		return nil // No limit
	}

	count := s.clientsPerIP[ip]
	if count >= maxClientsPerIP {
		return fmt.Errorf("client registration limit reached for IP %s (%d/%d clients)", ip, count, maxClientsPerIP)
	}

	return nil
}

// TrackClientIP increments the client count for an IP address
func (s *Store) TrackClientIP(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientsPerIP[ip]++
}

// ============================================================
// FlowStore Implementation
// ============================================================

// SaveSession saves the state of an in-flight authorization request
func (s *Store) SaveSession(ctx context.Context, session *storage.AuthorizationSession) error {
	ctx, span := s.startStorageSpan(ctx, "save_session")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_session", err, startTime)
	}()

	if session == nil || session.SessionID == "" {
		err = fmt.Errorf("invalid session")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.sessions[session.SessionID]

	s.sessions[session.SessionID] = session

	if !existed {
		s.sessionsCountAtomic.Add(1)
	}

	s.logger.Debug("Saved authorization session",
		"session_prefix", util.SafeTruncate(session.SessionID, tokenIDLogLength),
		"client_id", session.ClientID)
	return nil
}

// GetSession retrieves a session by its server-generated ID
func (s *Store) GetSession(ctx context.Context, sessionID string) (*storage.AuthorizationSession, error) {
	ctx, span := s.startStorageSpan(ctx, "get_session")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_session", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		err = storage.ErrSessionNotFound
		return nil, err
	}

	if security.IsTokenExpired(session.ExpiresAt) {
		err = fmt.Errorf("%w: session expired", storage.ErrSessionNotFound)
		return nil, err
	}

	sessionCopy := *session
	return &sessionCopy, nil
}

// DeleteSession removes a session
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; ok {
		delete(s.sessions, sessionID)
		s.sessionsCountAtomic.Add(-1)
	}
	s.logger.Debug("Deleted authorization session",
		"session_prefix", util.SafeTruncate(sessionID, tokenIDLogLength))
	return nil
}

// SaveAuthorizationCode saves an issued authorization code
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	ctx, span := s.startStorageSpan(ctx, "save_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_authorization_code", err, startTime)
	}()

	if code == nil || code.Code == "" {
		err = fmt.Errorf("invalid authorization code")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.authCodes[code.Code]

	s.authCodes[code.Code] = code

	if !existed {
		s.codesCountAtomic.Add(1)
	}

	s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength),
		"client_id", code.ClientID)
	return nil
}

// GetAuthorizationCode retrieves an authorization code without consuming it
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	ctx, span := s.startStorageSpan(ctx, "get_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_authorization_code", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	authCode, ok := s.authCodes[code]
	if !ok {
		err = storage.ErrCodeNotFound
		return nil, err
	}

	codeCopy := *authCode
	return &codeCopy, nil
}

// RedeemAuthorizationCode atomically redeems an authorization code.
//
// The entire sequence runs under the write lock: lookup, expiry check, reuse
// check, the caller's validate function, and the used=true write. Of any
// number of concurrent attempts presenting the same code, at most one can
// observe Used=false and all later attempts fail with ErrCodeUsed.
//
// The validate function receives a copy of the stored code; if it returns an
// error the code is left unused so the error reported to the caller reflects
// the request, not the race.
func (s *Store) RedeemAuthorizationCode(ctx context.Context, code string, validate func(*storage.AuthorizationCode) error) (*storage.AuthorizationCode, error) {
	ctx, span := s.startStorageSpan(ctx, "redeem_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "redeem_authorization_code", err, startTime)
	}()

	s.mu.Lock() // MUST use write lock for atomic check-and-set
	defer s.mu.Unlock()

	authCode, ok := s.authCodes[code]
	if !ok {
		err = storage.ErrCodeNotFound
		return nil, err
	}

	if time.Now().After(authCode.ExpiresAt) {
		err = storage.ErrCodeExpired
		return nil, err
	}

	if authCode.Used {
		err = storage.ErrCodeUsed
		return nil, err
	}

	if validate != nil {
		codeCopy := *authCode
		if err = validate(&codeCopy); err != nil {
			// Binding or PKCE failure: leave the code unused. The code stays
			// in the store either way; rejected codes expire naturally.
			return nil, err
		}
	}

	authCode.Used = true
	s.logger.Debug("Redeemed authorization code",
		"code_prefix", util.SafeTruncate(code, tokenIDLogLength))

	codeCopy := *authCode
	return &codeCopy, nil
}

// DeleteAuthorizationCode removes an authorization code
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.authCodes[code]; ok {
		delete(s.authCodes, code)
		s.codesCountAtomic.Add(-1)
	}
	s.logger.Debug("Deleted authorization code")
	return nil
}

// ============================================================
// TokenStore Implementation
// ============================================================

// SaveAccessToken saves an issued access token
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) error {
	ctx, span := s.startStorageSpan(ctx, "save_access_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_access_token", err, startTime)
	}()

	if token == nil || token.Token == "" {
		err = fmt.Errorf("invalid access token")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.accessTokens[token.Token]

	s.accessTokens[token.Token] = token

	if !existed {
		s.tokensCountAtomic.Add(1)
	}

	s.logger.Debug("Saved access token",
		"token_prefix", util.SafeTruncate(token.Token, tokenIDLogLength),
		"client_id", token.ClientID)
	return nil
}

// GetAccessToken retrieves an access token by value. Expiry is lazy and
// strict: a token past its ExpiresAt, even by a second, is deleted during
// the lookup and ErrTokenExpired is returned.
func (s *Store) GetAccessToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	ctx, span := s.startStorageSpan(ctx, "get_access_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_access_token", err, startTime)
	}()

	s.mu.Lock() // write lock: expired tokens are pruned during lookup
	defer s.mu.Unlock()

	accessToken, ok := s.accessTokens[token]
	if !ok {
		err = storage.ErrTokenNotFound
		return nil, err
	}

	if time.Now().After(accessToken.ExpiresAt) {
		delete(s.accessTokens, token)
		s.tokensCountAtomic.Add(-1)
		s.logger.Debug("Pruned expired access token",
			"token_prefix", util.SafeTruncate(token, tokenIDLogLength))
		err = storage.ErrTokenExpired
		return nil, err
	}

	tokenCopy := *accessToken
	return &tokenCopy, nil
}

// DeleteAccessToken removes an access token
func (s *Store) DeleteAccessToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accessTokens[token]; ok {
		delete(s.accessTokens, token)
		s.tokensCountAtomic.Add(-1)
	}
	return nil
}

// CountAccessTokens returns the number of stored tokens
func (s *Store) CountAccessTokens(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accessTokens), nil
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleaned := 0

	// Cleanup expired sessions (with clock skew grace period)
	for sessionID, session := range s.sessions {
		if security.IsTokenExpired(session.ExpiresAt) {
			delete(s.sessions, sessionID)
			s.sessionsCountAtomic.Add(-1)
			cleaned++
		}
	}

	// Cleanup expired authorization codes (with clock skew grace period)
	for code, authCode := range s.authCodes {
		if security.IsTokenExpired(authCode.ExpiresAt) {
			delete(s.authCodes, code)
			s.codesCountAtomic.Add(-1)
			cleaned++
		}
	}

	// Cleanup expired access tokens (with clock skew grace period)
	for token, accessToken := range s.accessTokens {
		if security.IsTokenExpired(accessToken.ExpiresAt) {
			delete(s.accessTokens, token)
			s.tokensCountAtomic.Add(-1)
			cleaned++
		}
	}

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired entries", "count", cleaned)
	}
}

// ============================================================
// Instrumentation helpers
// ============================================================

// startStorageSpan creates a tracing span for a storage operation
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(
			attribute.String("operation", operation),
		))

	return ctx, span
}

// recordStorageOperation records metrics for a storage operation and sets span status
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Milliseconds())
	result := "success"
	if err != nil {
		result = "error"
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	} else {
		if span != nil {
			span.SetStatus(codes.Ok, "")
		}
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
