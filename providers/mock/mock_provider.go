// Package mock provides a mock implementation of the Provider interface for testing.
package mock

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"

	"github.com/threatgate/threatgate/providers"
)

// MockProvider is a configurable fake identity provider for tests
type MockProvider struct {
	// NameFunc is called when Name() is invoked
	NameFunc func() string

	// AuthorizationURLFunc is called when AuthorizationURL() is invoked
	AuthorizationURLFunc func(state string) string

	// ExchangeCodeFunc is called when ExchangeCode() is invoked
	ExchangeCodeFunc func(ctx context.Context, code string) (*oauth2.Token, error)

	// FetchIdentityFunc is called when FetchIdentity() is invoked
	FetchIdentityFunc func(ctx context.Context, token *oauth2.Token) (*providers.Identity, error)

	// HealthCheckFunc is called when HealthCheck() is invoked
	HealthCheckFunc func(ctx context.Context) error

	// CallCounts tracks how many times each method was called
	CallCounts map[string]int

	// mu protects CallCounts from concurrent access
	mu sync.RWMutex
}

// NewMockProvider creates a new mock provider with default implementations
func NewMockProvider() *MockProvider {
	return &MockProvider{
		CallCounts: make(map[string]int),
		NameFunc: func() string {
			return "mock"
		},
		AuthorizationURLFunc: func(state string) string {
			return "https://idp.example.com/authorize?state=" + state
		},
		ExchangeCodeFunc: func(ctx context.Context, code string) (*oauth2.Token, error) {
			return &oauth2.Token{
				AccessToken: "mock-provider-token",
				TokenType:   "Bearer",
			}, nil
		},
		FetchIdentityFunc: func(ctx context.Context, token *oauth2.Token) (*providers.Identity, error) {
			return &providers.Identity{
				Key:           "alice@example.com",
				Subject:       "mock-user-123",
				Email:         "alice@example.com",
				EmailVerified: true,
				Name:          "Alice Example",
			}, nil
		},
		HealthCheckFunc: func(ctx context.Context) error {
			return nil
		},
	}
}

// Name returns the provider name
func (m *MockProvider) Name() string {
	// Lock only to bump the counter and read the function reference, then
	// release before calling it: the user function may call other mock
	// methods and would deadlock otherwise.
	m.mu.Lock()
	m.CallCounts["Name"]++
	fn := m.NameFunc
	m.mu.Unlock()

	if fn == nil {
		return "mock"
	}
	return fn()
}

// AuthorizationURL generates the URL to redirect users for authentication
func (m *MockProvider) AuthorizationURL(state string) string {
	m.mu.Lock()
	m.CallCounts["AuthorizationURL"]++
	fn := m.AuthorizationURLFunc
	m.mu.Unlock()
	if fn == nil {
		return "https://idp.example.com/authorize?state=" + state
	}
	return fn(state)
}

// ExchangeCode exchanges an authorization code for provider tokens
func (m *MockProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	m.mu.Lock()
	m.CallCounts["ExchangeCode"]++
	fn := m.ExchangeCodeFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("ExchangeCodeFunc not configured")
	}
	return fn(ctx, code)
}

// FetchIdentity resolves the authenticated identity from provider tokens
func (m *MockProvider) FetchIdentity(ctx context.Context, token *oauth2.Token) (*providers.Identity, error) {
	m.mu.Lock()
	m.CallCounts["FetchIdentity"]++
	fn := m.FetchIdentityFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("FetchIdentityFunc not configured")
	}
	return fn(ctx, token)
}

// HealthCheck reports whether the provider is reachable
func (m *MockProvider) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	m.CallCounts["HealthCheck"]++
	fn := m.HealthCheckFunc
	m.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// ResetCallCounts resets all call counters
func (m *MockProvider) ResetCallCounts() {
	m.mu.Lock()
	m.CallCounts = make(map[string]int)
	m.mu.Unlock()
}

// GetCallCount returns the number of times a method was called
func (m *MockProvider) GetCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[method]
}

var _ providers.Provider = (*MockProvider)(nil)
