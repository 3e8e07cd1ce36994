// Package mock provides a mock storage implementation for testing.
//
// Store satisfies ClientStore, FlowStore, and TokenStore. Every method has a
// corresponding Func field that, when set, replaces the default in-memory
// behavior. Tests use the overrides to inject storage failures into specific
// operations without touching the rest of the flow.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/threatgate/threatgate/storage"
)

// Store is a mock implementation of the storage interfaces
type Store struct {
	mu           sync.Mutex
	clients      map[string]*storage.Client
	sessions     map[string]*storage.AuthorizationSession
	authCodes    map[string]*storage.AuthorizationCode
	accessTokens map[string]*storage.AccessToken
	callCounts   map[string]int

	SaveClientFunc     func(ctx context.Context, client *storage.Client) error
	GetClientFunc      func(ctx context.Context, clientID string) (*storage.Client, error)
	ListClientsFunc    func(ctx context.Context) ([]*storage.Client, error)
	CheckIPLimitFunc   func(ctx context.Context, ip string, maxClientsPerIP int) error
	SaveSessionFunc    func(ctx context.Context, session *storage.AuthorizationSession) error
	GetSessionFunc     func(ctx context.Context, sessionID string) (*storage.AuthorizationSession, error)
	DeleteSessionFunc  func(ctx context.Context, sessionID string) error
	SaveCodeFunc       func(ctx context.Context, code *storage.AuthorizationCode) error
	GetCodeFunc        func(ctx context.Context, code string) (*storage.AuthorizationCode, error)
	RedeemCodeFunc     func(ctx context.Context, code string, validate func(*storage.AuthorizationCode) error) (*storage.AuthorizationCode, error)
	DeleteCodeFunc     func(ctx context.Context, code string) error
	SaveTokenFunc      func(ctx context.Context, token *storage.AccessToken) error
	GetTokenFunc       func(ctx context.Context, token string) (*storage.AccessToken, error)
	DeleteTokenFunc    func(ctx context.Context, token string) error
	CountTokensFunc    func(ctx context.Context) (int, error)
}

// Interface checks
var (
	_ storage.ClientStore = (*Store)(nil)
	_ storage.FlowStore   = (*Store)(nil)
	_ storage.TokenStore  = (*Store)(nil)
)

// NewStore creates a new mock store with default in-memory behavior
func NewStore() *Store {
	return &Store{
		clients:      make(map[string]*storage.Client),
		sessions:     make(map[string]*storage.AuthorizationSession),
		authCodes:    make(map[string]*storage.AuthorizationCode),
		accessTokens: make(map[string]*storage.AccessToken),
		callCounts:   make(map[string]int),
	}
}

// CallCount returns how many times the named method was invoked
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCounts[method]
}

func (m *Store) record(method string) {
	m.mu.Lock()
	m.callCounts[method]++
	m.mu.Unlock()
}

// SaveClient implements storage.ClientStore
func (m *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	m.record("SaveClient")
	if m.SaveClientFunc != nil {
		return m.SaveClientFunc(ctx, client)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[client.ClientID] = client
	return nil
}

// GetClient implements storage.ClientStore
func (m *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	m.record("GetClient")
	if m.GetClientFunc != nil {
		return m.GetClientFunc(ctx, clientID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	client, ok := m.clients[clientID]
	if !ok {
		return nil, storage.ErrClientNotFound
	}
	clientCopy := *client
	return &clientCopy, nil
}

// ListClients implements storage.ClientStore
func (m *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	m.record("ListClients")
	if m.ListClientsFunc != nil {
		return m.ListClientsFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clients := make([]*storage.Client, 0, len(m.clients))
	for _, client := range m.clients {
		clientCopy := *client
		clients = append(clients, &clientCopy)
	}
	return clients, nil
}

// CheckIPLimit implements storage.ClientStore
func (m *Store) CheckIPLimit(ctx context.Context, ip string, maxClientsPerIP int) error {
	m.record("CheckIPLimit")
	if m.CheckIPLimitFunc != nil {
		return m.CheckIPLimitFunc(ctx, ip, maxClientsPerIP)
	}
	return nil
}

// SaveSession implements storage.FlowStore
func (m *Store) SaveSession(ctx context.Context, session *storage.AuthorizationSession) error {
	m.record("SaveSession")
	if m.SaveSessionFunc != nil {
		return m.SaveSessionFunc(ctx, session)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.SessionID] = session
	return nil
}

// GetSession implements storage.FlowStore
func (m *Store) GetSession(ctx context.Context, sessionID string) (*storage.AuthorizationSession, error) {
	m.record("GetSession")
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx, sessionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	sessionCopy := *session
	return &sessionCopy, nil
}

// DeleteSession implements storage.FlowStore
func (m *Store) DeleteSession(ctx context.Context, sessionID string) error {
	m.record("DeleteSession")
	if m.DeleteSessionFunc != nil {
		return m.DeleteSessionFunc(ctx, sessionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// SaveAuthorizationCode implements storage.FlowStore
func (m *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	m.record("SaveAuthorizationCode")
	if m.SaveCodeFunc != nil {
		return m.SaveCodeFunc(ctx, code)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authCodes[code.Code] = code
	return nil
}

// GetAuthorizationCode implements storage.FlowStore
func (m *Store) GetAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	m.record("GetAuthorizationCode")
	if m.GetCodeFunc != nil {
		return m.GetCodeFunc(ctx, code)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	authCode, ok := m.authCodes[code]
	if !ok {
		return nil, storage.ErrCodeNotFound
	}
	codeCopy := *authCode
	return &codeCopy, nil
}

// RedeemAuthorizationCode implements storage.FlowStore
func (m *Store) RedeemAuthorizationCode(ctx context.Context, code string, validate func(*storage.AuthorizationCode) error) (*storage.AuthorizationCode, error) {
	m.record("RedeemAuthorizationCode")
	if m.RedeemCodeFunc != nil {
		return m.RedeemCodeFunc(ctx, code, validate)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	authCode, ok := m.authCodes[code]
	if !ok {
		return nil, storage.ErrCodeNotFound
	}
	if time.Now().After(authCode.ExpiresAt) {
		return nil, storage.ErrCodeExpired
	}
	if authCode.Used {
		return nil, storage.ErrCodeUsed
	}
	if validate != nil {
		codeCopy := *authCode
		if err := validate(&codeCopy); err != nil {
			return nil, err
		}
	}
	authCode.Used = true
	codeCopy := *authCode
	return &codeCopy, nil
}

// DeleteAuthorizationCode implements storage.FlowStore
func (m *Store) DeleteAuthorizationCode(ctx context.Context, code string) error {
	m.record("DeleteAuthorizationCode")
	if m.DeleteCodeFunc != nil {
		return m.DeleteCodeFunc(ctx, code)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.authCodes, code)
	return nil
}

// SaveAccessToken implements storage.TokenStore
func (m *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) error {
	m.record("SaveAccessToken")
	if m.SaveTokenFunc != nil {
		return m.SaveTokenFunc(ctx, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accessTokens[token.Token] = token
	return nil
}

// GetAccessToken implements storage.TokenStore
func (m *Store) GetAccessToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	m.record("GetAccessToken")
	if m.GetTokenFunc != nil {
		return m.GetTokenFunc(ctx, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	accessToken, ok := m.accessTokens[token]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	if time.Now().After(accessToken.ExpiresAt) {
		delete(m.accessTokens, token)
		return nil, storage.ErrTokenExpired
	}
	tokenCopy := *accessToken
	return &tokenCopy, nil
}

// DeleteAccessToken implements storage.TokenStore
func (m *Store) DeleteAccessToken(ctx context.Context, token string) error {
	m.record("DeleteAccessToken")
	if m.DeleteTokenFunc != nil {
		return m.DeleteTokenFunc(ctx, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accessTokens, token)
	return nil
}

// CountAccessTokens implements storage.TokenStore
func (m *Store) CountAccessTokens(ctx context.Context) (int, error) {
	m.record("CountAccessTokens")
	if m.CountTokensFunc != nil {
		return m.CountTokensFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accessTokens), nil
}
