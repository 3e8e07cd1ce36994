// Package storage defines interfaces for persisting OAuth clients,
// authorization flow state, and issued access tokens.
package storage

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by storage implementations. Callers match them
// with errors.Is; implementations may wrap them with additional detail.
var (
	// ErrClientNotFound indicates the client ID is not registered
	ErrClientNotFound = errors.New("client not found")

	// ErrSessionNotFound indicates the authorization session is unknown or expired
	ErrSessionNotFound = errors.New("authorization session not found")

	// ErrCodeNotFound indicates the authorization code is unknown
	ErrCodeNotFound = errors.New("authorization code not found")

	// ErrCodeExpired indicates the authorization code is past its expiry
	ErrCodeExpired = errors.New("authorization code expired")

	// ErrCodeUsed indicates the authorization code was already redeemed
	ErrCodeUsed = errors.New("authorization code already used")

	// ErrTokenNotFound indicates the access token is unknown
	ErrTokenNotFound = errors.New("access token not found")

	// ErrTokenExpired indicates the access token is past its expiry
	ErrTokenExpired = errors.New("access token expired")
)

// ClientStore defines the interface for managing registered OAuth clients.
// All methods accept context.Context for tracing and cancellation.
type ClientStore interface {
	// SaveClient saves a registered client
	SaveClient(ctx context.Context, client *Client) error

	// GetClient retrieves a client by ID
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// ListClients lists all registered clients (for admin purposes)
	ListClients(ctx context.Context) ([]*Client, error)

	// CheckIPLimit checks if an IP has reached the client registration limit
	CheckIPLimit(ctx context.Context, ip string, maxClientsPerIP int) error
}

// FlowStore defines the interface for managing authorization flows.
//
// # Understanding SessionID vs ClientState
//
// A flow carries TWO distinct state values with different purposes:
//
//  1. ClientState is supplied by the client application in its /oauth/authorize
//     request for its own CSRF protection. The server never interprets it; it
//     is echoed back verbatim when the flow redirects to the client.
//
//  2. SessionID is generated by THIS server when the flow starts. It is sent
//     to the upstream identity provider as the provider-level state parameter
//     and returned by the provider in its callback, which is how the callback
//     correlates back to the stored session without a browser cookie.
//
// Example flow:
//  1. Client calls /oauth/authorize with state="client_csrf_123"
//  2. Server stores a session with SessionID="srv_xyz", ClientState="client_csrf_123"
//  3. Server redirects to the identity provider with state="srv_xyz"
//  4. Provider redirects back to /oauth/callback with state="srv_xyz"
//  5. Server looks up the session by SessionID, deletes it, and redirects to
//     the client with code=... and state="client_csrf_123"
//
// All methods accept context.Context for tracing and cancellation.
type FlowStore interface {
	// SaveSession saves the state of an in-flight authorization request
	SaveSession(ctx context.Context, session *AuthorizationSession) error

	// GetSession retrieves a session by its server-generated ID
	GetSession(ctx context.Context, sessionID string) (*AuthorizationSession, error)

	// DeleteSession removes a session
	DeleteSession(ctx context.Context, sessionID string) error

	// SaveAuthorizationCode saves an issued authorization code
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// GetAuthorizationCode retrieves an authorization code without consuming it
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// RedeemAuthorizationCode atomically redeems an authorization code.
	// The lookup, the expiry and reuse checks, the caller-supplied validate
	// function, and the used=true write all happen in one critical section,
	// so of any number of concurrent redemption attempts at most one can
	// succeed. The validate function must be pure (no I/O, no store calls);
	// it receives a copy of the stored code and typically checks the client
	// binding, the redirect URI, and the PKCE verifier. If validate returns
	// an error the code is left unused and that error is returned.
	//
	// Errors: ErrCodeNotFound, ErrCodeExpired, ErrCodeUsed, or the validate
	// error. Rejected codes stay in the store until they expire.
	RedeemAuthorizationCode(ctx context.Context, code string, validate func(*AuthorizationCode) error) (*AuthorizationCode, error)

	// DeleteAuthorizationCode removes an authorization code
	DeleteAuthorizationCode(ctx context.Context, code string) error
}

// TokenStore defines the interface for managing issued access tokens.
// All methods accept context.Context for tracing and cancellation.
type TokenStore interface {
	// SaveAccessToken saves an issued access token
	SaveAccessToken(ctx context.Context, token *AccessToken) error

	// GetAccessToken retrieves an access token by its opaque value.
	// Expiry is lazy: a token past its ExpiresAt is deleted during the
	// lookup and ErrTokenExpired is returned.
	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)

	// DeleteAccessToken removes an access token
	DeleteAccessToken(ctx context.Context, token string) error

	// CountAccessTokens returns the number of stored tokens (for metrics)
	CountAccessTokens(ctx context.Context) (int, error)
}

// Client represents a registered OAuth client. Clients are public
// (token_endpoint_auth_method "none"); there is no client secret.
type Client struct {
	ClientID                string
	ClientName              string
	RedirectURIs            []string
	GrantTypes              []string
	ResponseTypes           []string
	TokenEndpointAuthMethod string
	Scopes                  []string
	CreatedAt               time.Time
}

// AuthorizationSession represents an in-flight authorization request between
// the /oauth/authorize redirect and the provider callback. It is consumed
// exactly once by the callback and never outlives that round trip.
type AuthorizationSession struct {
	SessionID           string // server-generated, doubles as the provider-level state
	ClientID            string
	RedirectURI         string
	ClientState         string // client-supplied state, echoed back verbatim
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// AuthorizationCode represents a single-use code issued after the provider
// callback verified the user and the credential mapping admitted them.
type AuthorizationCode struct {
	Code                string
	Identity            string // verified identity the code is bound to
	ClientID            string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	CreatedAt           time.Time
	ExpiresAt           time.Time
	Used                bool
}

// AccessToken represents an issued bearer token bound to a verified identity.
// Tokens are never renewed in place; a new flow issues a new token.
type AccessToken struct {
	Token     string
	Identity  string
	ClientID  string
	Scope     string
	CreatedAt time.Time
	ExpiresAt time.Time
}
