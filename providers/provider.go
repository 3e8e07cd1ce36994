// Package providers defines the interface to the external identity provider
// that authenticates end users before the server issues its own credentials.
package providers

import (
	"context"

	"golang.org/x/oauth2"
)

// Provider defines the interface for the upstream identity provider.
// The server only needs three things from the IdP: somewhere to send the
// user-agent, a code exchange, and the verified identity behind the result.
type Provider interface {
	// Name returns the provider name (e.g., "oidc", "mock")
	Name() string

	// AuthorizationURL generates the URL to redirect the user-agent to for
	// authentication. state is the server-generated session ID used to
	// correlate the provider callback.
	AuthorizationURL(state string) string

	// ExchangeCode exchanges the provider's authorization code for provider
	// tokens. The call must respect the context deadline; a failed exchange
	// is terminal for the flow and is never retried.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// FetchIdentity resolves the authenticated identity from provider
	// tokens, typically via the userinfo endpoint.
	FetchIdentity(ctx context.Context, token *oauth2.Token) (*Identity, error)

	// HealthCheck verifies the provider is reachable, for readiness probes.
	HealthCheck(ctx context.Context) error
}

// Identity represents the authenticated user as reported by the provider
type Identity struct {
	// Key is the identity string used to look up the credential mapping.
	// It is resolved from the provider's configured identity claim
	// (default "email").
	Key string

	// Subject is the provider's stable user identifier (the "sub" claim)
	Subject string

	// Email is the user's email address
	Email string

	// EmailVerified indicates if the email is verified
	EmailVerified bool

	// Name is the user's display name
	Name string
}
