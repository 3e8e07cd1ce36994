package threatgate

import "time"

// Lifetimes and intervals.
const (
	// DefaultAuthorizationCodeTTL bounds the window between the provider
	// callback and the token exchange.
	DefaultAuthorizationCodeTTL = 10 * time.Minute

	// DefaultAccessTokenTTL is deliberately long: tokens map to static
	// downstream API keys and are revoked by disabling the mapping entry,
	// not by expiry.
	DefaultAccessTokenTTL = 365 * 24 * time.Hour

	// DefaultSessionTTL bounds the authorize -> provider -> callback round
	// trip. A user who walks away from the provider login restarts the flow.
	DefaultSessionTTL = 10 * time.Minute

	// DefaultProviderTimeout bounds each outbound call to the identity
	// provider. Exchanges are never retried; a timeout fails the flow.
	DefaultProviderTimeout = 10 * time.Second

	// DefaultRateLimitCleanupInterval is how often idle rate limiter
	// entries are pruned.
	DefaultRateLimitCleanupInterval = 5 * time.Minute

	// InactiveLimiterCleanupWindow is how long a per-IP limiter may sit
	// idle before it is discarded.
	InactiveLimiterCleanupWindow = 10 * time.Minute
)

// Request validation limits.
const (
	// MinCodeVerifierLength and MaxCodeVerifierLength are the RFC 7636
	// bounds on a PKCE code verifier.
	MinCodeVerifierLength = 43
	MaxCodeVerifierLength = 128

	// DefaultMaxClientsPerIP caps dynamic registrations per source IP.
	DefaultMaxClientsPerIP = 10

	// DefaultRateLimitRate and DefaultRateLimitBurst are the per-IP
	// token-bucket parameters for the registration and token endpoints.
	DefaultRateLimitRate  = 10
	DefaultRateLimitBurst = 20

	// DefaultRegistrationsPerWindow caps dynamic registrations per IP per
	// DefaultRegistrationWindow.
	DefaultRegistrationsPerWindow = 20
)

// DefaultRegistrationWindow is the sliding window for the registration cap.
const DefaultRegistrationWindow = time.Hour

// ClientIDPrefix marks every client ID issued by this server.
const ClientIDPrefix = "client_"

// DefaultClientName is used when a registration request carries no name.
const DefaultClientName = "mcp-client"

// Fixed protocol capabilities advertised in discovery metadata. This server
// issues codes to public clients only; there are no client secrets and no
// refresh tokens.
var (
	SupportedGrantTypes           = []string{"authorization_code"}
	SupportedResponseTypes        = []string{"code"}
	SupportedTokenAuthMethods     = []string{"none"}
	SupportedCodeChallengeMethods = []string{"S256"}
	SupportedScopes               = []string{"openid", "profile", "email"}
)
