package threatgate

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/threatgate/threatgate/instrumentation"
	"github.com/threatgate/threatgate/mapping"
	"github.com/threatgate/threatgate/providers"
	"github.com/threatgate/threatgate/storage"
)

// RateLimitConfig controls the per-IP token-bucket limiter applied to the
// registration and token endpoints.
type RateLimitConfig struct {
	// Disabled turns rate limiting off. For tests only.
	Disabled bool

	// Rate is the sustained requests per second per IP.
	// Default: DefaultRateLimitRate
	Rate int

	// Burst is the short-term burst allowance per IP.
	// Default: DefaultRateLimitBurst
	Burst int

	// CleanupInterval is how often idle limiter entries are pruned.
	// Default: DefaultRateLimitCleanupInterval
	CleanupInterval time.Duration
}

// ServerConfig configures a Server. Issuer, Provider, and Mappings are
// required; everything else has a secure default.
type ServerConfig struct {
	// Issuer is this server's public base URL (e.g., "https://auth.example.com").
	// It appears in discovery metadata and WWW-Authenticate challenges.
	Issuer string

	// Provider is the upstream identity provider that authenticates users
	Provider providers.Provider

	// Mappings is the identity-to-credential table that decides admission
	Mappings *mapping.Store

	// ClientStore holds registered clients. Default: in-memory.
	ClientStore storage.ClientStore

	// FlowStore holds sessions and authorization codes. Default: in-memory.
	FlowStore storage.FlowStore

	// TokenStore holds issued access tokens. Default: in-memory.
	TokenStore storage.TokenStore

	// Logger receives structured logs. Default: slog.Default().
	Logger *slog.Logger

	// Instrumentation provides metrics and tracing. Optional.
	Instrumentation *instrumentation.Instrumentation

	// AuthorizationCodeTTL is the single-use code lifetime.
	// Default: DefaultAuthorizationCodeTTL
	AuthorizationCodeTTL time.Duration

	// AccessTokenTTL is the bearer token lifetime.
	// Default: DefaultAccessTokenTTL
	AccessTokenTTL time.Duration

	// SessionTTL bounds the authorize -> callback round trip.
	// Default: DefaultSessionTTL
	SessionTTL time.Duration

	// AllowUnregisteredRedirectURIs skips matching the authorize request's
	// redirect_uri against the client's registered set. The token endpoint
	// still re-checks the URI bound to the code, but an unmatched URI at
	// authorize time is an open-redirect carrying an authorization code, so
	// the zero value enforces the match.
	AllowUnregisteredRedirectURIs bool

	// MaxClientsPerIP caps dynamic registrations per source IP.
	// Default: DefaultMaxClientsPerIP
	MaxClientsPerIP int

	// RateLimit configures the per-IP limiter on registration and token
	// requests
	RateLimit RateLimitConfig

	// TrustProxy enables X-Forwarded-For / X-Real-IP parsing for client IP
	// extraction. Only set behind a trusted reverse proxy.
	TrustProxy bool

	// TrustedProxyCount is the number of proxies in front of the server,
	// used to pick the right X-Forwarded-For entry
	TrustedProxyCount int

	// DisableAuditLog turns off the security audit trail. The zero value
	// keeps it on.
	DisableAuditLog bool
}

// applySecureDefaults fills in zero-valued fields. Called by NewServer.
func (c *ServerConfig) applySecureDefaults() {
	c.Issuer = strings.TrimRight(c.Issuer, "/")

	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.AuthorizationCodeTTL == 0 {
		c.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.MaxClientsPerIP == 0 {
		c.MaxClientsPerIP = DefaultMaxClientsPerIP
	}
	if c.RateLimit.Rate == 0 {
		c.RateLimit.Rate = DefaultRateLimitRate
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = DefaultRateLimitBurst
	}
	if c.RateLimit.CleanupInterval == 0 {
		c.RateLimit.CleanupInterval = DefaultRateLimitCleanupInterval
	}
}

// Validate checks the required fields
func (c *ServerConfig) Validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}
	parsed, err := url.Parse(c.Issuer)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("issuer must be an absolute URL: %q", c.Issuer)
	}
	if c.Provider == nil {
		return fmt.Errorf("identity provider is required")
	}
	if c.Mappings == nil {
		return fmt.Errorf("credential mapping store is required")
	}
	return nil
}
