// Package oidc implements a generic OpenID Connect identity provider.
//
// Endpoints can be configured explicitly or resolved from the issuer's
// discovery document. The authenticated identity is taken from the userinfo
// response by default; an explicitly tagged insecure mode reads it from the
// unverified ID token instead, for offline development against stub issuers.
package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/threatgate/threatgate/providers"
)

const (
	// defaultRequestTimeout bounds every outbound call to the provider.
	// Provider failures are terminal for a flow and are never retried.
	defaultRequestTimeout = 10 * time.Second

	// defaultIdentityClaim is the claim used for the credential mapping key
	defaultIdentityClaim = "email"
)

// IdentitySource selects where FetchIdentity reads claims from.
type IdentitySource string

const (
	// IdentitySourceUserInfo resolves identity via the userinfo endpoint.
	// This is the default and the only mode safe for production.
	IdentitySourceUserInfo IdentitySource = "userinfo"

	// IdentitySourceIDTokenUnverified reads claims from the ID token WITHOUT
	// verifying its signature. Anyone who can mint a JWT can impersonate any
	// user in this mode. It exists only for offline development against stub
	// issuers and must never be enabled in production.
	IdentitySourceIDTokenUnverified IdentitySource = "id_token_unverified"
)

// Config holds the configuration for the OIDC provider
type Config struct {
	// IssuerURL enables endpoint discovery via the issuer's
	// /.well-known/openid-configuration document. When set, the explicit
	// endpoint fields below are ignored.
	IssuerURL string

	// AuthorizationEndpoint is the provider's authorization endpoint.
	// Required when IssuerURL is empty.
	AuthorizationEndpoint string

	// TokenEndpoint is the provider's token endpoint.
	// Required when IssuerURL is empty.
	TokenEndpoint string

	// UserInfoEndpoint is the provider's userinfo endpoint. Required when
	// IssuerURL is empty and IdentitySource is "userinfo".
	UserInfoEndpoint string

	// ClientID is the OAuth client ID registered with the provider
	ClientID string

	// ClientSecret is the OAuth client secret registered with the provider
	ClientSecret string

	// RedirectURL is this server's callback URL
	RedirectURL string

	// Scopes requested from the provider (default: openid, profile, email)
	Scopes []string

	// IdentityClaim names the claim used as the credential mapping key
	// (default "email")
	IdentityClaim string

	// IdentitySource selects where identity claims are read from
	// (default IdentitySourceUserInfo)
	IdentitySource IdentitySource

	// HTTPClient is the HTTP client for provider requests (optional)
	HTTPClient *http.Client

	// RequestTimeout bounds outbound provider calls (default 10s)
	RequestTimeout time.Duration

	// AllowInsecureTransport permits plain-HTTP endpoints and skips issuer
	// SSRF validation. Testing only.
	AllowInsecureTransport bool

	// Logger for provider operations (optional)
	Logger *slog.Logger
}

// Provider implements the providers.Provider interface for any OIDC issuer
type Provider struct {
	*oauth2.Config

	issuerURL        string
	userInfoEndpoint string
	identityClaim    string
	identitySource   IdentitySource
	discoveryClient  *DiscoveryClient
	httpClient       *http.Client
	requestTimeout   time.Duration
	logger           *slog.Logger
}

// NewProvider creates a new OIDC provider from the given configuration.
// When cfg.IssuerURL is set the endpoints are resolved by discovery, which
// requires network access at construction time.
func NewProvider(ctx context.Context, cfg *Config) (*Provider, error) {
	if err := validateRequiredConfig(cfg); err != nil {
		return nil, err
	}

	scopes, err := resolveScopes(cfg.Scopes)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Provider{
		issuerURL:      cfg.IssuerURL,
		identityClaim:  resolveIdentityClaim(cfg.IdentityClaim),
		identitySource: resolveIdentitySource(cfg.IdentitySource),
		httpClient:     resolveHTTPClient(cfg.HTTPClient, cfg.RequestTimeout),
		requestTimeout: resolveTimeout(cfg.RequestTimeout),
		logger:         logger,
	}

	endpoint := oauth2.Endpoint{
		AuthURL:  cfg.AuthorizationEndpoint,
		TokenURL: cfg.TokenEndpoint,
	}
	p.userInfoEndpoint = cfg.UserInfoEndpoint

	if cfg.IssuerURL != "" {
		p.discoveryClient = createDiscoveryClient(p.httpClient, logger, cfg.AllowInsecureTransport)
		doc, err := p.discoveryClient.Discover(ctx, cfg.IssuerURL)
		if err != nil {
			return nil, fmt.Errorf("OIDC discovery failed for %s: %w", cfg.IssuerURL, err)
		}
		endpoint.AuthURL = doc.AuthorizationEndpoint
		endpoint.TokenURL = doc.TokenEndpoint
		p.userInfoEndpoint = doc.UserInfoEndpoint
	}

	if err := validateEndpoints(endpoint, p.userInfoEndpoint, p.identitySource, cfg.AllowInsecureTransport); err != nil {
		return nil, err
	}

	p.Config = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}

	if p.identitySource == IdentitySourceIDTokenUnverified {
		logger.Warn("identity source is id_token_unverified; ID token signatures are NOT checked, do not use in production")
	}

	return p, nil
}

func validateRequiredConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return fmt.Errorf("client secret is required")
	}
	if cfg.RedirectURL == "" {
		return fmt.Errorf("redirect URL is required")
	}
	if cfg.IssuerURL == "" && (cfg.AuthorizationEndpoint == "" || cfg.TokenEndpoint == "") {
		return fmt.Errorf("either issuer URL or explicit authorization and token endpoints are required")
	}
	switch cfg.IdentitySource {
	case "", IdentitySourceUserInfo, IdentitySourceIDTokenUnverified:
	default:
		return fmt.Errorf("unknown identity source %q", cfg.IdentitySource)
	}
	return nil
}

func validateEndpoints(endpoint oauth2.Endpoint, userInfoEndpoint string, source IdentitySource, allowInsecure bool) error {
	if source == IdentitySourceUserInfo && userInfoEndpoint == "" {
		return fmt.Errorf("userinfo endpoint is required when identity source is %q", IdentitySourceUserInfo)
	}
	if allowInsecure {
		return nil
	}
	for name, u := range map[string]string{
		"authorization endpoint": endpoint.AuthURL,
		"token endpoint":         endpoint.TokenURL,
	} {
		if err := requireHTTPS(name, u); err != nil {
			return err
		}
	}
	if userInfoEndpoint != "" {
		if err := requireHTTPS("userinfo endpoint", userInfoEndpoint); err != nil {
			return err
		}
	}
	return nil
}

func requireHTTPS(name, u string) error {
	if len(u) < len("https://") || u[:len("https://")] != "https://" {
		return fmt.Errorf("%s must use HTTPS: %s", name, u)
	}
	return nil
}

func resolveScopes(scopes []string) ([]string, error) {
	if len(scopes) == 0 {
		return []string{"openid", "profile", "email"}, nil
	}
	if err := ValidateScopes(scopes); err != nil {
		return nil, fmt.Errorf("invalid scopes: %w", err)
	}
	return scopes, nil
}

func resolveIdentityClaim(claim string) string {
	if claim == "" {
		return defaultIdentityClaim
	}
	return claim
}

func resolveIdentitySource(source IdentitySource) IdentitySource {
	if source == "" {
		return IdentitySourceUserInfo
	}
	return source
}

func resolveTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return defaultRequestTimeout
	}
	return timeout
}

func resolveHTTPClient(client *http.Client, timeout time.Duration) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: resolveTimeout(timeout)}
}

func createDiscoveryClient(httpClient *http.Client, logger *slog.Logger, allowInsecure bool) *DiscoveryClient {
	if allowInsecure {
		return NewInsecureDiscoveryClient(httpClient, 0, logger)
	}
	return NewDiscoveryClient(httpClient, 0, logger)
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "oidc"
}

// AuthorizationURL generates the provider authorization URL. state is the
// server's session ID, not the requesting client's state value.
func (p *Provider) AuthorizationURL(state string) string {
	return p.AuthCodeURL(state)
}

// ExchangeCode exchanges the provider's authorization code for provider tokens
func (p *Provider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := p.ensureContextTimeout(ctx)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token, nil
}

// FetchIdentity resolves the authenticated identity from provider tokens
// according to the configured identity source and claim.
func (p *Provider) FetchIdentity(ctx context.Context, token *oauth2.Token) (*providers.Identity, error) {
	ctx, cancel := p.ensureContextTimeout(ctx)
	defer cancel()

	var claims map[string]any
	var err error
	switch p.identitySource {
	case IdentitySourceIDTokenUnverified:
		claims, err = p.idTokenClaims(token)
	default:
		claims, err = p.userInfoClaims(ctx, token)
	}
	if err != nil {
		return nil, err
	}

	key, ok := stringClaim(claims, p.identityClaim)
	if !ok || key == "" {
		return nil, fmt.Errorf("identity claim %q missing or empty in provider response", p.identityClaim)
	}

	identity := &providers.Identity{Key: key}
	identity.Subject, _ = stringClaim(claims, "sub")
	identity.Email, _ = stringClaim(claims, "email")
	identity.Name, _ = stringClaim(claims, "name")
	if v, ok := claims["email_verified"].(bool); ok {
		identity.EmailVerified = v
	}
	return identity, nil
}

// userInfoClaims fetches claims from the userinfo endpoint using the
// provider access token.
func (p *Provider) userInfoClaims(ctx context.Context, token *oauth2.Token) (map[string]any, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	client := p.Client(ctx, token)

	req, err := http.NewRequestWithContext(ctx, "GET", p.userInfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	var claims map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}
	return claims, nil
}

// idTokenClaims parses the ID token without signature verification.
// Only reachable when IdentitySourceIDTokenUnverified was configured.
func (p *Provider) idTokenClaims(token *oauth2.Token) (map[string]any, error) {
	raw, ok := token.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, fmt.Errorf("provider token response contains no id_token")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("failed to parse id_token: %w", err)
	}
	return claims, nil
}

// HealthCheck verifies the provider is reachable. With a discovery-based
// configuration it refetches the discovery document; with explicit endpoints
// it probes the authorization endpoint.
func (p *Provider) HealthCheck(ctx context.Context) error {
	ctx, cancel := p.ensureContextTimeout(ctx)
	defer cancel()

	if p.issuerURL != "" {
		if _, err := p.discoveryClient.Discover(ctx, p.issuerURL); err != nil {
			return fmt.Errorf("provider discovery check failed: %w", err)
		}
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, "HEAD", p.Endpoint.AuthURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider unreachable: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	return nil
}

// ensureContextTimeout guarantees every provider call has a deadline
func (p *Provider) ensureContextTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.requestTimeout)
}

func stringClaim(claims map[string]any, name string) (string, bool) {
	v, ok := claims[name].(string)
	return v, ok
}

var _ providers.Provider = (*Provider)(nil)
