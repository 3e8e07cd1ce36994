package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DiscoveryDocument holds the OpenID Connect provider metadata fetched from
// the issuer's /.well-known/openid-configuration endpoint.
type DiscoveryDocument struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserInfoEndpoint                  string   `json:"userinfo_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint,omitempty"`
	JWKSUri                           string   `json:"jwks_uri"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
}

// cachedDocument holds a discovery document with its fetch timestamp.
type cachedDocument struct {
	document  *DiscoveryDocument
	fetchedAt time.Time
}

// DiscoveryClient fetches and caches OIDC discovery documents. All discovered
// endpoints are validated for HTTPS before the document is accepted.
//
// The client is safe for concurrent use.
type DiscoveryClient struct {
	httpClient     *http.Client
	cache          sync.Map // issuerURL -> *cachedDocument
	cacheTTL       time.Duration
	logger         *slog.Logger
	skipValidation bool // testing only, see NewInsecureDiscoveryClient
}

// NewDiscoveryClient creates a discovery client. A nil httpClient gets a
// default with a 10s timeout; a zero cacheTTL defaults to one hour.
func NewDiscoveryClient(httpClient *http.Client, cacheTTL time.Duration, logger *slog.Logger) *DiscoveryClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cacheTTL == 0 {
		cacheTTL = 1 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &DiscoveryClient{
		httpClient: httpClient,
		cacheTTL:   cacheTTL,
		logger:     logger,
	}
}

// NewInsecureDiscoveryClient creates a discovery client that skips issuer URL
// and endpoint HTTPS validation. It exists so tests can discover against a
// local httptest server and must never be used outside tests.
func NewInsecureDiscoveryClient(httpClient *http.Client, cacheTTL time.Duration, logger *slog.Logger) *DiscoveryClient {
	c := NewDiscoveryClient(httpClient, cacheTTL, logger)
	c.skipValidation = true
	return c
}

// Discover fetches the OIDC discovery document for an issuer. The issuer URL
// is validated first (see ValidateIssuerURL) and results are cached for the
// configured TTL.
func (c *DiscoveryClient) Discover(ctx context.Context, issuerURL string) (*DiscoveryDocument, error) {
	if !c.skipValidation {
		if err := ValidateIssuerURL(issuerURL); err != nil {
			return nil, fmt.Errorf("invalid issuer URL: %w", err)
		}
	}

	if cached, ok := c.cache.Load(issuerURL); ok {
		doc := cached.(*cachedDocument)
		if time.Since(doc.fetchedAt) < c.cacheTTL {
			c.logger.Debug("OIDC discovery cache hit", "issuer", issuerURL)
			return doc.document, nil
		}
		c.logger.Debug("OIDC discovery cache expired", "issuer", issuerURL)
	}

	discoveryURL := strings.TrimSuffix(issuerURL, "/") + "/.well-known/openid-configuration"

	c.logger.Debug("Fetching OIDC discovery document", "url", discoveryURL)

	req, err := http.NewRequestWithContext(ctx, "GET", discoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch OIDC discovery document: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OIDC discovery failed with status %d", resp.StatusCode)
	}

	var doc DiscoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", err)
	}

	if !c.skipValidation {
		if err := c.validateDocument(&doc); err != nil {
			return nil, fmt.Errorf("invalid discovery document: %w", err)
		}
	}

	c.cache.Store(issuerURL, &cachedDocument{
		document:  &doc,
		fetchedAt: time.Now(),
	})

	c.logger.Info("OIDC discovery successful",
		"issuer", issuerURL,
		"authorization_endpoint", doc.AuthorizationEndpoint,
		"token_endpoint", doc.TokenEndpoint)

	return &doc, nil
}

// validateDocument checks that every endpoint in the document uses HTTPS.
// Tokens pass through these endpoints, so plain HTTP is never acceptable.
func (c *DiscoveryClient) validateDocument(doc *DiscoveryDocument) error {
	endpoints := []struct {
		name string
		url  string
	}{
		{"issuer", doc.Issuer},
		{"authorization_endpoint", doc.AuthorizationEndpoint},
		{"token_endpoint", doc.TokenEndpoint},
		{"jwks_uri", doc.JWKSUri},
	}

	for _, endpoint := range endpoints {
		if endpoint.url == "" {
			return fmt.Errorf("%s is required but missing", endpoint.name)
		}
		if !strings.HasPrefix(endpoint.url, "https://") {
			return fmt.Errorf("%s must use HTTPS: %s", endpoint.name, endpoint.url)
		}
	}

	optionalEndpoints := []struct {
		name string
		url  string
	}{
		{"userinfo_endpoint", doc.UserInfoEndpoint},
		{"revocation_endpoint", doc.RevocationEndpoint},
	}

	for _, endpoint := range optionalEndpoints {
		if endpoint.url != "" && !strings.HasPrefix(endpoint.url, "https://") {
			return fmt.Errorf("%s must use HTTPS if present: %s", endpoint.name, endpoint.url)
		}
	}

	return nil
}

// ClearCache drops all cached discovery documents, forcing a refetch on the
// next Discover call.
func (c *DiscoveryClient) ClearCache() {
	count := 0
	c.cache.Range(func(key, value interface{}) bool {
		c.cache.Delete(key)
		count++
		return true
	})
	c.logger.Debug("OIDC discovery cache cleared", "entries_removed", count)
}
