// Package config loads the server's YAML configuration file.
//
// A single document configures the server itself, the upstream identity
// provider, optional telemetry, and the user_mappings table. The identity
// provider client secret can be kept out of the file and supplied through
// the THREATGATE_PROVIDER_CLIENT_SECRET environment variable instead.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/threatgate/threatgate/mapping"
)

// EnvProviderClientSecret overrides provider.client_secret when set.
const EnvProviderClientSecret = "THREATGATE_PROVIDER_CLIENT_SECRET"

// DefaultListenAddress is used when server.listen_address is omitted.
const DefaultListenAddress = ":8080"

// Duration wraps time.Duration so YAML values read as duration strings
// ("10m", "8760h") instead of nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// File is the root of the configuration document.
type File struct {
	Server       Server                   `yaml:"server"`
	Provider     Provider                 `yaml:"provider"`
	Telemetry    Telemetry                `yaml:"telemetry"`
	UserMappings map[string]mapping.Entry `yaml:"user_mappings"`
}

// Server configures the authorization server itself.
type Server struct {
	// Issuer is this server's externally visible base URL
	Issuer string `yaml:"issuer"`

	// ListenAddress is the host:port the HTTP server binds to
	// (default ":8080")
	ListenAddress string `yaml:"listen_address"`

	AuthorizationCodeTTL Duration `yaml:"authorization_code_ttl"`
	AccessTokenTTL       Duration `yaml:"access_token_ttl"`
	SessionTTL           Duration `yaml:"session_ttl"`

	// AllowUnregisteredRedirectURIs skips the registered redirect URI check
	// at the authorization endpoint. Testing only.
	AllowUnregisteredRedirectURIs bool `yaml:"allow_unregistered_redirect_uris"`

	TrustProxy        bool `yaml:"trust_proxy"`
	TrustedProxyCount int  `yaml:"trusted_proxy_count"`

	MaxClientsPerIP int  `yaml:"max_clients_per_ip"`
	DisableAuditLog bool `yaml:"disable_audit_log"`

	RateLimit RateLimit `yaml:"rate_limit"`

	// LogLevel is one of debug, info, warn, error (default "info")
	LogLevel string `yaml:"log_level"`
}

// RateLimit configures per-IP rate limiting on the token endpoint.
type RateLimit struct {
	Disabled bool     `yaml:"disabled"`
	Rate     int      `yaml:"rate"`
	Burst    int      `yaml:"burst"`
	Cleanup  Duration `yaml:"cleanup_interval"`
}

// Provider configures the upstream OIDC identity provider.
type Provider struct {
	// IssuerURL enables endpoint discovery. When set, the explicit endpoint
	// fields are ignored.
	IssuerURL string `yaml:"issuer_url"`

	AuthorizationEndpoint string `yaml:"authorization_endpoint"`
	TokenEndpoint         string `yaml:"token_endpoint"`
	UserInfoEndpoint      string `yaml:"userinfo_endpoint"`

	ClientID string `yaml:"client_id"`

	// ClientSecret can be left empty in the file and supplied via the
	// THREATGATE_PROVIDER_CLIENT_SECRET environment variable.
	ClientSecret string `yaml:"client_secret"`

	Scopes []string `yaml:"scopes"`

	// IdentityClaim names the claim used as the mapping key (default "email")
	IdentityClaim string `yaml:"identity_claim"`

	// IdentitySource is "userinfo" or "id_token_unverified"
	IdentitySource string `yaml:"identity_source"`

	RequestTimeout Duration `yaml:"request_timeout"`

	// AllowInsecureTransport permits plain-HTTP provider endpoints.
	// Testing only.
	AllowInsecureTransport bool `yaml:"allow_insecure_transport"`
}

// Telemetry configures OpenTelemetry metrics and tracing.
type Telemetry struct {
	Enabled      bool   `yaml:"enabled"`
	ServiceName  string `yaml:"service_name"`
	LogClientIPs bool   `yaml:"log_client_ips"`
}

// Load reads and validates the configuration file at path. Unknown keys are
// rejected so a typoed mapping entry cannot silently admit nobody.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*File, error) {
	var cfg File

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (f *File) applyDefaults() {
	if f.Server.ListenAddress == "" {
		f.Server.ListenAddress = DefaultListenAddress
	}
	if f.Server.LogLevel == "" {
		f.Server.LogLevel = "info"
	}
	if secret := os.Getenv(EnvProviderClientSecret); secret != "" {
		f.Provider.ClientSecret = secret
	}
	if f.Telemetry.ServiceName == "" {
		f.Telemetry.ServiceName = "threatgate"
	}
}

// Validate checks the fields the server cannot start without. Deeper
// validation (issuer URL shape, provider endpoint reachability) happens in
// the components the values are handed to.
func (f *File) Validate() error {
	if f.Server.Issuer == "" {
		return fmt.Errorf("server.issuer is required")
	}
	switch f.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level must be one of debug, info, warn, error; got %q", f.Server.LogLevel)
	}

	if f.Provider.ClientID == "" {
		return fmt.Errorf("provider.client_id is required")
	}
	if f.Provider.IssuerURL == "" {
		if f.Provider.AuthorizationEndpoint == "" || f.Provider.TokenEndpoint == "" {
			return fmt.Errorf("provider requires either issuer_url or explicit authorization_endpoint and token_endpoint")
		}
	}
	switch f.Provider.IdentitySource {
	case "", "userinfo", "id_token_unverified":
	default:
		return fmt.Errorf("provider.identity_source must be \"userinfo\" or \"id_token_unverified\"; got %q", f.Provider.IdentitySource)
	}

	for identity, entry := range f.UserMappings {
		if entry.APIKey == "" {
			return fmt.Errorf("user_mappings[%s]: iriusrisk_api_key is required", identity)
		}
		if entry.Hostname == "" {
			return fmt.Errorf("user_mappings[%s]: iriusrisk_hostname is required", identity)
		}
	}
	return nil
}
