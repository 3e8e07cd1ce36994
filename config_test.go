package threatgate

import (
	"testing"

	"github.com/threatgate/threatgate/mapping"
	"github.com/threatgate/threatgate/providers/mock"
)

func TestServerConfig_ApplySecureDefaults(t *testing.T) {
	config := ServerConfig{Issuer: testIssuer + "/"}
	config.applySecureDefaults()

	if config.Issuer != testIssuer {
		t.Errorf("Issuer = %q, want trailing slash trimmed", config.Issuer)
	}
	if config.AuthorizationCodeTTL != DefaultAuthorizationCodeTTL {
		t.Errorf("AuthorizationCodeTTL = %v, want %v", config.AuthorizationCodeTTL, DefaultAuthorizationCodeTTL)
	}
	if config.AccessTokenTTL != DefaultAccessTokenTTL {
		t.Errorf("AccessTokenTTL = %v, want %v", config.AccessTokenTTL, DefaultAccessTokenTTL)
	}
	if config.SessionTTL != DefaultSessionTTL {
		t.Errorf("SessionTTL = %v, want %v", config.SessionTTL, DefaultSessionTTL)
	}
	if config.MaxClientsPerIP != DefaultMaxClientsPerIP {
		t.Errorf("MaxClientsPerIP = %d, want %d", config.MaxClientsPerIP, DefaultMaxClientsPerIP)
	}
	if config.RateLimit.Rate != DefaultRateLimitRate {
		t.Errorf("RateLimit.Rate = %d, want %d", config.RateLimit.Rate, DefaultRateLimitRate)
	}
	if config.RateLimit.Burst != DefaultRateLimitBurst {
		t.Errorf("RateLimit.Burst = %d, want %d", config.RateLimit.Burst, DefaultRateLimitBurst)
	}
	if config.Logger == nil {
		t.Error("Logger should default to slog.Default()")
	}
	if config.AllowUnregisteredRedirectURIs {
		t.Error("redirect URI validation must stay on by default")
	}
}

func TestServerConfig_DefaultsPreserveExplicitValues(t *testing.T) {
	config := ServerConfig{
		Issuer:          testIssuer,
		MaxClientsPerIP: 3,
		RateLimit:       RateLimitConfig{Rate: 2, Burst: 4},
	}
	config.applySecureDefaults()

	if config.MaxClientsPerIP != 3 {
		t.Errorf("MaxClientsPerIP = %d, want 3", config.MaxClientsPerIP)
	}
	if config.RateLimit.Rate != 2 || config.RateLimit.Burst != 4 {
		t.Errorf("RateLimit = %+v, want explicit values kept", config.RateLimit)
	}
}

func TestServerConfig_Validate(t *testing.T) {
	valid := ServerConfig{
		Issuer:   testIssuer,
		Provider: mock.NewMockProvider(),
		Mappings: mapping.New(nil),
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() error = %v for valid config", err)
	}

	tests := []struct {
		name   string
		mutate func(c *ServerConfig)
	}{
		{"empty issuer", func(c *ServerConfig) { c.Issuer = "" }},
		{"relative issuer", func(c *ServerConfig) { c.Issuer = "/oauth" }},
		{"nil provider", func(c *ServerConfig) { c.Provider = nil }},
		{"nil mappings", func(c *ServerConfig) { c.Mappings = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)
			if err := config.Validate(); err == nil {
				t.Error("Validate() expected error, got nil")
			}
		})
	}
}
