package threatgate

import (
	"testing"
	"time"
)

func TestTimeConstants(t *testing.T) {
	tests := []struct {
		name     string
		constant time.Duration
		expected time.Duration
	}{
		{"DefaultAuthorizationCodeTTL", DefaultAuthorizationCodeTTL, 10 * time.Minute},
		{"DefaultAccessTokenTTL", DefaultAccessTokenTTL, 8760 * time.Hour},
		{"DefaultSessionTTL", DefaultSessionTTL, 10 * time.Minute},
		{"DefaultProviderTimeout", DefaultProviderTimeout, 10 * time.Second},
		{"DefaultRateLimitCleanupInterval", DefaultRateLimitCleanupInterval, 5 * time.Minute},
		{"InactiveLimiterCleanupWindow", InactiveLimiterCleanupWindow, 10 * time.Minute},
		{"DefaultRegistrationWindow", DefaultRegistrationWindow, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.constant != tt.expected {
				t.Errorf("%s = %v, want %v", tt.name, tt.constant, tt.expected)
			}
		})
	}
}

func TestIntegerConstants(t *testing.T) {
	tests := []struct {
		name     string
		constant int
		expected int
	}{
		{"MinCodeVerifierLength", MinCodeVerifierLength, 43},
		{"MaxCodeVerifierLength", MaxCodeVerifierLength, 128},
		{"DefaultMaxClientsPerIP", DefaultMaxClientsPerIP, 10},
		{"DefaultRateLimitRate", DefaultRateLimitRate, 10},
		{"DefaultRateLimitBurst", DefaultRateLimitBurst, 20},
		{"DefaultRegistrationsPerWindow", DefaultRegistrationsPerWindow, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.constant != tt.expected {
				t.Errorf("%s = %d, want %d", tt.name, tt.constant, tt.expected)
			}
		})
	}
}

func TestSupportedCapabilities(t *testing.T) {
	if len(SupportedGrantTypes) != 1 || SupportedGrantTypes[0] != "authorization_code" {
		t.Errorf("SupportedGrantTypes = %v", SupportedGrantTypes)
	}
	if len(SupportedResponseTypes) != 1 || SupportedResponseTypes[0] != "code" {
		t.Errorf("SupportedResponseTypes = %v", SupportedResponseTypes)
	}
	if len(SupportedTokenAuthMethods) != 1 || SupportedTokenAuthMethods[0] != "none" {
		t.Errorf("SupportedTokenAuthMethods = %v", SupportedTokenAuthMethods)
	}
	if len(SupportedCodeChallengeMethods) != 1 || SupportedCodeChallengeMethods[0] != "S256" {
		t.Errorf("SupportedCodeChallengeMethods = %v", SupportedCodeChallengeMethods)
	}
}
