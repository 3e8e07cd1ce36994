package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
server:
  issuer: https://auth.example.com
  listen_address: ":9090"
  authorization_code_ttl: 10m
  access_token_ttl: 8760h
  session_ttl: 10m
  rate_limit:
    rate: 10
    burst: 20
    cleanup_interval: 5m
  log_level: debug

provider:
  issuer_url: https://idp.example.com
  client_id: threatgate
  client_secret: file-secret
  scopes: [openid, email]
  identity_claim: email

telemetry:
  enabled: true
  service_name: threatgate-test

user_mappings:
  alice@example.com:
    iriusrisk_api_key: ir-key-alice
    iriusrisk_hostname: https://alice.iriusrisk.example.com
  bob@example.com:
    iriusrisk_api_key: ir-key-bob
    iriusrisk_hostname: https://bob.iriusrisk.example.com
    enabled: false
`

func TestParse_Valid(t *testing.T) {
	cfg, err := Parse([]byte(validConfig))
	require.NoError(t, err)

	assert.Equal(t, "https://auth.example.com", cfg.Server.Issuer)
	assert.Equal(t, ":9090", cfg.Server.ListenAddress)
	assert.Equal(t, 10*time.Minute, time.Duration(cfg.Server.AuthorizationCodeTTL))
	assert.Equal(t, 8760*time.Hour, time.Duration(cfg.Server.AccessTokenTTL))
	assert.Equal(t, 10, cfg.Server.RateLimit.Rate)
	assert.Equal(t, 20, cfg.Server.RateLimit.Burst)
	assert.Equal(t, 5*time.Minute, time.Duration(cfg.Server.RateLimit.Cleanup))
	assert.Equal(t, "debug", cfg.Server.LogLevel)

	assert.Equal(t, "https://idp.example.com", cfg.Provider.IssuerURL)
	assert.Equal(t, "threatgate", cfg.Provider.ClientID)
	assert.Equal(t, "file-secret", cfg.Provider.ClientSecret)
	assert.Equal(t, []string{"openid", "email"}, cfg.Provider.Scopes)

	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "threatgate-test", cfg.Telemetry.ServiceName)

	require.Len(t, cfg.UserMappings, 2)
	alice := cfg.UserMappings["alice@example.com"]
	assert.Equal(t, "ir-key-alice", alice.APIKey)
	assert.Equal(t, "https://alice.iriusrisk.example.com", alice.Hostname)
	assert.Nil(t, alice.Enabled)

	bob := cfg.UserMappings["bob@example.com"]
	require.NotNil(t, bob.Enabled)
	assert.False(t, *bob.Enabled)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  issuer: https://auth.example.com
provider:
  issuer_url: https://idp.example.com
  client_id: threatgate
`))
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddress, cfg.Server.ListenAddress)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "threatgate", cfg.Telemetry.ServiceName)
	assert.False(t, cfg.Server.AllowUnregisteredRedirectURIs)
	assert.False(t, cfg.Server.RateLimit.Disabled)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "missing issuer",
			yaml: `
provider:
  issuer_url: https://idp.example.com
  client_id: threatgate
`,
			wantErr: "server.issuer is required",
		},
		{
			name: "missing client id",
			yaml: `
server:
  issuer: https://auth.example.com
provider:
  issuer_url: https://idp.example.com
`,
			wantErr: "provider.client_id is required",
		},
		{
			name: "no issuer url and no explicit endpoints",
			yaml: `
server:
  issuer: https://auth.example.com
provider:
  client_id: threatgate
  authorization_endpoint: https://idp.example.com/authorize
`,
			wantErr: "issuer_url or explicit",
		},
		{
			name: "bad identity source",
			yaml: `
server:
  issuer: https://auth.example.com
provider:
  issuer_url: https://idp.example.com
  client_id: threatgate
  identity_source: verified_hopefully
`,
			wantErr: "identity_source",
		},
		{
			name: "bad log level",
			yaml: `
server:
  issuer: https://auth.example.com
  log_level: verbose
provider:
  issuer_url: https://idp.example.com
  client_id: threatgate
`,
			wantErr: "log_level",
		},
		{
			name: "mapping missing api key",
			yaml: `
server:
  issuer: https://auth.example.com
provider:
  issuer_url: https://idp.example.com
  client_id: threatgate
user_mappings:
  alice@example.com:
    iriusrisk_hostname: https://alice.iriusrisk.example.com
`,
			wantErr: "iriusrisk_api_key is required",
		},
		{
			name: "mapping missing hostname",
			yaml: `
server:
  issuer: https://auth.example.com
provider:
  issuer_url: https://idp.example.com
  client_id: threatgate
user_mappings:
  alice@example.com:
    iriusrisk_api_key: ir-key-alice
`,
			wantErr: "iriusrisk_hostname is required",
		},
		{
			name: "unknown key rejected",
			yaml: `
server:
  issuer: https://auth.example.com
  lisen_address: ":8080"
provider:
  issuer_url: https://idp.example.com
  client_id: threatgate
`,
			wantErr: "failed to parse config",
		},
		{
			name: "bad duration",
			yaml: `
server:
  issuer: https://auth.example.com
  session_ttl: ten minutes
provider:
  issuer_url: https://idp.example.com
  client_id: threatgate
`,
			wantErr: "invalid duration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_ClientSecretFromEnv(t *testing.T) {
	t.Setenv(EnvProviderClientSecret, "env-secret")

	cfg, err := Parse([]byte(validConfig))
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Provider.ClientSecret)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.com", cfg.Server.Issuer)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
