package testutil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/threatgate/threatgate/storage"
)

// GenerateRandomString generates a random base64-encoded string
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// GeneratePKCEPair generates a valid PKCE challenge and verifier pair for
// testing. The challenge is the S256 hash of the verifier.
func GeneratePKCEPair() (challenge, verifier string) {
	verifier = GenerateRandomString(50)
	hash := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(hash[:])
	return challenge, verifier
}

// NewTestClient creates a registered public client fixture
func NewTestClient() *storage.Client {
	return &storage.Client{
		ClientID:                "client_" + GenerateRandomString(16),
		ClientName:              "test-client",
		RedirectURIs:            []string{"https://example.com/callback"},
		GrantTypes:              []string{"authorization_code"},
		ResponseTypes:           []string{"code"},
		TokenEndpointAuthMethod: "none",
		Scopes:                  []string{"openid", "email", "profile"},
		CreatedAt:               time.Now(),
	}
}

// NewTestSession creates an in-flight authorization session fixture
func NewTestSession() *storage.AuthorizationSession {
	challenge, _ := GeneratePKCEPair()
	return &storage.AuthorizationSession{
		SessionID:           GenerateRandomString(32),
		ClientID:            "test-client-id",
		RedirectURI:         "https://example.com/callback",
		ClientState:         GenerateRandomString(16),
		Scope:               "openid email profile",
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
		CreatedAt:           time.Now(),
		ExpiresAt:           time.Now().Add(10 * time.Minute),
	}
}

// NewTestAuthorizationCode creates an unredeemed authorization code fixture
func NewTestAuthorizationCode() *storage.AuthorizationCode {
	challenge, _ := GeneratePKCEPair()
	return &storage.AuthorizationCode{
		Code:                GenerateRandomString(32),
		Identity:            "alice@example.com",
		ClientID:            "test-client-id",
		RedirectURI:         "https://example.com/callback",
		Scope:               "openid email profile",
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
		CreatedAt:           time.Now(),
		ExpiresAt:           time.Now().Add(10 * time.Minute),
	}
}

// NewTestAccessToken creates a bearer token fixture
func NewTestAccessToken() *storage.AccessToken {
	return &storage.AccessToken{
		Token:     GenerateRandomString(32),
		Identity:  "alice@example.com",
		ClientID:  "test-client-id",
		Scope:     "openid email profile",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(1 * time.Hour),
	}
}
