// Package threatgate implements an OAuth 2.0 authorization server that
// bridges MCP and AI-assistant clients to the IriusRisk API. It terminates
// an authorization-code-with-PKCE flow on the client side, delegates user
// authentication to an external identity provider, and admits only
// identities present and enabled in a static credential mapping table.
// Validated bearer tokens resolve to the mapped per-user IriusRisk API key
// and hostname.
package threatgate

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/threatgate/threatgate/instrumentation"
	"github.com/threatgate/threatgate/internal/util"
	"github.com/threatgate/threatgate/mapping"
	"github.com/threatgate/threatgate/security"
	"github.com/threatgate/threatgate/storage"
	"github.com/threatgate/threatgate/storage/memory"
)

// AuthorizationRequest carries the parsed query parameters of an
// /oauth/authorize request.
type AuthorizationRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string // client CSRF value, echoed back verbatim
	CodeChallenge       string
	CodeChallengeMethod string
}

// TokenRequest carries the parsed form parameters of an /oauth/token request
// using the authorization_code grant.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	CodeVerifier string
}

// Grant is the result of validating a bearer token: the verified identity
// and the downstream IriusRisk credential pair mapped to it. This is the
// single value the tool-dispatch layer consumes.
type Grant struct {
	Identity string
	APIKey   string
	Hostname string
}

// Server implements the authorization server core. It owns the client, flow,
// and token stores, consults the credential mapping table for admission, and
// delegates user authentication to the configured identity provider.
type Server struct {
	Config          ServerConfig
	Auditor         *security.Auditor
	Instrumentation *instrumentation.Instrumentation

	clients  storage.ClientStore
	flows    storage.FlowStore
	tokens   storage.TokenStore
	mappings *mapping.Store
	logger   *slog.Logger

	rateLimiter         *security.RateLimiter
	registrationLimiter *security.RegistrationLimiter

	// set when the server created its own in-memory store
	defaultStore *memory.Store
}

// ipTracker is implemented by stores that count registrations per source IP
type ipTracker interface {
	TrackClientIP(ip string)
}

// NewServer creates a Server from the given configuration. Zero-valued
// optional fields get secure defaults; missing required fields are an error.
func NewServer(config ServerConfig) (*Server, error) {
	config.applySecureDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	logger := config.Logger.With("component", "oauth-server")

	s := &Server{
		Config:          config,
		Instrumentation: config.Instrumentation,
		clients:         config.ClientStore,
		flows:           config.FlowStore,
		tokens:          config.TokenStore,
		mappings:        config.Mappings,
		logger:          logger,
	}

	if s.clients == nil || s.flows == nil || s.tokens == nil {
		mem := memory.New()
		mem.SetLogger(config.Logger)
		if config.Instrumentation != nil {
			mem.SetInstrumentation(config.Instrumentation)
		}
		s.defaultStore = mem
		if s.clients == nil {
			s.clients = mem
		}
		if s.flows == nil {
			s.flows = mem
		}
		if s.tokens == nil {
			s.tokens = mem
		}
	}

	s.Auditor = security.NewAuditor(config.Logger, !config.DisableAuditLog)

	if !config.RateLimit.Disabled {
		s.rateLimiter = security.NewRateLimiter(config.RateLimit.Rate, config.RateLimit.Burst, config.Logger)
		s.registrationLimiter = security.NewRegistrationLimiter(
			DefaultRegistrationsPerWindow, DefaultRegistrationWindow, config.Logger)
	}

	logger.Info("Authorization server configured",
		"issuer", config.Issuer,
		"provider", config.Provider.Name(),
		"code_ttl", config.AuthorizationCodeTTL,
		"token_ttl", config.AccessTokenTTL,
		"mapped_identities", config.Mappings.Size())

	return s, nil
}

// Stop releases background resources (rate limiter and default store
// cleanup goroutines). The server must not be used afterwards.
func (s *Server) Stop() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.registrationLimiter != nil {
		s.registrationLimiter.Stop()
	}
	if s.defaultStore != nil {
		s.defaultStore.Stop()
	}
}

// RegisterClient handles RFC 7591 dynamic registration. The endpoint is
// public and never rejects metadata: every field is optional, requested
// grant types and auth methods are overridden with the only supported
// values, and the response always carries a fresh client_id. The only
// failure is the per-IP registration cap.
func (s *Server) RegisterClient(ctx context.Context, req *ClientRegistrationRequest, clientIP string) (*ClientRegistrationResponse, error) {
	if req == nil {
		req = &ClientRegistrationRequest{}
	}

	if err := s.clients.CheckIPLimit(ctx, clientIP, s.Config.MaxClientsPerIP); err != nil {
		s.logger.Warn("Client registration rejected: IP limit reached", "ip", clientIP)
		return nil, ErrInvalidRequest("too many clients registered from this address")
	}

	name := req.ClientName
	if name == "" {
		name = DefaultClientName
	}

	client := &storage.Client{
		ClientID:                ClientIDPrefix + oauth2.GenerateVerifier(),
		ClientName:              name,
		RedirectURIs:            req.RedirectURIs,
		GrantTypes:              SupportedGrantTypes,
		ResponseTypes:           SupportedResponseTypes,
		TokenEndpointAuthMethod: "none",
		Scopes:                  strings.Fields(req.Scope),
		CreatedAt:               time.Now(),
	}

	if err := s.clients.SaveClient(ctx, client); err != nil {
		s.logger.Error("Failed to save registered client", "error", err)
		return nil, ErrServerError("failed to register client")
	}
	if tracker, ok := s.clients.(ipTracker); ok {
		tracker.TrackClientIP(clientIP)
	}

	s.logger.Info("Client registered",
		"client_id", client.ClientID,
		"client_name", client.ClientName,
		"redirect_uris", len(client.RedirectURIs))
	s.Auditor.LogClientRegistered(client.ClientID, client.ClientName, clientIP)
	if s.Instrumentation != nil {
		s.Instrumentation.Metrics().RecordClientRegistration(ctx)
	}

	return &ClientRegistrationResponse{
		ClientID:                client.ClientID,
		ClientName:              client.ClientName,
		RedirectURIs:            client.RedirectURIs,
		GrantTypes:              client.GrantTypes,
		ResponseTypes:           client.ResponseTypes,
		TokenEndpointAuthMethod: client.TokenEndpointAuthMethod,
		ClientIDIssuedAt:        client.CreatedAt.Unix(),
		ClientSecretExpiresAt:   0,
	}, nil
}

// StartAuthorizationFlow validates an authorize request, stores a session
// for the provider round trip, and returns the provider authorization URL
// the user-agent should be redirected to. The session ID doubles as the
// provider-level state parameter; the client's own state value is stored
// and echoed back only on the final redirect.
func (s *Server) StartAuthorizationFlow(ctx context.Context, req *AuthorizationRequest, clientIP string) (string, error) {
	if req.ResponseType != "code" {
		return "", ErrUnsupportedResponseType(fmt.Sprintf("response_type %q is not supported", req.ResponseType))
	}
	if req.ClientID == "" {
		return "", ErrInvalidRequest("client_id is required")
	}
	if req.RedirectURI == "" {
		return "", ErrInvalidRequest("redirect_uri is required")
	}

	client, err := s.clients.GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return "", ErrInvalidClient("unknown client")
		}
		s.logger.Error("Client lookup failed", "error", err)
		return "", ErrServerError("client lookup failed")
	}

	if err := s.validateRedirectURISecurity(req.RedirectURI); err != nil {
		return "", err
	}
	if !s.Config.AllowUnregisteredRedirectURIs {
		if !redirectURIRegistered(client, req.RedirectURI) {
			s.logger.Warn("Authorize rejected: redirect_uri not registered",
				"client_id", req.ClientID, "redirect_uri", req.RedirectURI)
			return "", ErrInvalidRequest("redirect_uri is not registered for this client")
		}
	}

	method := req.CodeChallengeMethod
	if req.CodeChallenge != "" {
		if method == "" {
			method = "plain"
		}
		if method != "S256" && method != "plain" {
			return "", ErrInvalidRequest(fmt.Sprintf("code_challenge_method %q is not supported", method))
		}
	} else {
		method = ""
	}

	now := time.Now()
	session := &storage.AuthorizationSession{
		SessionID:           uuid.NewString(),
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		ClientState:         req.State,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.Config.SessionTTL),
	}
	if err := s.flows.SaveSession(ctx, session); err != nil {
		s.logger.Error("Failed to save authorization session", "error", err)
		return "", ErrServerError("failed to start authorization flow")
	}

	s.logger.Info("Authorization flow started",
		"client_id", req.ClientID,
		"session_id", util.SafeTruncate(session.SessionID, 8),
		"pkce_method", method)
	s.Auditor.LogFlowStarted(req.ClientID, clientIP)

	return s.Config.Provider.AuthorizationURL(session.SessionID), nil
}

// HandleProviderCallback processes the identity provider's redirect. The
// state parameter is the session ID issued by StartAuthorizationFlow; the
// session is consumed whether or not the rest succeeds. On success it mints
// a single-use authorization code and returns the client redirect URL
// carrying the code and the client's original state.
//
// This is the admission-control gate: an identity authenticated by the
// provider but absent or disabled in the mapping table is denied here, and
// no authorization code is created.
func (s *Server) HandleProviderCallback(ctx context.Context, providerCode, state, clientIP string) (string, error) {
	if state == "" {
		return "", ErrInvalidRequest("missing state parameter")
	}
	if providerCode == "" {
		return "", ErrInvalidRequest("missing code parameter")
	}

	session, err := s.flows.GetSession(ctx, state)
	if err != nil {
		s.logger.Warn("Callback with unknown session", "session_id", util.SafeTruncate(state, 8), "ip", clientIP)
		return "", ErrInvalidRequest("authorization session expired or invalid")
	}
	// Consume the session regardless of what follows; a failed exchange
	// requires a fresh flow.
	if err := s.flows.DeleteSession(ctx, session.SessionID); err != nil {
		s.logger.Error("Failed to delete authorization session", "error", err)
	}
	if security.IsTokenExpired(session.ExpiresAt) {
		return "", ErrInvalidRequest("authorization session expired or invalid")
	}

	providerToken, err := s.Config.Provider.ExchangeCode(ctx, providerCode)
	if err != nil {
		s.logger.Error("Provider code exchange failed", "provider", s.Config.Provider.Name(), "error", err)
		s.Auditor.LogProviderExchangeFailed(session.ClientID, clientIP, "code_exchange")
		return "", ErrServerError("authentication with the identity provider failed")
	}

	identity, err := s.Config.Provider.FetchIdentity(ctx, providerToken)
	if err != nil {
		s.logger.Error("Provider identity lookup failed", "provider", s.Config.Provider.Name(), "error", err)
		s.Auditor.LogProviderExchangeFailed(session.ClientID, clientIP, "identity_lookup")
		return "", ErrServerError("authentication with the identity provider failed")
	}

	if _, err := s.mappings.Lookup(identity.Key); err != nil {
		reason := "not_mapped"
		description := "no credential mapping exists for this identity"
		if errors.Is(err, mapping.ErrDisabled) {
			reason = "disabled"
			description = "the credential mapping for this identity is disabled"
		}
		s.logger.Warn("Admission denied", "client_id", session.ClientID, "reason", reason)
		s.Auditor.LogAdmissionDenied(identity.Key, session.ClientID, clientIP, reason)
		if s.Instrumentation != nil {
			s.Instrumentation.Metrics().RecordAdmissionDenied(ctx, reason)
		}
		return "", ErrAccessDenied(description)
	}

	now := time.Now()
	authCode := &storage.AuthorizationCode{
		Code:                oauth2.GenerateVerifier(),
		Identity:            identity.Key,
		ClientID:            session.ClientID,
		RedirectURI:         session.RedirectURI,
		Scope:               session.Scope,
		CodeChallenge:       session.CodeChallenge,
		CodeChallengeMethod: session.CodeChallengeMethod,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.Config.AuthorizationCodeTTL),
	}
	if err := s.flows.SaveAuthorizationCode(ctx, authCode); err != nil {
		s.logger.Error("Failed to save authorization code", "error", err)
		return "", ErrServerError("failed to complete authorization")
	}

	s.logger.Info("Authorization code issued",
		"client_id", session.ClientID,
		"code", util.SafeTruncate(authCode.Code, 8),
		"expires_at", authCode.ExpiresAt)
	s.Auditor.LogAuthorizationCodeIssued(identity.Key, session.ClientID, clientIP)

	return fmt.Sprintf("%s?code=%s&state=%s",
		session.RedirectURI,
		url.QueryEscape(authCode.Code),
		url.QueryEscape(session.ClientState)), nil
}

// ExchangeAuthorizationCode redeems an authorization code for an access
// token. The code lookup, the expiry and reuse checks, the client and
// redirect URI binding checks, and the PKCE verification all happen inside
// the store's atomic redeem, so two concurrent requests presenting the same
// code can never both receive a token.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, req *TokenRequest, clientIP string) (*TokenResponse, error) {
	if req.Code == "" {
		return nil, ErrInvalidRequest("code is required")
	}

	redeemed, err := s.flows.RedeemAuthorizationCode(ctx, req.Code, func(code *storage.AuthorizationCode) error {
		if code.ClientID != req.ClientID {
			return ErrInvalidGrant("client ID mismatch")
		}
		if code.RedirectURI != req.RedirectURI {
			return ErrInvalidGrant("redirect URI mismatch")
		}
		if code.CodeChallenge != "" {
			if req.CodeVerifier == "" {
				return ErrInvalidGrant("code verifier required")
			}
			if err := validatePKCE(req.CodeVerifier, code.CodeChallenge, code.CodeChallengeMethod); err != nil {
				return ErrInvalidGrant("invalid code verifier")
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.redemptionError(ctx, err, req, clientIP)
	}

	now := time.Now()
	token := &storage.AccessToken{
		Token:     oauth2.GenerateVerifier(),
		Identity:  redeemed.Identity,
		ClientID:  req.ClientID,
		Scope:     redeemed.Scope,
		CreatedAt: now,
		ExpiresAt: now.Add(s.Config.AccessTokenTTL),
	}
	if err := s.tokens.SaveAccessToken(ctx, token); err != nil {
		s.logger.Error("Failed to save access token", "error", err)
		return nil, ErrServerError("failed to issue token")
	}

	s.logger.Info("Access token issued",
		"client_id", req.ClientID,
		"token", util.SafeTruncate(token.Token, 8),
		"expires_at", token.ExpiresAt)
	s.Auditor.LogTokenIssued(redeemed.Identity, req.ClientID, clientIP, redeemed.Scope)
	if s.Instrumentation != nil {
		s.Instrumentation.Metrics().RecordCodeExchange(ctx, req.ClientID, redeemed.CodeChallengeMethod)
	}

	return &TokenResponse{
		AccessToken: token.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.Config.AccessTokenTTL.Seconds()),
		Scope:       token.Scope,
	}, nil
}

// redemptionError maps a failed code redemption onto the invalid_grant
// taxonomy and records the audit trail
func (s *Server) redemptionError(ctx context.Context, err error, req *TokenRequest, clientIP string) error {
	var oauthErr *OAuthError
	switch {
	case errors.Is(err, storage.ErrCodeNotFound):
		oauthErr = ErrInvalidGrant("invalid authorization code")
		s.Auditor.LogCodeRedemptionFailed(req.ClientID, clientIP, "code_not_found")
	case errors.Is(err, storage.ErrCodeExpired):
		oauthErr = ErrInvalidGrant("authorization code expired")
		s.Auditor.LogCodeRedemptionFailed(req.ClientID, clientIP, "code_expired")
	case errors.Is(err, storage.ErrCodeUsed):
		oauthErr = ErrInvalidGrant("authorization code already used")
		s.Auditor.LogCodeRedemptionFailed(req.ClientID, clientIP, "code_reused")
		if s.Instrumentation != nil {
			s.Instrumentation.Metrics().RecordCodeReuseDetected(ctx)
		}
	case errors.As(err, &oauthErr):
		// validation callback failure: binding mismatch or PKCE
		s.Auditor.LogCodeRedemptionFailed(req.ClientID, clientIP, oauthErr.Description)
		if oauthErr.Description == "invalid code verifier" && s.Instrumentation != nil {
			s.Instrumentation.Metrics().RecordPKCEValidationFailed(ctx, "S256")
		}
	default:
		s.logger.Error("Code redemption failed", "error", err)
		oauthErr = ErrServerError("failed to redeem authorization code")
	}

	s.logger.Warn("Token request rejected",
		"client_id", req.ClientID,
		"reason", oauthErr.Description,
		"ip", clientIP)
	return oauthErr
}

// ValidateAccessToken resolves a bearer token to its Grant: the bound
// identity and the mapped IriusRisk credential pair. Expired tokens are
// pruned lazily by the store with no grace period. The mapping table is
// consulted on every validation, so disabling an identity's entry revokes
// all of its outstanding tokens immediately.
func (s *Server) ValidateAccessToken(ctx context.Context, token string) (*Grant, error) {
	if token == "" {
		return nil, ErrInvalidToken("missing bearer token")
	}

	stored, err := s.tokens.GetAccessToken(ctx, token)
	if err != nil {
		result := "not_found"
		if errors.Is(err, storage.ErrTokenExpired) {
			result = "expired"
		}
		if s.Instrumentation != nil {
			s.Instrumentation.Metrics().RecordTokenValidation(ctx, result)
		}
		return nil, ErrInvalidToken("invalid or expired token")
	}

	cred, err := s.mappings.Lookup(stored.Identity)
	if err != nil {
		s.logger.Warn("Token rejected: mapping revoked",
			"token", util.SafeTruncate(token, 8),
			"reason", err)
		if s.Instrumentation != nil {
			s.Instrumentation.Metrics().RecordTokenValidation(ctx, "revoked")
		}
		return nil, ErrInvalidToken("token has been revoked")
	}

	if s.Instrumentation != nil {
		s.Instrumentation.Metrics().RecordTokenValidation(ctx, "valid")
	}
	return &Grant{
		Identity: stored.Identity,
		APIKey:   cred.APIKey,
		Hostname: cred.Hostname,
	}, nil
}

// validatePKCE checks a code verifier against the stored challenge.
// Comparisons are constant time for both methods so a mismatched verifier
// cannot be probed byte by byte.
func validatePKCE(verifier, challenge, method string) error {
	if len(verifier) < MinCodeVerifierLength || len(verifier) > MaxCodeVerifierLength {
		return fmt.Errorf("code verifier length must be between %d and %d characters",
			MinCodeVerifierLength, MaxCodeVerifierLength)
	}
	for _, c := range verifier {
		if !isValidVerifierChar(c) {
			return fmt.Errorf("code verifier contains invalid characters")
		}
	}

	switch method {
	case "S256":
		hash := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(hash[:])
		if subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
			return fmt.Errorf("code verifier does not match challenge")
		}
	case "plain":
		if subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) != 1 {
			return fmt.Errorf("code verifier does not match challenge")
		}
	default:
		return fmt.Errorf("unsupported code challenge method %q", method)
	}
	return nil
}

// isValidVerifierChar reports whether c is in the RFC 7636 unreserved set
func isValidVerifierChar(c rune) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

// validateRedirectURISecurity rejects redirect URIs that could leak an
// authorization code: relative URIs, fragments, script-capable schemes, and
// plain HTTP to non-loopback hosts when the server itself runs on HTTPS.
func (s *Server) validateRedirectURISecurity(redirectURI string) error {
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return ErrInvalidRequest("redirect_uri is not a valid URI")
	}
	if parsed.Fragment != "" {
		return ErrInvalidRequest("redirect_uri must not contain a fragment")
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return ErrInvalidRequest("redirect_uri must be an absolute URI")
	}

	switch strings.ToLower(parsed.Scheme) {
	case "javascript", "data", "vbscript", "file", "about":
		return ErrInvalidRequest("redirect_uri scheme is not allowed")
	}

	if strings.ToLower(parsed.Scheme) == "http" && strings.HasPrefix(s.Config.Issuer, "https://") {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return ErrInvalidRequest("redirect_uri must use HTTPS")
		}
	}
	return nil
}

// redirectURIRegistered reports whether uri matches one of the client's
// registered redirect URIs after normalization
func redirectURIRegistered(client *storage.Client, uri string) bool {
	normalized := util.NormalizeURL(uri)
	for _, registered := range client.RedirectURIs {
		if util.NormalizeURL(registered) == normalized {
			return true
		}
	}
	return false
}
