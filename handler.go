package threatgate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/threatgate/threatgate/security"
)

const tokenTypeBearer = "Bearer"

// Handler exposes the Server over HTTP. It owns request parsing, rate
// limiting, security headers, and response encoding; all protocol decisions
// live in Server.
type Handler struct {
	server *Server
	tracer trace.Tracer
}

// NewHandler creates an HTTP handler for the given server
func NewHandler(server *Server) *Handler {
	h := &Handler{server: server}
	if server.Instrumentation != nil {
		h.tracer = server.Instrumentation.Tracer("oauth.http")
	}
	return h
}

// RegisterRoutes registers all endpoints on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/.well-known/oauth-authorization-server", h.ServeAuthorizationServerMetadata)
	mux.HandleFunc("/.well-known/openid-configuration", h.ServeOpenIDConfiguration)
	mux.HandleFunc("/.well-known/oauth-protected-resource", h.ServeProtectedResourceMetadata)
	mux.HandleFunc("/oauth/register", h.ServeClientRegistration)
	mux.HandleFunc("/oauth/authorize", h.ServeAuthorization)
	mux.HandleFunc("/oauth/callback", h.ServeCallback)
	mux.HandleFunc("/oauth/token", h.ServeToken)
}

// ProtectedResourceMetadataURL is the discovery URL advertised in
// WWW-Authenticate challenges
func (h *Handler) ProtectedResourceMetadataURL() string {
	return h.server.Config.Issuer + "/.well-known/oauth-protected-resource"
}

// ServeAuthorizationServerMetadata serves RFC 8414 authorization server
// metadata. Public, unauthenticated, CORS-enabled for browser clients.
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.setCORSHeaders(w)
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.buildAuthServerMetadata())
	h.recordHTTPMetrics("authorization_server_metadata", r.Method, http.StatusOK, startTime)
}

// buildAuthServerMetadata assembles the RFC 8414 document
func (h *Handler) buildAuthServerMetadata() map[string]any {
	issuer := h.server.Config.Issuer
	return map[string]any{
		"issuer":                                issuer,
		"authorization_endpoint":                issuer + "/oauth/authorize",
		"token_endpoint":                        issuer + "/oauth/token",
		"registration_endpoint":                 issuer + "/oauth/register",
		"grant_types_supported":                 SupportedGrantTypes,
		"response_types_supported":              SupportedResponseTypes,
		"token_endpoint_auth_methods_supported": SupportedTokenAuthMethods,
		"code_challenge_methods_supported":      SupportedCodeChallengeMethods,
		"scopes_supported":                      SupportedScopes,
	}
}

// ServeOpenIDConfiguration serves OIDC discovery metadata. Some clients only
// probe /.well-known/openid-configuration, so the RFC 8414 fields are served
// here too with the OIDC additions.
func (h *Handler) ServeOpenIDConfiguration(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	metadata := h.buildAuthServerMetadata()
	metadata["userinfo_endpoint"] = h.server.Config.Issuer + "/oauth/userinfo"
	metadata["subject_types_supported"] = []string{"public"}
	metadata["id_token_signing_alg_values_supported"] = []string{"RS256"}

	h.setCORSHeaders(w)
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(metadata)
	h.recordHTTPMetrics("openid_configuration", r.Method, http.StatusOK, startTime)
}

// ServeProtectedResourceMetadata serves RFC 9728 protected resource
// metadata, which WWW-Authenticate challenges point clients at.
func (h *Handler) ServeProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	metadata := ProtectedResourceMetadata{
		Resource:               h.server.Config.Issuer,
		AuthorizationServers:   []string{h.server.Config.Issuer},
		BearerMethodsSupported: []string{"header"},
		ScopesSupported:        SupportedScopes,
	}

	h.setCORSHeaders(w)
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(metadata)
	h.recordHTTPMetrics("protected_resource_metadata", r.Method, http.StatusOK, startTime)
}

// ServeClientRegistration handles RFC 7591 dynamic client registration.
// The endpoint is public; abuse is bounded by the per-IP registration
// limiter and the per-IP client cap.
func (h *Handler) ServeClientRegistration(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r, "oauth.http.client_registration")
	defer h.endSpan(span)

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientIP := security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
	if h.server.registrationLimiter != nil && !h.server.registrationLimiter.Allow(clientIP) {
		h.server.Auditor.LogRateLimitExceeded(clientIP, "register")
		h.recordHTTPMetrics("register", r.Method, http.StatusTooManyRequests, startTime)
		h.writeError(w, ErrorCodeRateLimitExceeded, "Client registration limit exceeded. Please try again later.", http.StatusTooManyRequests)
		return
	}

	// Registration never rejects metadata; an unreadable body is treated
	// as an empty request.
	var req ClientRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger().Debug("Unparseable registration body, using defaults", "error", err, "ip", clientIP)
		req = ClientRegistrationRequest{}
	}

	resp, err := h.server.RegisterClient(ctx, &req, clientIP)
	if err != nil {
		h.recordHTTPMetrics("register", r.Method, http.StatusBadRequest, startTime)
		h.writeOAuthError(w, err)
		return
	}

	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
	h.recordHTTPMetrics("register", r.Method, http.StatusCreated, startTime)
}

// ServeAuthorization begins the authorization flow: it validates the
// request, stores a session, and redirects the user-agent to the identity
// provider.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r, "oauth.http.authorization")
	defer h.endSpan(span)

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientIP := security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
	query := r.URL.Query()
	req := &AuthorizationRequest{
		ResponseType:        query.Get("response_type"),
		ClientID:            query.Get("client_id"),
		RedirectURI:         query.Get("redirect_uri"),
		Scope:               query.Get("scope"),
		State:               query.Get("state"),
		CodeChallenge:       query.Get("code_challenge"),
		CodeChallengeMethod: query.Get("code_challenge_method"),
	}

	redirectURL, err := h.server.StartAuthorizationFlow(ctx, req, clientIP)
	if err != nil {
		h.recordHTTPMetrics("authorize", r.Method, http.StatusBadRequest, startTime)
		h.writeOAuthError(w, err)
		return
	}

	if h.server.Instrumentation != nil {
		h.server.Instrumentation.Metrics().RecordAuthorizationStarted(ctx, req.ClientID)
	}
	h.recordHTTPMetrics("authorize", r.Method, http.StatusFound, startTime)
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// ServeCallback receives the identity provider's redirect. Success redirects
// the user-agent back to the client with an authorization code; admission
// denial renders a human-readable 403 page; provider failures render a
// generic error page without upstream detail.
func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r, "oauth.http.callback")
	defer h.endSpan(span)

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientIP := security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
	query := r.URL.Query()

	// The provider signals its own failures (user cancelled, consent
	// denied) via an error parameter.
	if providerErr := query.Get("error"); providerErr != "" {
		h.logger().Warn("Provider returned an error on callback", "error", providerErr, "ip", clientIP)
		h.recordCallback(ctx, "", false)
		h.recordHTTPMetrics("callback", r.Method, http.StatusBadRequest, startTime)
		h.renderErrorPage(w, http.StatusBadRequest, "Authentication Failed",
			"The identity provider reported an error. Please restart the authorization flow.")
		return
	}

	redirectURL, err := h.server.HandleProviderCallback(ctx, query.Get("code"), query.Get("state"), clientIP)
	if err != nil {
		h.recordCallback(ctx, "", false)

		var oauthErr *OAuthError
		if errors.As(err, &oauthErr) && oauthErr.Code == ErrorCodeAccessDenied {
			h.recordHTTPMetrics("callback", r.Method, http.StatusForbidden, startTime)
			h.renderErrorPage(w, http.StatusForbidden, "Access Denied",
				"You authenticated successfully, but your account is not authorized to use this service. "+
					"Contact your administrator to request access.")
			return
		}

		status := http.StatusBadRequest
		message := "The authorization request could not be completed. Please restart the flow."
		if errors.As(err, &oauthErr) && oauthErr.Status >= 500 {
			status = http.StatusBadGateway
			message = "Authentication with the identity provider failed. Please try again."
		}
		h.recordHTTPMetrics("callback", r.Method, status, startTime)
		h.renderErrorPage(w, status, "Authorization Error", message)
		return
	}

	h.recordCallback(ctx, "", true)
	h.recordHTTPMetrics("callback", r.Method, http.StatusFound, startTime)
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// ServeToken handles the token endpoint. Only the authorization_code grant
// is supported; anything else is rejected with unsupported_grant_type.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r, "oauth.http.token")
	defer h.endSpan(span)

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientIP := security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
	if !h.checkRateLimit(ctx, w, clientIP, "token") {
		h.recordHTTPMetrics("token", r.Method, http.StatusTooManyRequests, startTime)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.recordHTTPMetrics("token", r.Method, http.StatusBadRequest, startTime)
		h.writeError(w, ErrorCodeInvalidRequest, "Failed to parse request", http.StatusBadRequest)
		return
	}

	grantType := r.FormValue("grant_type")
	switch grantType {
	case "authorization_code":
		h.handleAuthorizationCodeGrant(ctx, w, r, clientIP, startTime)
	default:
		h.logger().Warn("Unsupported grant type requested", "grant_type", grantType, "ip", clientIP)
		h.recordHTTPMetrics("token", r.Method, http.StatusBadRequest, startTime)
		h.writeError(w, ErrorCodeUnsupportedGrantType,
			fmt.Sprintf("grant_type %q is not supported", grantType), http.StatusBadRequest)
	}
}

// handleAuthorizationCodeGrant redeems a code for an access token
func (h *Handler) handleAuthorizationCodeGrant(ctx context.Context, w http.ResponseWriter, r *http.Request, clientIP string, startTime time.Time) {
	req := &TokenRequest{
		GrantType:    r.FormValue("grant_type"),
		Code:         r.FormValue("code"),
		RedirectURI:  r.FormValue("redirect_uri"),
		ClientID:     r.FormValue("client_id"),
		CodeVerifier: r.FormValue("code_verifier"),
	}

	resp, err := h.server.ExchangeAuthorizationCode(ctx, req, clientIP)
	if err != nil {
		h.recordHTTPMetrics("token", r.Method, http.StatusBadRequest, startTime)
		h.writeOAuthError(w, err)
		return
	}

	h.recordHTTPMetrics("token", r.Method, http.StatusOK, startTime)
	h.writeTokenResponse(w, resp)
}

// RequireToken wraps a handler with bearer token validation. On success the
// request context carries the resolved Grant; on failure the response is a
// 401 with a WWW-Authenticate challenge pointing at the protected resource
// metadata, per RFC 6750 and RFC 9728.
func (h *Handler) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := h.extractBearerToken(r)
		if !ok {
			h.writeUnauthorized(w, "unauthorized", "Missing or malformed Authorization header")
			return
		}

		grant, err := h.server.ValidateAccessToken(r.Context(), token)
		if err != nil {
			clientIP := security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
			h.server.Auditor.LogTokenValidationFailed(clientIP, "bearer_rejected")
			description := "Invalid or expired token"
			var oauthErr *OAuthError
			if errors.As(err, &oauthErr) {
				description = oauthErr.Description
			}
			h.writeUnauthorized(w, ErrorCodeInvalidToken, description)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithGrant(r.Context(), grant)))
	})
}

// extractBearerToken pulls the bearer token from the Authorization header
func (h *Handler) extractBearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(auth, " ")
	if !found || !strings.EqualFold(scheme, tokenTypeBearer) || token == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// grantContextKey is the context key for the validated Grant
type grantContextKey struct{}

// ContextWithGrant attaches a validated Grant to the context. Outside of
// RequireToken this is only appropriate in tests.
func ContextWithGrant(ctx context.Context, grant *Grant) context.Context {
	return context.WithValue(ctx, grantContextKey{}, grant)
}

// GrantFromContext retrieves the Grant set by RequireToken
func GrantFromContext(ctx context.Context) (*Grant, bool) {
	grant, ok := ctx.Value(grantContextKey{}).(*Grant)
	return grant, ok
}

// checkRateLimit applies the per-IP limiter. Returns false with the response
// already written when the request is over the limit.
func (h *Handler) checkRateLimit(ctx context.Context, w http.ResponseWriter, clientIP, endpoint string) bool {
	if h.server.rateLimiter == nil || h.server.rateLimiter.Allow(clientIP) {
		return true
	}

	h.server.Auditor.LogRateLimitExceeded(clientIP, endpoint)
	if h.server.Instrumentation != nil {
		h.server.Instrumentation.Metrics().RecordRateLimitExceeded(ctx, "ip")
	}
	h.writeError(w, ErrorCodeRateLimitExceeded, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
	return false
}

// writeTokenResponse writes a successful token response. Token responses
// carry secrets and must never be cached.
func (h *Handler) writeTokenResponse(w http.ResponseWriter, resp *TokenResponse) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeOAuthError writes an error response from an error value, preserving
// the OAuth code and HTTP status when the error is an *OAuthError
func (h *Handler) writeOAuthError(w http.ResponseWriter, err error) {
	var oauthErr *OAuthError
	if errors.As(err, &oauthErr) {
		h.writeError(w, oauthErr.Code, oauthErr.Description, oauthErr.Status)
		return
	}
	h.writeError(w, ErrorCodeServerError, "Internal server error", http.StatusInternalServerError)
}

// writeError writes a JSON OAuth error response
func (h *Handler) writeError(w http.ResponseWriter, code, description string, status int) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", h.formatWWWAuthenticate(code, description))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:            code,
		ErrorDescription: description,
	})
}

// writeUnauthorized writes a 401 with the RFC 6750 challenge header
func (h *Handler) writeUnauthorized(w http.ResponseWriter, code, description string) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	w.Header().Set("WWW-Authenticate", h.formatWWWAuthenticate(code, description))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:            code,
		ErrorDescription: description,
	})
}

// formatWWWAuthenticate builds the WWW-Authenticate value per RFC 6750 and
// RFC 9728: the resource_metadata parameter points clients at the discovery
// document. Parameter values are escaped per the HTTP quoted-string rules
// (backslashes first, then quotes).
func (h *Handler) formatWWWAuthenticate(errCode, errorDesc string) string {
	params := []string{
		fmt.Sprintf(`resource_metadata="%s"`, h.ProtectedResourceMetadataURL()),
	}
	if errCode != "" {
		params = append(params, fmt.Sprintf(`error="%s"`, quoteEscape(errCode)))
	}
	if errorDesc != "" {
		params = append(params, fmt.Sprintf(`error_description="%s"`, quoteEscape(errorDesc)))
	}
	return tokenTypeBearer + " " + strings.Join(params, ", ")
}

// quoteEscape escapes a value for an HTTP quoted-string
func quoteEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// errorPageTemplate is the human-readable page served on callback failures.
// No scripts, inline styles only, so it renders under the strict CSP.
const errorPageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 32rem; margin: 4rem auto; padding: 0 1rem; color: #1a202c; }
h1 { font-size: 1.4rem; }
p { line-height: 1.5; color: #4a5568; }
</style>
</head>
<body>
<h1>%s</h1>
<p>%s</p>
</body>
</html>
`

// renderErrorPage serves an HTML error page for browser-facing failures on
// the callback endpoint
func (h *Handler) renderErrorPage(w http.ResponseWriter, status int, title, message string) {
	security.SetHTMLSecurityHeaders(w, h.server.Config.Issuer)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	safeTitle := html.EscapeString(title)
	_, _ = fmt.Fprintf(w, errorPageTemplate, safeTitle, safeTitle, html.EscapeString(message))
}

// setCORSHeaders marks discovery documents as readable from any origin.
// They are public metadata; the wildcard is intentional.
func (h *Handler) setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// startSpan opens a tracing span when instrumentation is configured
func (h *Handler) startSpan(r *http.Request, name string) (context.Context, trace.Span) {
	if h.tracer == nil {
		return r.Context(), nil
	}
	return h.tracer.Start(r.Context(), name)
}

// endSpan closes a span opened by startSpan
func (h *Handler) endSpan(span trace.Span) {
	if span != nil {
		span.End()
	}
}

// logger returns the server's component logger
func (h *Handler) logger() *slog.Logger {
	return h.server.logger
}

// recordHTTPMetrics records request count and duration for an endpoint
func (h *Handler) recordHTTPMetrics(endpoint, method string, status int, startTime time.Time) {
	if h.server.Instrumentation == nil {
		return
	}
	duration := time.Since(startTime).Seconds() * 1000
	h.server.Instrumentation.Metrics().RecordHTTPRequest(context.Background(), method, endpoint, status, duration)
}

// recordCallback records the callback outcome metric
func (h *Handler) recordCallback(ctx context.Context, clientID string, success bool) {
	if h.server.Instrumentation == nil {
		return
	}
	h.server.Instrumentation.Metrics().RecordCallbackProcessed(ctx, clientID, success)
}
