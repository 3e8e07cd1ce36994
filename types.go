package threatgate

// ClientRegistrationRequest is the RFC 7591 dynamic registration request
// body. All fields are optional; registration never fails on input.
type ClientRegistrationRequest struct {
	// ClientName is a human-readable name for the client
	ClientName string `json:"client_name,omitempty"`

	// RedirectURIs are the redirection URIs the client will use
	RedirectURIs []string `json:"redirect_uris,omitempty"`

	// GrantTypes requested by the client. Ignored: this server issues
	// authorization_code grants only.
	GrantTypes []string `json:"grant_types,omitempty"`

	// ResponseTypes requested by the client. Ignored: only "code".
	ResponseTypes []string `json:"response_types,omitempty"`

	// TokenEndpointAuthMethod requested by the client. Ignored:
	// registered clients are always public ("none").
	TokenEndpointAuthMethod string `json:"token_endpoint_auth_method,omitempty"`

	// Scope is a space-separated list of requested scopes
	Scope string `json:"scope,omitempty"`
}

// ClientRegistrationResponse is the RFC 7591 registration response.
type ClientRegistrationResponse struct {
	// ClientID is the server-generated client identifier
	ClientID string `json:"client_id"`

	// ClientName echoes the requested name, or the default
	ClientName string `json:"client_name"`

	// RedirectURIs echoes the registered redirection URIs
	RedirectURIs []string `json:"redirect_uris,omitempty"`

	// GrantTypes is always ["authorization_code"]
	GrantTypes []string `json:"grant_types"`

	// ResponseTypes is always ["code"]
	ResponseTypes []string `json:"response_types"`

	// TokenEndpointAuthMethod is always "none" (public client)
	TokenEndpointAuthMethod string `json:"token_endpoint_auth_method"`

	// ClientIDIssuedAt is the registration time as a Unix timestamp
	ClientIDIssuedAt int64 `json:"client_id_issued_at"`

	// ClientSecretExpiresAt is always 0: no secret is issued
	ClientSecretExpiresAt int64 `json:"client_secret_expires_at"`
}

// TokenResponse is the RFC 6749 access token response.
type TokenResponse struct {
	// AccessToken is the opaque bearer token
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresIn is the token lifetime in seconds
	ExpiresIn int64 `json:"expires_in"`

	// Scope is the space-separated granted scope, if any
	Scope string `json:"scope,omitempty"`
}

// ErrorResponse is the RFC 6749 JSON error body.
type ErrorResponse struct {
	// Error is the OAuth error code
	Error string `json:"error"`

	// ErrorDescription is a human-readable explanation
	ErrorDescription string `json:"error_description,omitempty"`
}

// ProtectedResourceMetadata is the RFC 9728 protected resource metadata
// document. Resource servers point clients here from their WWW-Authenticate
// challenges so the clients can discover this authorization server.
type ProtectedResourceMetadata struct {
	// Resource is the protected resource's URL
	Resource string `json:"resource"`

	// AuthorizationServers lists the issuer URLs that protect the resource
	AuthorizationServers []string `json:"authorization_servers"`

	// BearerMethodsSupported describes how bearer tokens are presented
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`

	// ScopesSupported lists the scopes the resource understands
	ScopesSupported []string `json:"scopes_supported,omitempty"`
}
