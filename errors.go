package threatgate

import "fmt"

// OAuth error codes from RFC 6749 §5.2 and RFC 6750 §3.1.
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeUnauthorizedClient      = "unauthorized_client"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeInvalidScope            = "invalid_scope"
	ErrorCodeServerError             = "server_error"
	ErrorCodeInvalidToken            = "invalid_token"
	ErrorCodeRateLimitExceeded       = "rate_limit_exceeded"
)

// OAuthError is an OAuth 2.0 protocol error. It carries the wire-level error
// code and description plus the HTTP status the response should use.
type OAuthError struct {
	// Code is the OAuth error code (e.g., "invalid_grant")
	Code string

	// Description is a human-readable explanation
	Description string

	// Status is the HTTP status code for the response
	Status int
}

// Error implements the error interface
func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewOAuthError creates an OAuth error with the given code, description, and
// HTTP status
func NewOAuthError(code, description string, status int) *OAuthError {
	return &OAuthError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Constructors for the standard error responses. Each takes a description
// and fixes the code and HTTP status.
var (
	// ErrInvalidRequest indicates a malformed or incomplete request
	ErrInvalidRequest = func(description string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidRequest, description, 400)
	}

	// ErrInvalidClient indicates an unknown client
	ErrInvalidClient = func(description string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidClient, description, 401)
	}

	// ErrInvalidGrant indicates an invalid, expired, used, or mismatched
	// authorization code
	ErrInvalidGrant = func(description string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidGrant, description, 400)
	}

	// ErrUnauthorizedClient indicates the client may not use this grant
	ErrUnauthorizedClient = func(description string) *OAuthError {
		return NewOAuthError(ErrorCodeUnauthorizedClient, description, 400)
	}

	// ErrAccessDenied indicates the authenticated identity was not admitted
	ErrAccessDenied = func(description string) *OAuthError {
		return NewOAuthError(ErrorCodeAccessDenied, description, 403)
	}

	// ErrUnsupportedResponseType indicates a response_type other than "code"
	ErrUnsupportedResponseType = func(description string) *OAuthError {
		return NewOAuthError(ErrorCodeUnsupportedResponseType, description, 400)
	}

	// ErrUnsupportedGrantType indicates a grant_type other than
	// "authorization_code"
	ErrUnsupportedGrantType = func(description string) *OAuthError {
		return NewOAuthError(ErrorCodeUnsupportedGrantType, description, 400)
	}

	// ErrInvalidScope indicates a malformed or unknown scope
	ErrInvalidScope = func(description string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidScope, description, 400)
	}

	// ErrServerError indicates an internal failure
	ErrServerError = func(description string) *OAuthError {
		return NewOAuthError(ErrorCodeServerError, description, 500)
	}

	// ErrInvalidToken indicates a missing, unknown, expired, or revoked
	// bearer token
	ErrInvalidToken = func(description string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidToken, description, 401)
	}
)
