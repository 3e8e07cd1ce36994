package threatgate

import (
	"errors"
	"fmt"
	"testing"
)

func TestOAuthError_Error(t *testing.T) {
	err := NewOAuthError(ErrorCodeInvalidGrant, "authorization code expired", 400)
	if got := err.Error(); got != "invalid_grant: authorization code expired" {
		t.Errorf("Error() = %q", got)
	}
}

func TestOAuthError_Constructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *OAuthError
		wantCode   string
		wantStatus int
	}{
		{"invalid request", ErrInvalidRequest("x"), ErrorCodeInvalidRequest, 400},
		{"invalid client", ErrInvalidClient("x"), ErrorCodeInvalidClient, 401},
		{"invalid grant", ErrInvalidGrant("x"), ErrorCodeInvalidGrant, 400},
		{"unauthorized client", ErrUnauthorizedClient("x"), ErrorCodeUnauthorizedClient, 400},
		{"access denied", ErrAccessDenied("x"), ErrorCodeAccessDenied, 403},
		{"unsupported response type", ErrUnsupportedResponseType("x"), ErrorCodeUnsupportedResponseType, 400},
		{"unsupported grant type", ErrUnsupportedGrantType("x"), ErrorCodeUnsupportedGrantType, 400},
		{"invalid scope", ErrInvalidScope("x"), ErrorCodeInvalidScope, 400},
		{"server error", ErrServerError("x"), ErrorCodeServerError, 500},
		{"invalid token", ErrInvalidToken("x"), ErrorCodeInvalidToken, 401},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.wantCode)
			}
			if tt.err.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", tt.err.Status, tt.wantStatus)
			}
			if tt.err.Description != "x" {
				t.Errorf("Description = %q, want %q", tt.err.Description, "x")
			}
		})
	}
}

func TestOAuthError_ErrorsAs(t *testing.T) {
	wrapped := fmt.Errorf("token exchange: %w", ErrInvalidGrant("client ID mismatch"))

	var oauthErr *OAuthError
	if !errors.As(wrapped, &oauthErr) {
		t.Fatal("errors.As failed to unwrap *OAuthError")
	}
	if oauthErr.Code != ErrorCodeInvalidGrant {
		t.Errorf("Code = %q, want %q", oauthErr.Code, ErrorCodeInvalidGrant)
	}
}
