package security

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

// newTestAuditor returns an auditor whose output is captured in the buffer.
func newTestAuditor(enabled bool) (*Auditor, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return NewAuditor(logger, enabled), &buf
}

func TestNewAuditor_NilLogger(t *testing.T) {
	a := NewAuditor(nil, true)
	if a.logger == nil {
		t.Error("NewAuditor(nil, true) should fall back to the default logger")
	}
}

func TestLogEvent_Disabled(t *testing.T) {
	a, buf := newTestAuditor(false)

	a.LogEvent(Event{Type: EventTokenIssued, Identity: "alice@example.com"})

	if buf.Len() != 0 {
		t.Errorf("disabled auditor produced output: %q", buf.String())
	}
}

func TestLogEvent_HashesIdentity(t *testing.T) {
	a, buf := newTestAuditor(true)

	a.LogEvent(Event{Type: EventTokenIssued, Identity: "alice@example.com"})

	out := buf.String()
	if strings.Contains(out, "alice@example.com") {
		t.Errorf("raw identity leaked into audit log: %q", out)
	}
	if !strings.Contains(out, hashForLogging("alice@example.com")) {
		t.Errorf("audit log missing identity hash: %q", out)
	}
	if !strings.Contains(out, EventTokenIssued) {
		t.Errorf("audit log missing event type: %q", out)
	}
}

func TestAuditor_EventMethods(t *testing.T) {
	tests := []struct {
		name      string
		log       func(a *Auditor)
		wantType  string
		wantField string
	}{
		{
			name:      "client registered",
			log:       func(a *Auditor) { a.LogClientRegistered("client_abc", "mcp-client", "10.0.0.1") },
			wantType:  EventClientRegistered,
			wantField: "client_abc",
		},
		{
			name:      "flow started",
			log:       func(a *Auditor) { a.LogFlowStarted("client_abc", "10.0.0.1") },
			wantType:  EventFlowStarted,
			wantField: "10.0.0.1",
		},
		{
			name:      "admission denied",
			log:       func(a *Auditor) { a.LogAdmissionDenied("mallory@example.com", "client_abc", "10.0.0.1", "not_mapped") },
			wantType:  EventAdmissionDenied,
			wantField: "not_mapped",
		},
		{
			name:      "authorization code issued",
			log:       func(a *Auditor) { a.LogAuthorizationCodeIssued("alice@example.com", "client_abc", "10.0.0.1") },
			wantType:  EventAuthorizationCodeIssued,
			wantField: "client_abc",
		},
		{
			name:      "code redemption failed",
			log:       func(a *Auditor) { a.LogCodeRedemptionFailed("client_abc", "10.0.0.1", "code_reuse") },
			wantType:  EventCodeRedemptionFailed,
			wantField: "code_reuse",
		},
		{
			name:      "token issued",
			log:       func(a *Auditor) { a.LogTokenIssued("alice@example.com", "client_abc", "10.0.0.1", "openid profile") },
			wantType:  EventTokenIssued,
			wantField: "openid profile",
		},
		{
			name:      "token validation failed",
			log:       func(a *Auditor) { a.LogTokenValidationFailed("10.0.0.1", "bearer_rejected") },
			wantType:  EventTokenValidationFailed,
			wantField: "bearer_rejected",
		},
		{
			name:      "provider exchange failed",
			log:       func(a *Auditor) { a.LogProviderExchangeFailed("client_abc", "10.0.0.1", "code_exchange") },
			wantType:  EventProviderExchangeFailed,
			wantField: "code_exchange",
		},
		{
			name:      "rate limit exceeded",
			log:       func(a *Auditor) { a.LogRateLimitExceeded("10.0.0.1", "token") },
			wantType:  EventRateLimitExceeded,
			wantField: "token",
		},
		{
			name:      "mappings reloaded",
			log:       func(a *Auditor) { a.LogMappingsReloaded(7) },
			wantType:  EventMappingsReloaded,
			wantField: "mapping_count=7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, buf := newTestAuditor(true)

			tt.log(a)

			out := buf.String()
			if !strings.Contains(out, tt.wantType) {
				t.Errorf("output missing event type %q: %q", tt.wantType, out)
			}
			if !strings.Contains(out, tt.wantField) {
				t.Errorf("output missing %q: %q", tt.wantField, out)
			}
		})
	}
}

func TestHashForLogging(t *testing.T) {
	h1 := hashForLogging("alice@example.com")
	h2 := hashForLogging("alice@example.com")
	h3 := hashForLogging("bob@example.com")

	if h1 != h2 {
		t.Errorf("hashForLogging not deterministic: %q != %q", h1, h2)
	}
	if h1 == h3 {
		t.Error("different inputs produced the same hash")
	}
	if len(h1) != 16 {
		t.Errorf("hash length = %d, want 16", len(h1))
	}
	if got := hashForLogging(""); got != "<empty>" {
		t.Errorf("hashForLogging(\"\") = %q, want %q", got, "<empty>")
	}
}
