// Package security provides security plumbing for the authorization server:
// rate limiting, audit logging, client IP extraction, request IDs, and
// secure response headers.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection. Identities are
// SHA-256 hashed before they reach the log stream.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	Identity  string
	ClientID  string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event Event) {
	if !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"identity_hash", hashForLogging(event.Identity),
		"client_id", event.ClientID,
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogClientRegistered logs when a new OAuth client is registered
func (a *Auditor) LogClientRegistered(clientID, clientName, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventClientRegistered,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"client_name": clientName,
		},
	})
}

// LogFlowStarted logs when an authorization flow is initiated
func (a *Auditor) LogFlowStarted(clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventFlowStarted,
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// LogAdmissionDenied logs when an authenticated identity is rejected because
// it has no enabled credential mapping
func (a *Auditor) LogAdmissionDenied(identity, clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventAdmissionDenied,
		Identity:  identity,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogAuthorizationCodeIssued logs when an authorization code is issued
func (a *Auditor) LogAuthorizationCodeIssued(identity, clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationCodeIssued,
		Identity:  identity,
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// LogCodeRedemptionFailed logs a failed authorization code redemption
func (a *Auditor) LogCodeRedemptionFailed(clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventCodeRedemptionFailed,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogTokenIssued logs when an access token is issued
func (a *Auditor) LogTokenIssued(identity, clientID, ipAddress, scope string) {
	a.LogEvent(Event{
		Type:      EventTokenIssued,
		Identity:  identity,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogTokenValidationFailed logs a failed bearer token validation
func (a *Auditor) LogTokenValidationFailed(ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventTokenValidationFailed,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogProviderExchangeFailed logs a failed code exchange or identity lookup
// against the upstream identity provider
func (a *Auditor) LogProviderExchangeFailed(clientID, ipAddress, stage string) {
	a.LogEvent(Event{
		Type:      EventProviderExchangeFailed,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"stage": stage,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(ipAddress, endpoint string) {
	a.LogEvent(Event{
		Type:      EventRateLimitExceeded,
		IPAddress: ipAddress,
		Details: map[string]any{
			"endpoint": endpoint,
		},
	})
}

// LogMappingsReloaded logs a credential mapping reload
func (a *Auditor) LogMappingsReloaded(count int) {
	a.LogEvent(Event{
		Type: EventMappingsReloaded,
		Details: map[string]any{
			"mapping_count": count,
		},
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
