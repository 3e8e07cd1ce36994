package security

// Event type constants for security audit logging.
// These constants ensure consistency across the codebase and prevent typos
// when logging security-relevant events.
const (
	// Client registration events

	// EventClientRegistered is logged when a new OAuth client is registered
	EventClientRegistered = "client_registered"

	// Authorization flow events

	// EventFlowStarted is logged when an authorization flow is initiated
	EventFlowStarted = "authorization_flow_started"

	// EventAdmissionDenied is logged when an identity authenticated by the
	// provider has no enabled credential mapping (HTTP 403)
	EventAdmissionDenied = "admission_denied"

	// EventAuthorizationCodeIssued is logged when an authorization code is issued
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventCodeRedemptionFailed is logged when a token request presents an
	// invalid, expired, reused, or mismatched authorization code
	EventCodeRedemptionFailed = "code_redemption_failed"

	// Token lifecycle events

	// EventTokenIssued is logged when a new access token is issued to a client
	EventTokenIssued = "token_issued"

	// EventTokenValidationFailed is logged when bearer token validation fails
	EventTokenValidationFailed = "token_validation_failed"

	// Upstream provider events

	// EventProviderExchangeFailed is logged when the provider code exchange
	// or identity lookup fails during the callback
	EventProviderExchangeFailed = "provider_exchange_failed"

	// Abuse events

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"

	// Operational events

	// EventMappingsReloaded is logged when the credential mapping table is reloaded
	EventMappingsReloaded = "mappings_reloaded"
)
