package security

import "time"

const (
	// DefaultClockSkewGracePeriod is the grace period applied to expiry
	// checks on flow state to absorb NTP drift between systems. It is not
	// applied to access token validation, which is strict.
	DefaultClockSkewGracePeriod = 5 * time.Second
)

// IsTokenExpired checks expiry with the default clock skew grace period
func IsTokenExpired(expiresAt time.Time) bool {
	return IsTokenExpiredWithGracePeriod(expiresAt, DefaultClockSkewGracePeriod)
}

// IsTokenExpiredWithGracePeriod checks expiry with a custom grace period.
// A zero expiresAt means no expiration.
func IsTokenExpiredWithGracePeriod(expiresAt time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}

	return time.Now().After(expiresAt.Add(gracePeriod))
}
