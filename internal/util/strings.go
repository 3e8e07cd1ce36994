// Package util provides small shared helpers used across the server:
// string truncation for safe logging and URL normalization for
// redirect URI comparison.
package util

import "strings"

// SafeTruncate safely truncates a string to maxLen characters without
// panicking, for logging token prefixes. A negative maxLen yields "".
//
// Example:
//
//	SafeTruncate("very-long-token-abc123", 8) // "very-lon"
//	SafeTruncate("short", 10)                 // "short"
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// NormalizeURL normalizes a URL for comparison by removing trailing slashes,
// so registered and requested redirect URIs differing only in a trailing
// slash compare equal.
//
// Example:
//
//	NormalizeURL("https://example.com/") // "https://example.com"
func NormalizeURL(url string) string {
	return strings.TrimRight(url, "/")
}
