package security

import (
	"net/http"
	"net/url"
)

// SetSecurityHeaders sets security headers on HTTP responses.
// The policy is strict: OAuth endpoints serve no scripts and must never be
// framed or cached.
func SetSecurityHeaders(w http.ResponseWriter, serverURL string) {
	// Prevent clickjacking
	w.Header().Set("X-Frame-Options", "DENY")

	// Prevent MIME type sniffing
	w.Header().Set("X-Content-Type-Options", "nosniff")

	// Legacy browser XSS protection
	w.Header().Set("X-XSS-Protection", "1; mode=block")

	// No inline scripts, no external resources
	w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

	// Don't leak referrer information
	w.Header().Set("Referrer-Policy", "no-referrer")

	// HSTS only when the server itself is HTTPS
	if parsed, err := url.Parse(serverURL); err == nil && parsed.Scheme == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	// OAuth responses carry secrets; never cache them
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	w.Header().Set("Pragma", "no-cache")
}

// SetHTMLSecurityHeaders sets security headers for the human-readable error
// and denial pages served by the callback endpoint. Inline styles are allowed
// so the pages can render without external resources.
func SetHTMLSecurityHeaders(w http.ResponseWriter, serverURL string) {
	SetSecurityHeaders(w, serverURL)
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; frame-ancestors 'none'")
}
