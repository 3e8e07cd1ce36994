// Package security provides security plumbing for the authorization server.
//
// It contains the audit logger (PII-hashing slog events), a token-bucket
// rate limiter with LRU eviction built on golang.org/x/time/rate, a
// sliding-window limiter for client registration, client IP extraction with
// trusted-proxy handling, request ID generation and middleware, secure
// response headers, and clock-skew-tolerant expiry helpers.
//
// Rate limiter usage:
//
//	limiter := security.NewRateLimiter(10, 20, logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow(clientIP) {
//		// 429
//	}
package security
