// Package testutil provides test fixtures shared across packages: random
// string generation, PKCE pairs, and populated storage records.
package testutil
