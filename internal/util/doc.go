// Package util provides shared string helpers that don't fit into
// domain-specific packages.
package util
