// Package instrumentation provides OpenTelemetry metrics and tracing for the
// authorization server.
//
// A single Instrumentation value owns the meter and tracer providers and a
// Metrics holder with pre-created instruments for the HTTP, flow, storage,
// security, and provider layers. When Config.Enabled is false the no-op
// providers are used and recording has zero overhead, so call sites never
// need nil checks beyond the Instrumentation pointer itself.
package instrumentation
