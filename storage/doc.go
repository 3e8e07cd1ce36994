// Package storage provides the persistence contracts for the authorization
// server: registered clients, in-flight authorization sessions, single-use
// authorization codes, and issued access tokens.
//
// The interfaces are deliberately small so a single-process map-with-mutex
// store and a distributed cache are interchangeable. The one subtle contract
// is FlowStore.RedeemAuthorizationCode, which must execute its checks and the
// used=true write atomically; see its documentation.
//
// Implementations:
//   - storage/memory: mutex-guarded in-memory store with background cleanup
package storage
