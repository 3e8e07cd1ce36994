// Package memory provides an in-memory implementation of the storage
// interfaces backed by mutex-guarded maps with a background cleanup loop.
//
// A single Store implements ClientStore, FlowStore, and TokenStore. Suitable
// for development, testing, and single-instance deployments; multi-instance
// deployments need a shared backend implementing the same interfaces.
package memory
