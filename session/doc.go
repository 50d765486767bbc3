// Package session provides Redis-backed session persistence for authentication
// hot paths.
//
// # Encoding
//
// Sessions are stored as versioned JSON blobs. The schema version is embedded in
// every record; readers reject versions they do not understand instead of
// guessing.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model. It does
// NOT interpret signed credentials or enforce authentication policy — those
// responsibilities belong to the engine.
//
// # What this package must NOT do
//
//   - Import teamgate or jwt (no upward imports).
//   - Perform application-level authorization decisions.
//   - Store plaintext secrets in [Session] fields.
package session
