// Package teamgate provides a multi-tenant sign-in engine: a generic request
// pipeline with fixed, short-circuiting stages and an MFA-capable credential
// orchestrator issuing Redis-backed sessions with JWT bearer credentials.
//
// The package is designed for concurrent server workloads: Engine methods are safe
// to call from multiple goroutines after initialization through [Builder.Build].
//
// # Pipeline
//
// Every request travels the same stage order: logging wraps the whole dispatch,
// validation runs every registered validator and merges failures, the caller's
// principal is attached, the acting user and team are hydrated when the request
// type carries the matching marker interface, and finally the handler runs inside
// a transaction that commits only on success (or on PreconditionRequired for
// request types that opt in).
//
// # Architecture boundaries
//
// teamgate is the public surface. It exposes [Engine], [Builder], [Config],
// [Outcome], [Result] and the command types. Audit dispatch and random token
// generation live under internal/ and are never exported directly.
//
// # What this package must NOT do
//
//   - Expose Redis clients, store transactions, or encoding details in its
//     public API.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//   - Import any sub-package that re-imports teamgate (no import cycles).
package teamgate
