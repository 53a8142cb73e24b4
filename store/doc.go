// Package store provides persistence for the client's token pair.
//
// # Layout
//
// A token pair is two opaque strings kept under two well-known keys
// ([AccessTokenKey] and [RefreshTokenKey] by default). The absence of the
// access-token key is the only signal the session manager uses at startup to
// decide whether a persisted session exists.
//
// # Implementations
//
//   - [Memory]: process-local map, used by tests and embedded callers.
//   - [Redis]: go-redis backed slot; both keys are written in one MULTI/EXEC
//     and removed in one DEL.
//   - [File]: JSON file written with 0600 permissions through an atomic rename.
//
// # Architecture boundaries
//
// This package owns storage of the pair only. It does NOT decide when tokens
// are written or cleared; ordering relative to session transitions belongs to
// the Manager.
//
// # What this package must NOT do
//
//   - Import goAuthClient (no upward imports).
//   - Inspect, validate, or decode token contents.
package store
