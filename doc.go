// Package goAuthClient is a client-side authentication session manager.
//
// A [Manager] owns the lifecycle of an access/refresh token pair: it
// hydrates a persisted session at startup, logs in and out, refreshes
// tokens (coalescing concurrent refreshes into one backend call), and
// publishes read-only [Snapshot] values to subscribers. Route gating lives
// in the guard sub-package and reads the same snapshots.
//
// # State machine
//
//	Initializing -> Unauthenticated | Authenticated
//	Authenticated -> Refreshing -> Authenticated | Unauthenticated
//
// Initializing is left exactly once, by [Manager.Hydrate].
//
// # Logout wins
//
// Every reset to Unauthenticated (and every login) bumps a generation
// counter. Operations capture the generation before calling the backend and
// discard results whose generation went stale, so a refresh that completes
// after a logout never resurrects the session.
//
// # Architecture boundaries
//
// goAuthClient is the public surface: [Manager], [Builder], [Config], value
// types and errors. The HTTP backend lives in backend/, token storage in
// store/, route gating in guard/. Flow orchestration, audit dispatch and
// metric storage live under internal/.
//
// # What this package must NOT do
//
//   - Verify token signatures or hash passwords.
//   - Retry failed backend calls. Retry after refresh is the caller's job.
//   - Hold its mutex across a backend call.
//   - Import any sub-package that re-imports goAuthClient (no import cycles).
package goAuthClient
