// Package flows contains the orchestration of multi-step session operations.
//
// Each flow (RunRefresh, Notifier.Go) accepts a typed dependency struct of
// callbacks owned by the session manager. Flows never touch session state
// directly; the callbacks apply transitions under the manager's lock.
//
// # Architecture boundaries
//
// Flows coordinate the ordering of backend calls and state commits: read the
// refresh token, call the backend, then commit or expire, discarding results
// whose generation went stale. Ownership of state, storage and backend stays
// with the Manager.
//
// # What this package must NOT do
//
//   - Hold session state between calls.
//   - Import goAuthClient (to avoid import cycles).
//   - Retry backend calls.
package flows
