// Package guard decides what a protected route shows for a session snapshot.
//
// [Evaluate] is a pure function of a [goAuthClient.Snapshot] and a [Rule]:
//
//   - initializing: show a loading state, never redirect.
//   - unauthenticated: redirect to the login path.
//   - authenticated (or refreshing) without the required role: redirect to
//     the unauthorized path.
//   - otherwise: render.
//
// [Middleware] applies the decision to net/http handlers. [RequireSession]
// and [RequireRole] build the rule from the manager's route configuration.
//
// The guard only reads snapshots. It never refreshes, logs out or persists
// anything.
package guard
