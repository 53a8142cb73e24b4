package guard

import (
	"context"
	"net/http"
	"net/url"

	goAuthClient "github.com/MrEthical07/goAuthClient"
)

// SnapshotSource is satisfied by *goAuthClient.Manager.
type SnapshotSource interface {
	Snapshot() goAuthClient.Snapshot
}

// RetryAfterSeconds is sent with the 503 answered while a session loads.
const RetryAfterSeconds = "1"

type snapshotContextKey struct{}

// SnapshotFromContext returns the snapshot the guard rendered with.
func SnapshotFromContext(ctx context.Context) (goAuthClient.Snapshot, bool) {
	snap, ok := ctx.Value(snapshotContextKey{}).(goAuthClient.Snapshot)
	return snap, ok
}

// Middleware enforces rule on every request using the current snapshot of
// source:
//
//   - loading: 503 with Retry-After.
//   - redirect: 303 to the path; login redirects carry the requested URI
//     in the "next" query parameter.
//   - render: next handler, with the snapshot in the request context.
func Middleware(source SnapshotSource, rule Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if source == nil {
				http.Error(w, "session unavailable", http.StatusServiceUnavailable)
				return
			}

			snap := source.Snapshot()
			decision := Evaluate(snap, rule)
			switch decision.Action {
			case ActionLoading:
				w.Header().Set("Retry-After", RetryAfterSeconds)
				http.Error(w, "session loading", http.StatusServiceUnavailable)
			case ActionRedirect:
				http.Redirect(w, r, redirectTarget(decision, r), http.StatusSeeOther)
			default:
				ctx := context.WithValue(r.Context(), snapshotContextKey{}, snap)
				next.ServeHTTP(w, r.WithContext(ctx))
			}
		})
	}
}

// RequireSession admits any authenticated user.
func RequireSession(source SnapshotSource, routes goAuthClient.RoutesConfig) func(http.Handler) http.Handler {
	return Middleware(source, RuleFor(routes, ""))
}

// RequireRole admits authenticated users holding role.
func RequireRole(source SnapshotSource, routes goAuthClient.RoutesConfig, role string) func(http.Handler) http.Handler {
	return Middleware(source, RuleFor(routes, role))
}

func redirectTarget(decision Decision, r *http.Request) string {
	path := decision.Path
	if path == "" {
		path = "/"
	}
	if !decision.ToLogin {
		return path
	}
	u, err := url.Parse(path)
	if err != nil {
		return path
	}
	q := u.Query()
	q.Set("next", r.URL.RequestURI())
	u.RawQuery = q.Encode()
	return u.String()
}
