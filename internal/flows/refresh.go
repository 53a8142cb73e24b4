package flows

import (
	"context"
	"strconv"

	"golang.org/x/sync/singleflight"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMissingToken
	RefreshFailureBackend
	RefreshFailureStorage
	RefreshFailureSuperseded
	RefreshFailureCanceled
)

// RefreshResult is the outcome shared by every caller joined on one flight.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	// Skipped is set when the rejected token had already been rotated and
	// no backend call was made.
	Skipped bool
}

// BeginStatus is the outcome of RefreshDeps.Begin.
type BeginStatus int

const (
	// BeginProceed means the session entered the refreshing phase.
	BeginProceed BeginStatus = iota
	// BeginStale means the generation moved on.
	BeginStale
	// BeginRotated means the rejected access token is no longer current.
	BeginRotated
)

// RefreshDeps captures refresh flow dependencies. Begin, Commit and Expire
// run under the manager lock and report false when generation is stale.
type RefreshDeps[G any] struct {
	// Begin enters the refreshing phase and returns the stored refresh token.
	// A non-empty rejected token that no longer matches the session's access
	// token yields BeginRotated.
	Begin func(ctx context.Context, generation uint64, rejected string) (string, BeginStatus)
	// Call exchanges the refresh token with the backend. Runs unlocked.
	Call func(ctx context.Context, refreshToken string) (G, error)
	// Commit persists grant and returns to the authenticated phase. A
	// non-nil error leaves state untouched.
	Commit func(ctx context.Context, generation uint64, grant G) (bool, error)
	// Expire applies logout semantics.
	Expire func(ctx context.Context, generation uint64) bool

	ErrMissingToken error
}

// RunRefresh executes one refresh for generation. rejected is the access
// token a request was refused with, or empty for an explicit refresh.
func RunRefresh[G any](ctx context.Context, generation uint64, rejected string, deps RefreshDeps[G]) RefreshResult {
	refreshToken, status := deps.Begin(ctx, generation, rejected)
	switch status {
	case BeginStale:
		return RefreshResult{Failure: RefreshFailureSuperseded}
	case BeginRotated:
		return RefreshResult{Skipped: true}
	}
	if refreshToken == "" {
		if !deps.Expire(ctx, generation) {
			return RefreshResult{Failure: RefreshFailureSuperseded}
		}
		return RefreshResult{Failure: RefreshFailureMissingToken, Err: deps.ErrMissingToken}
	}

	grant, err := deps.Call(ctx, refreshToken)
	if err != nil {
		if !deps.Expire(ctx, generation) {
			return RefreshResult{Failure: RefreshFailureSuperseded, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureBackend, Err: err}
	}

	applied, err := deps.Commit(ctx, generation, grant)
	if err != nil {
		if !deps.Expire(ctx, generation) {
			return RefreshResult{Failure: RefreshFailureSuperseded, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureStorage, Err: err}
	}
	if !applied {
		return RefreshResult{Failure: RefreshFailureSuperseded}
	}
	return RefreshResult{}
}

// RefreshGroup coalesces refreshes per session generation.
type RefreshGroup struct {
	group singleflight.Group
}

// Join runs fn once for every caller that joins while a flight for
// generation is pending. fn runs detached from the caller's cancellation;
// a caller whose ctx ends stops waiting and gets RefreshFailureCanceled.
// shared reports whether the result was delivered to more than one caller.
func (g *RefreshGroup) Join(ctx context.Context, generation uint64, fn func(context.Context) RefreshResult) (result RefreshResult, shared bool) {
	detached := context.WithoutCancel(ctx)
	ch := g.group.DoChan(strconv.FormatUint(generation, 10), func() (any, error) {
		return fn(detached), nil
	})

	select {
	case res := <-ch:
		return res.Val.(RefreshResult), res.Shared
	case <-ctx.Done():
		return RefreshResult{Failure: RefreshFailureCanceled, Err: ctx.Err()}, false
	}
}
