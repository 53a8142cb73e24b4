package goAuthClient

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/goAuthClient/internal/flows"
	"github.com/MrEthical07/goAuthClient/jwt"
	"github.com/MrEthical07/goAuthClient/store"
)

var errMissingRefreshToken = errors.New("no refresh token")

// Refresh exchanges the refresh token for a new token pair. Concurrent
// callers share one backend call. Any failure resets the session and is
// returned as ErrSessionExpired wrapping the cause. A caller whose ctx ends
// stops waiting while the shared refresh runs to completion.
func (m *Manager) Refresh(ctx context.Context) error {
	if err := m.ready(); err != nil {
		return err
	}
	ctx, _ = EnsureRequestID(ctx)

	m.mu.Lock()
	phase, gen := m.phase, m.generation
	m.mu.Unlock()

	switch phase {
	case PhaseInitializing:
		return ErrSessionInitializing
	case PhaseUnauthenticated:
		return newError(ErrSessionExpired, 0, "", errMissingRefreshToken)
	}
	return m.refreshGeneration(ctx, gen, "")
}

// AccessToken returns a usable access token. When proactive refresh is
// enabled and the token is a JWT expiring within Config.Refresh.Leeway,
// the token is refreshed first.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	if err := m.ready(); err != nil {
		return "", err
	}

	m.mu.Lock()
	phase, access, gen := m.phase, m.access, m.generation
	m.mu.Unlock()

	if !phase.HasSession() {
		return "", sessionError(phase)
	}
	if !m.config.Refresh.Proactive || !jwt.ExpiresWithin(access, m.clock.Now(), m.config.Refresh.Leeway) {
		return access, nil
	}

	ctx, _ = EnsureRequestID(ctx)
	if err := m.refreshGeneration(ctx, gen, ""); err != nil {
		return "", err
	}

	m.mu.Lock()
	phase, access = m.phase, m.access
	m.mu.Unlock()
	if !phase.HasSession() {
		return "", newError(ErrSessionExpired, 0, "", nil)
	}
	return access, nil
}

// HandleRejection reports that an authenticated request carrying
// rejectedToken was answered with 401. If the session already moved past
// that token it returns nil; otherwise it triggers one coalesced refresh
// and returns its outcome. The rejected request is never retried here.
func (m *Manager) HandleRejection(ctx context.Context, rejectedToken string) error {
	if err := m.ready(); err != nil {
		return err
	}

	m.mu.Lock()
	phase, access, gen := m.phase, m.access, m.generation
	m.mu.Unlock()

	switch {
	case phase == PhaseInitializing:
		return ErrSessionInitializing
	case !phase.HasSession():
		return newError(ErrSessionExpired, 0, "", nil)
	case rejectedToken != "" && rejectedToken != access:
		return nil
	}

	m.metricInc(MetricTokenRejected)
	ctx, _ = EnsureRequestID(ctx)
	return m.refreshGeneration(ctx, gen, rejectedToken)
}

// refreshGeneration joins or starts the refresh flight for gen. rejected is
// rechecked under the lock when the flight begins, so a rejection of a
// token that was rotated in the meantime costs no backend call.
func (m *Manager) refreshGeneration(ctx context.Context, gen uint64, rejected string) error {
	res, shared := m.refreshes.Join(ctx, gen, func(flightCtx context.Context) flows.RefreshResult {
		res := flows.RunRefresh(flightCtx, gen, rejected, m.refreshDeps())
		m.recordRefresh(flightCtx, gen, res)
		return res
	})
	if shared {
		m.metricInc(MetricRefreshCoalesced)
	}
	return refreshError(res)
}

func (m *Manager) refreshDeps() flows.RefreshDeps[Grant] {
	return flows.RefreshDeps[Grant]{
		Begin: func(_ context.Context, gen uint64, rejected string) (string, flows.BeginStatus) {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.generation != gen || !m.phase.HasSession() {
				return "", flows.BeginStale
			}
			if rejected != "" && rejected != m.access {
				return "", flows.BeginRotated
			}
			m.refreshUserRev = m.userRev
			if m.phase != PhaseRefreshing {
				m.phase = PhaseRefreshing
				m.publishLocked()
			}
			return m.refresh, flows.BeginProceed
		},
		Call: func(ctx context.Context, refreshToken string) (Grant, error) {
			start := m.clock.Now()
			grant, err := m.backend.Refresh(ctx, refreshToken)
			m.observeBackend(start)
			return grant, err
		},
		Commit: func(ctx context.Context, gen uint64, grant Grant) (bool, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.generation != gen {
				return false, nil
			}
			refresh := grant.RefreshToken
			if refresh == "" {
				refresh = m.refresh
			}
			if err := m.store.Set(ctx, store.Pair{Access: grant.AccessToken, Refresh: refresh}); err != nil {
				m.metricInc(MetricStorageFailure)
				return false, storageError("persist tokens", err)
			}
			m.access = grant.AccessToken
			m.refresh = refresh
			// A profile update committed while the refresh was in flight is
			// newer than the user carried by the grant.
			if grant.User.ID != "" && m.userRev == m.refreshUserRev {
				user := grant.User
				m.user = &user
			}
			m.phase = PhaseAuthenticated
			m.publishLocked()
			return true, nil
		},
		Expire: func(ctx context.Context, gen uint64) bool {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.generation != gen {
				return false
			}
			m.clearStorageLocked(ctx)
			m.resetLocked()
			return true
		},
		ErrMissingToken: errMissingRefreshToken,
	}
}

func (m *Manager) recordRefresh(ctx context.Context, gen uint64, res flows.RefreshResult) {
	if res.Skipped {
		return
	}
	snap := m.Snapshot()
	var userID string
	if snap.User != nil {
		userID = snap.User.ID
	}

	switch res.Failure {
	case flows.RefreshFailureNone:
		m.metricInc(MetricRefreshSuccess)
		m.emitAudit(ctx, auditEventRefresh, true, userID, snap.Phase, snap.Generation, nil, nil)
	case flows.RefreshFailureSuperseded:
		m.metricInc(MetricRefreshDiscarded)
		m.emitAudit(ctx, auditEventRefresh, false, userID, snap.Phase, snap.Generation, ErrSuperseded, nil)
	default:
		m.metricInc(MetricRefreshFailure)
		m.metricInc(MetricSessionExpired)
		if res.Err != nil {
			m.warn(ctx, "goAuthClient: refresh failed, session expired", res.Err)
		}
		m.emitAudit(ctx, auditEventExpired, false, "", snap.Phase, snap.Generation, res.Err, func() map[string]string {
			return map[string]string{"refreshed_generation": strconv.FormatUint(gen, 10)}
		})
	}
}

func refreshError(res flows.RefreshResult) error {
	switch res.Failure {
	case flows.RefreshFailureNone:
		return nil
	case flows.RefreshFailureCanceled:
		return res.Err
	case flows.RefreshFailureSuperseded:
		cause := ErrSuperseded
		if res.Err != nil {
			cause = errors.Join(ErrSuperseded, res.Err)
		}
		return newError(ErrSessionExpired, 0, "", cause)
	default:
		return newError(ErrSessionExpired, 0, "", res.Err)
	}
}
