package goAuthClient

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	internalaudit "github.com/MrEthical07/goAuthClient/internal/audit"
	"github.com/MrEthical07/goAuthClient/internal/flows"
	"github.com/MrEthical07/goAuthClient/store"
	"github.com/jonboulle/clockwork"
)

// Manager owns the client session: phase, user, tokens and generation.
// Methods are safe for concurrent use.
//
// Every transition happens under one mutex together with the storage
// write or clear it belongs to, and subscribers are notified before the
// mutex is released. The mutex is never held across a backend call.
type Manager struct {
	config  Config
	backend Backend
	store   store.Store
	logger  *slog.Logger
	clock   clockwork.Clock
	audit   *internalaudit.Dispatcher
	metrics *Metrics

	refreshes flows.RefreshGroup
	notifier  *flows.Notifier

	mu         sync.Mutex
	phase      Phase
	user       *User
	access     string
	refresh    string
	generation uint64
	hydrated   bool
	closed     bool
	subs       map[*Subscription]struct{}

	// userRev counts profile commits; refreshUserRev is userRev when the
	// pending refresh began.
	userRev        uint64
	refreshUserRev uint64
}

// Snapshot returns a copy of the current session state.
func (m *Manager) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// HasRole reports whether the session user has exactly role.
func (m *Manager) HasRole(role string) bool {
	return m.Snapshot().HasRole(role)
}

// Hydrate resolves the startup phase from persisted tokens. It must be
// called once; hydration failures settle in PhaseUnauthenticated and are
// not returned as errors.
func (m *Manager) Hydrate(ctx context.Context) (Snapshot, error) {
	if err := m.ready(); err != nil {
		return Snapshot{}, err
	}
	ctx, _ = EnsureRequestID(ctx)

	m.mu.Lock()
	if m.hydrated {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, ErrAlreadyHydrated
	}
	m.hydrated = true
	m.mu.Unlock()

	pair, err := m.store.Get(ctx)
	if err != nil {
		m.metricInc(MetricStorageFailure)
		m.warn(ctx, "goAuthClient: reading persisted tokens failed", err)
		return m.hydrateFailed(ctx, storageError("read tokens", err)), nil
	}

	if pair.Access == "" {
		snap := m.hydrateFailed(ctx, nil)
		return snap, nil
	}

	start := m.clock.Now()
	user, err := m.backend.CurrentUser(ctx, pair.Access)
	m.observeBackend(start)
	if err != nil {
		m.logger.InfoContext(ctx, "goAuthClient: persisted session rejected", slog.String("error", err.Error()))
		return m.hydrateFailed(ctx, err), nil
	}

	m.mu.Lock()
	m.user = &user
	m.access = pair.Access
	m.refresh = pair.Refresh
	m.phase = PhaseAuthenticated
	m.publishLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.metricInc(MetricHydrateSuccess)
	m.emitAudit(ctx, auditEventHydrated, true, user.ID, snap.Phase, snap.Generation, nil, nil)
	return snap, nil
}

func (m *Manager) hydrateFailed(ctx context.Context, cause error) Snapshot {
	m.mu.Lock()
	m.clearStorageLocked(ctx)
	m.resetLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if cause != nil {
		m.metricInc(MetricHydrateFailure)
	}
	m.emitAudit(ctx, auditEventHydrated, cause == nil, "", snap.Phase, snap.Generation, cause, nil)
	return snap
}

// Login exchanges credentials for a session. On success the tokens are
// persisted before the session becomes authenticated. On failure the
// session is untouched and the error carries the backend message.
func (m *Manager) Login(ctx context.Context, creds Credentials) (Navigation, error) {
	if err := m.ready(); err != nil {
		return Navigation{}, err
	}
	ctx, _ = EnsureRequestID(ctx)

	if strings.TrimSpace(creds.Identifier) == "" || creds.Secret == "" {
		return Navigation{}, newError(ErrValidation, 0, "Identifier and password are required.", nil)
	}

	m.mu.Lock()
	if m.phase == PhaseInitializing {
		m.mu.Unlock()
		return Navigation{}, ErrSessionInitializing
	}
	gen := m.generation
	m.mu.Unlock()

	start := m.clock.Now()
	grant, err := m.backend.Login(ctx, creds)
	m.observeBackend(start)
	if err != nil {
		m.metricInc(MetricLoginFailure)
		m.emitAudit(ctx, auditEventLogin, false, "", PhaseUnauthenticated, gen, err, nil)
		return Navigation{}, err
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		m.metricInc(MetricLoginFailure)
		return Navigation{}, newError(ErrSuperseded, 0, "", nil)
	}
	if err := m.store.Set(ctx, store.Pair{Access: grant.AccessToken, Refresh: grant.RefreshToken}); err != nil {
		m.mu.Unlock()
		m.metricInc(MetricStorageFailure)
		m.metricInc(MetricLoginFailure)
		serr := storageError("persist tokens", err)
		m.emitAudit(ctx, auditEventLogin, false, grant.User.ID, PhaseUnauthenticated, gen, serr, nil)
		return Navigation{}, serr
	}
	// A new session starts a new generation so results of the previous
	// session's in-flight operations are discarded.
	m.generation++
	user := grant.User
	m.user = &user
	m.access = grant.AccessToken
	m.refresh = grant.RefreshToken
	m.phase = PhaseAuthenticated
	m.userRev++
	m.publishLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.metricInc(MetricLoginSuccess)
	m.emitAudit(ctx, auditEventLogin, true, user.ID, snap.Phase, snap.Generation, nil, nil)
	return m.navigate(NavLanding), nil
}

// Logout ends the session locally and notifies the backend in the
// background. When already unauthenticated it only bumps the generation,
// discarding any login still in flight. The notify
// outcome never affects the result; a storage clear failure is returned
// after the session has been reset.
func (m *Manager) Logout(ctx context.Context) (Navigation, error) {
	if err := m.ready(); err != nil {
		return Navigation{}, err
	}
	ctx, _ = EnsureRequestID(ctx)

	m.mu.Lock()
	// Close may have run since ready; a notify started now would outlive it.
	if m.closed {
		m.mu.Unlock()
		return Navigation{}, ErrManagerNotReady
	}
	switch m.phase {
	case PhaseInitializing:
		m.mu.Unlock()
		return Navigation{}, ErrSessionInitializing
	case PhaseUnauthenticated:
		// Nothing to clear, but a login still in flight must not win.
		m.generation++
		m.mu.Unlock()
		return m.navigate(NavHome), nil
	}

	access := m.access
	var userID string
	if m.user != nil {
		userID = m.user.ID
	}
	clearErr := m.store.Clear(ctx)
	m.resetLocked()
	snap := m.snapshotLocked()
	if access != "" {
		m.notifier.Go(ctx, func(notifyCtx context.Context) error {
			start := m.clock.Now()
			err := m.backend.Logout(notifyCtx, access)
			m.observeBackend(start)
			return err
		})
	}
	m.mu.Unlock()

	m.metricInc(MetricLogout)
	if clearErr != nil {
		m.metricInc(MetricStorageFailure)
		serr := storageError("clear tokens", clearErr)
		m.emitAudit(ctx, auditEventLogout, false, userID, snap.Phase, snap.Generation, serr, nil)
		return m.navigate(NavHome), serr
	}
	m.emitAudit(ctx, auditEventLogout, true, userID, snap.Phase, snap.Generation, nil, nil)
	return m.navigate(NavHome), nil
}

func (m *Manager) logoutNotifyFailed(ctx context.Context, err error) {
	m.metricInc(MetricLogoutNotifyFailure)
	m.warn(ctx, "goAuthClient: logout notify failed", err)
}

// Close waits for background logout notifies, flushes audit events and
// closes every subscription. The Manager is unusable afterwards.
func (m *Manager) Close() {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.notifier.Close()
	if m.audit != nil {
		m.audit.Close()
	}

	m.mu.Lock()
	for sub := range m.subs {
		delete(m.subs, sub)
		close(sub.ch)
	}
	m.mu.Unlock()
}

func (m *Manager) ready() error {
	if m == nil {
		return ErrManagerNotReady
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerNotReady
	}
	return nil
}

func (m *Manager) navigate(target NavTarget) Navigation {
	return Navigation{Target: target, Path: m.config.Routes.Path(target)}
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		Phase:       m.phase,
		User:        m.user.clone(),
		AccessToken: m.access,
		Generation:  m.generation,
	}
}

// resetLocked drops to PhaseUnauthenticated and bumps the generation.
// Callers clear storage first.
func (m *Manager) resetLocked() {
	m.generation++
	m.user = nil
	m.access = ""
	m.refresh = ""
	m.phase = PhaseUnauthenticated
	m.publishLocked()
}

// clearStorageLocked clears persisted tokens on a path that cannot fail.
func (m *Manager) clearStorageLocked(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.metricInc(MetricStorageFailure)
		m.warn(ctx, "goAuthClient: clearing persisted tokens failed", err)
	}
}

func (m *Manager) warn(ctx context.Context, msg string, err error) {
	attrs := []any{slog.String("error", err.Error())}
	if id, ok := RequestIDFromContext(ctx); ok {
		attrs = append(attrs, slog.String("request_id", id))
	}
	m.logger.WarnContext(ctx, msg, attrs...)
}

func sessionError(phase Phase) error {
	if phase == PhaseInitializing {
		return ErrSessionInitializing
	}
	return newError(ErrNotAuthenticated, 0, "", nil)
}

func isTokenRejected(err error) bool {
	return errors.Is(err, ErrTokenRejected)
}
