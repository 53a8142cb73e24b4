package goAuthClient

import (
	"context"
	"strings"

	"github.com/MrEthical07/goAuthClient/store"
)

// UpdateProfile sends a partial profile update. It requires a session
// (authenticated or refreshing) and does not contact the backend
// otherwise. On success the server record replaces the session user.
func (m *Manager) UpdateProfile(ctx context.Context, update ProfileUpdate) (User, error) {
	if err := m.ready(); err != nil {
		return User{}, err
	}
	ctx, _ = EnsureRequestID(ctx)

	access, gen, err := m.currentSession()
	if err != nil {
		m.metricInc(MetricProfileUpdateFailure)
		return User{}, err
	}

	start := m.clock.Now()
	user, err := m.backend.UpdateProfile(ctx, access, update)
	m.observeBackend(start)
	if err != nil {
		m.metricInc(MetricProfileUpdateFailure)
		err = m.afterRejection(ctx, access, err)
		m.emitAudit(ctx, auditEventProfileUpdated, false, "", PhaseAuthenticated, gen, err, nil)
		return User{}, err
	}

	m.mu.Lock()
	if m.generation != gen || !m.phase.HasSession() {
		m.mu.Unlock()
		m.metricInc(MetricProfileUpdateFailure)
		return User{}, newError(ErrSuperseded, 0, "", nil)
	}
	m.user = (&user).clone()
	m.userRev++
	m.publishLocked()
	phase := m.phase
	m.mu.Unlock()

	m.metricInc(MetricProfileUpdateSuccess)
	m.emitAudit(ctx, auditEventProfileUpdated, true, user.ID, phase, gen, nil, func() map[string]string {
		fields := make([]string, 0, 2)
		if update.Name != nil {
			fields = append(fields, "name")
		}
		if update.Email != nil {
			fields = append(fields, "email")
		}
		return map[string]string{"fields": strings.Join(fields, ",")}
	})
	return user, nil
}

// ChangePassword changes the password of the session user. When the
// backend answers with a new token pair it is persisted; otherwise the
// current tokens are kept and a later 401 goes through HandleRejection.
func (m *Manager) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	if err := m.ready(); err != nil {
		return err
	}
	ctx, _ = EnsureRequestID(ctx)

	if req.CurrentPassword == "" || req.NewPassword == "" {
		return newError(ErrValidation, 0, "Current and new password are required.", nil)
	}
	access, gen, err := m.currentSession()
	if err != nil {
		m.metricInc(MetricPasswordChangeFailure)
		return err
	}

	start := m.clock.Now()
	grant, err := m.backend.ChangePassword(ctx, access, req)
	m.observeBackend(start)
	if err != nil {
		m.metricInc(MetricPasswordChangeFailure)
		err = m.afterRejection(ctx, access, err)
		m.emitAudit(ctx, auditEventPasswordChanged, false, "", PhaseAuthenticated, gen, err, nil)
		return err
	}

	rotated := grant != nil && grant.AccessToken != ""
	if rotated {
		if err := m.commitRotation(ctx, gen, *grant); err != nil {
			m.metricInc(MetricPasswordChangeFailure)
			m.emitAudit(ctx, auditEventPasswordChanged, false, "", PhaseAuthenticated, gen, err, nil)
			return err
		}
	}

	m.metricInc(MetricPasswordChangeSuccess)
	snap := m.Snapshot()
	var userID string
	if snap.User != nil {
		userID = snap.User.ID
	}
	m.emitAudit(ctx, auditEventPasswordChanged, true, userID, snap.Phase, snap.Generation, nil, func() map[string]string {
		if rotated {
			return map[string]string{"tokens_rotated": "true"}
		}
		return map[string]string{"tokens_rotated": "false"}
	})
	return nil
}

func (m *Manager) commitRotation(ctx context.Context, gen uint64, grant Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen || !m.phase.HasSession() {
		return newError(ErrSuperseded, 0, "", nil)
	}
	refresh := grant.RefreshToken
	if refresh == "" {
		refresh = m.refresh
	}
	if err := m.store.Set(ctx, store.Pair{Access: grant.AccessToken, Refresh: refresh}); err != nil {
		m.metricInc(MetricStorageFailure)
		return storageError("persist tokens", err)
	}
	m.access = grant.AccessToken
	m.refresh = refresh
	if grant.User.ID != "" {
		user := grant.User
		m.user = &user
		m.userRev++
	}
	m.publishLocked()
	return nil
}

// Register creates an account. The session is not changed; success asks
// the router to show the login view.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) (Navigation, error) {
	if err := m.ready(); err != nil {
		return Navigation{}, err
	}
	ctx, _ = EnsureRequestID(ctx)

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return Navigation{}, newError(ErrValidation, 0, "Email and password are required.", nil)
	}

	start := m.clock.Now()
	err := m.backend.Register(ctx, req)
	m.observeBackend(start)
	return m.statelessResult(ctx, auditEventRegistered, MetricRegisterSuccess, MetricRegisterFailure, err, NavLogin)
}

// VerifyEmail confirms an email verification token.
func (m *Manager) VerifyEmail(ctx context.Context, token string) (Navigation, error) {
	if err := m.ready(); err != nil {
		return Navigation{}, err
	}
	ctx, _ = EnsureRequestID(ctx)

	if strings.TrimSpace(token) == "" {
		return Navigation{}, newError(ErrValidation, 0, "Verification token is required.", nil)
	}

	start := m.clock.Now()
	err := m.backend.VerifyEmail(ctx, token)
	m.observeBackend(start)
	return m.statelessResult(ctx, auditEventEmailVerified, MetricEmailVerificationSuccess, MetricEmailVerificationFailure, err, NavLogin)
}

// RequestPasswordReset asks the backend to send a reset link to email.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) error {
	if err := m.ready(); err != nil {
		return err
	}
	ctx, _ = EnsureRequestID(ctx)

	if strings.TrimSpace(email) == "" {
		return newError(ErrValidation, 0, "Email is required.", nil)
	}

	start := m.clock.Now()
	err := m.backend.RequestPasswordReset(ctx, email)
	m.observeBackend(start)
	_, err = m.statelessResult(ctx, auditEventPasswordForgot, MetricPasswordResetRequest, MetricPasswordResetFailure, err, NavNone)
	return err
}

// ResetPassword sets a new password using a reset token.
func (m *Manager) ResetPassword(ctx context.Context, token, newPassword string) (Navigation, error) {
	if err := m.ready(); err != nil {
		return Navigation{}, err
	}
	ctx, _ = EnsureRequestID(ctx)

	if strings.TrimSpace(token) == "" || newPassword == "" {
		return Navigation{}, newError(ErrValidation, 0, "Reset token and new password are required.", nil)
	}

	start := m.clock.Now()
	err := m.backend.ResetPassword(ctx, token, newPassword)
	m.observeBackend(start)
	return m.statelessResult(ctx, auditEventPasswordReset, MetricPasswordResetSuccess, MetricPasswordResetFailure, err, NavLogin)
}

// statelessResult records the outcome of a call that never touches the
// session.
func (m *Manager) statelessResult(ctx context.Context, event string, success, failure MetricID, err error, target NavTarget) (Navigation, error) {
	snap := m.Snapshot()
	if err != nil {
		m.metricInc(failure)
		m.emitAudit(ctx, event, false, "", snap.Phase, snap.Generation, err, nil)
		return Navigation{}, err
	}
	m.metricInc(success)
	m.emitAudit(ctx, event, true, "", snap.Phase, snap.Generation, nil, nil)
	return m.navigate(target), nil
}

func (m *Manager) currentSession() (string, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.phase.HasSession() {
		return "", 0, sessionError(m.phase)
	}
	return m.access, m.generation, nil
}

// afterRejection routes a 401 on a bearer request through HandleRejection.
// The original error is returned unless the refresh expired the session.
func (m *Manager) afterRejection(ctx context.Context, access string, err error) error {
	if !isTokenRejected(err) {
		return err
	}
	if rerr := m.HandleRejection(ctx, access); rerr != nil {
		return rerr
	}
	return err
}
