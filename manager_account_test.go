package goAuthClient

import (
	"context"
	"errors"
	"testing"
)

func ptr(s string) *string { return &s }

func TestUpdateProfileUnauthenticatedDoesNotContactBackend(t *testing.T) {
	fb := newFakeBackend()
	env := newTestEnv(t, fb, testConfig())
	_, _ = env.manager.Hydrate(context.Background())

	_, err := env.manager.UpdateProfile(context.Background(), ProfileUpdate{Name: ptr("Grace")})
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if fb.count("update_profile") != 0 {
		t.Fatal("backend must not be contacted")
	}
}

func TestUpdateProfileReplacesUserWithServerRecord(t *testing.T) {
	fb := newFakeBackend()
	fb.updateProfile = func(access string, update ProfileUpdate) (User, error) {
		if access != "T1" {
			t.Errorf("expected bearer T1, got %q", access)
		}
		u := testUser()
		u.Name = *update.Name
		u.Usage = map[string]int64{"documents": 3}
		return u, nil
	}
	env := newLoggedInEnv(t, fb)

	user, err := env.manager.UpdateProfile(context.Background(), ProfileUpdate{Name: ptr("Grace")})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if user.Name != "Grace" {
		t.Fatalf("unexpected user %+v", user)
	}
	snap := env.manager.Snapshot()
	if snap.User.Name != "Grace" || snap.User.Usage["documents"] != 3 {
		t.Fatalf("session user not replaced: %+v", snap.User)
	}
}

func TestUpdateProfileFailureLeavesUserUntouched(t *testing.T) {
	fb := newFakeBackend()
	fb.updateProfile = func(string, ProfileUpdate) (User, error) {
		return User{}, newError(ErrValidation, 422, "Name is too long", nil)
	}
	env := newLoggedInEnv(t, fb)

	_, err := env.manager.UpdateProfile(context.Background(), ProfileUpdate{Name: ptr("x")})
	if !errors.Is(err, ErrValidation) || ErrorMessage(err) != "Name is too long" {
		t.Fatalf("expected validation error with backend message, got %v", err)
	}
	if env.manager.Snapshot().User.Name != "Ada" {
		t.Fatal("user must be untouched on failure")
	}
}

func TestUpdateProfileTokenRejectedTriggersOneRefresh(t *testing.T) {
	fb := newFakeBackend()
	fb.updateProfile = func(string, ProfileUpdate) (User, error) {
		return User{}, newError(ErrTokenRejected, 401, "", nil)
	}
	env := newLoggedInEnv(t, fb)

	_, err := env.manager.UpdateProfile(context.Background(), ProfileUpdate{Name: ptr("Grace")})
	if !errors.Is(err, ErrTokenRejected) {
		t.Fatalf("expected the rejected request error, got %v", err)
	}
	if fb.count("refresh") != 1 {
		t.Fatalf("expected one refresh, got %d", fb.count("refresh"))
	}
	if fb.count("update_profile") != 1 {
		t.Fatal("the rejected request must not be retried")
	}
	if env.manager.Snapshot().AccessToken != "T2" {
		t.Fatal("expected refreshed token")
	}
}

func TestUpdateProfileDuringRefreshKeepsNewerProfile(t *testing.T) {
	fb := newFakeBackend()
	fb.refreshGate = make(chan struct{})
	fb.refreshEntered = make(chan struct{}, 1)
	env := newLoggedInEnv(t, fb)

	done := make(chan error, 1)
	go func() {
		done <- env.manager.Refresh(context.Background())
	}()
	<-fb.refreshEntered

	if _, err := env.manager.UpdateProfile(context.Background(), ProfileUpdate{Name: ptr("Grace")}); err != nil {
		t.Fatalf("update profile during refresh: %v", err)
	}
	close(fb.refreshGate)
	if err := <-done; err != nil {
		t.Fatalf("refresh: %v", err)
	}

	snap := env.manager.Snapshot()
	if snap.AccessToken != "T2" {
		t.Fatalf("expected refreshed token, got %q", snap.AccessToken)
	}
	if snap.User.Name != "Grace" {
		t.Fatalf("refresh overwrote the newer profile: %+v", snap.User)
	}
}

func TestChangePasswordWithoutRotationKeepsTokens(t *testing.T) {
	fb := newFakeBackend()
	env := newLoggedInEnv(t, fb)

	err := env.manager.ChangePassword(context.Background(), ChangePasswordRequest{CurrentPassword: "x", NewPassword: "y"})
	if err != nil {
		t.Fatalf("change password: %v", err)
	}
	if pair := env.stored(t); pair.Access != "T1" || pair.Refresh != "R1" {
		t.Fatalf("tokens must be kept, got %+v", pair)
	}
}

func TestChangePasswordWithRotationPersistsNewPair(t *testing.T) {
	fb := newFakeBackend()
	fb.changePassword = func(string, ChangePasswordRequest) (*Grant, error) {
		return &Grant{AccessToken: "T9", RefreshToken: "R9"}, nil
	}
	env := newLoggedInEnv(t, fb)

	if err := env.manager.ChangePassword(context.Background(), ChangePasswordRequest{CurrentPassword: "x", NewPassword: "y"}); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if pair := env.stored(t); pair.Access != "T9" || pair.Refresh != "R9" {
		t.Fatalf("expected rotated tokens, got %+v", pair)
	}
	if snap := env.manager.Snapshot(); snap.AccessToken != "T9" || snap.User == nil {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestChangePasswordRequiresSession(t *testing.T) {
	fb := newFakeBackend()
	env := newTestEnv(t, fb, testConfig())
	_, _ = env.manager.Hydrate(context.Background())

	err := env.manager.ChangePassword(context.Background(), ChangePasswordRequest{CurrentPassword: "x", NewPassword: "y"})
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if fb.count("change_password") != 0 {
		t.Fatal("backend must not be contacted")
	}
}

func TestStatelessOperationsNavigateToLogin(t *testing.T) {
	fb := newFakeBackend()
	env := newTestEnv(t, fb, testConfig())
	_, _ = env.manager.Hydrate(context.Background())
	ctx := context.Background()

	nav, err := env.manager.Register(ctx, RegisterRequest{Email: "a@b.com", Password: "pw"})
	if err != nil || nav.Target != NavLogin || nav.Path != "/login" {
		t.Fatalf("register: %+v %v", nav, err)
	}
	nav, err = env.manager.VerifyEmail(ctx, "verify-token")
	if err != nil || nav.Target != NavLogin {
		t.Fatalf("verify email: %+v %v", nav, err)
	}
	nav, err = env.manager.ResetPassword(ctx, "reset-token", "new-pw")
	if err != nil || nav.Target != NavLogin {
		t.Fatalf("reset password: %+v %v", nav, err)
	}
	if err := env.manager.RequestPasswordReset(ctx, "a@b.com"); err != nil {
		t.Fatalf("request password reset: %v", err)
	}

	if snap := env.manager.Snapshot(); snap.Phase != PhaseUnauthenticated {
		t.Fatalf("stateless operations must not change the phase, got %s", snap.Phase)
	}
	counters := env.manager.MetricsSnapshot().Counters
	if counters[MetricRegisterSuccess] != 1 || counters[MetricPasswordResetRequest] != 1 || counters[MetricPasswordResetSuccess] != 1 {
		t.Fatalf("unexpected counters %v", counters)
	}
}

func TestStatelessFailureStaysOnCurrentView(t *testing.T) {
	fb := newFakeBackend()
	fb.statelessErr = newError(ErrValidation, 400, "Token is invalid or expired", nil)
	env := newTestEnv(t, fb, testConfig())
	_, _ = env.manager.Hydrate(context.Background())

	nav, err := env.manager.VerifyEmail(context.Background(), "bad")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if nav.Target != NavNone {
		t.Fatalf("failure must not navigate, got %+v", nav)
	}
	if ErrorMessage(err) != "Token is invalid or expired" {
		t.Fatalf("unexpected message %q", ErrorMessage(err))
	}
}

func TestStatelessValidationSkipsBackend(t *testing.T) {
	fb := newFakeBackend()
	env := newTestEnv(t, fb, testConfig())
	_, _ = env.manager.Hydrate(context.Background())
	ctx := context.Background()

	if _, err := env.manager.Register(ctx, RegisterRequest{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("register: %v", err)
	}
	if _, err := env.manager.VerifyEmail(ctx, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("verify: %v", err)
	}
	if _, err := env.manager.ResetPassword(ctx, "", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("reset: %v", err)
	}
	if err := env.manager.RequestPasswordReset(ctx, " "); !errors.Is(err, ErrValidation) {
		t.Fatalf("forgot: %v", err)
	}
	for _, name := range []string{"register", "verify_email", "reset_password", "forgot_password"} {
		if fb.count(name) != 0 {
			t.Fatalf("backend %s must not be contacted", name)
		}
	}
}
