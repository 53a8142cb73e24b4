package goAuthClient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goAuthClient/store"
)

func TestHydrateWithValidTokenAuthenticates(t *testing.T) {
	fb := newFakeBackend()
	env := newTestEnv(t, fb, testConfig())
	if err := env.store.Set(context.Background(), store.Pair{Access: "T1", Refresh: "R1"}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	snap, err := env.manager.Hydrate(context.Background())
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if snap.Phase != PhaseAuthenticated {
		t.Fatalf("expected authenticated, got %s", snap.Phase)
	}
	if snap.User == nil || snap.User.ID != "u1" || snap.AccessToken != "T1" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if got := env.manager.MetricsSnapshot().Counters[MetricHydrateSuccess]; got != 1 {
		t.Fatalf("expected hydrate success metric 1, got %d", got)
	}
}

func TestHydrateWithRejectedTokenClearsStorage(t *testing.T) {
	fb := newFakeBackend()
	fb.currentUser = func(string) (User, error) {
		return User{}, newError(ErrTokenRejected, 401, "Token expired", nil)
	}
	env := newTestEnv(t, fb, testConfig())
	if err := env.store.Set(context.Background(), store.Pair{Access: "T0", Refresh: "R0"}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	snap, err := env.manager.Hydrate(context.Background())
	if err != nil {
		t.Fatalf("hydrate failures must not surface, got %v", err)
	}
	if snap.Phase != PhaseUnauthenticated || snap.User != nil {
		t.Fatalf("expected unauthenticated, got %+v", snap)
	}
	if env.store.Len() != 0 {
		t.Fatalf("expected storage cleared, %d keys left", env.store.Len())
	}
	if fb.count("refresh") != 0 {
		t.Fatal("hydrate must not retry through refresh")
	}
}

func TestHydrateNetworkFailureIsNotLoggedIn(t *testing.T) {
	fb := newFakeBackend()
	fb.currentUser = func(string) (User, error) {
		return User{}, newError(ErrNetwork, 0, "", errors.New("dial tcp: connection refused"))
	}
	env := newTestEnv(t, fb, testConfig())
	_ = env.store.Set(context.Background(), store.Pair{Access: "T0", Refresh: "R0"})

	snap, err := env.manager.Hydrate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if snap.Phase != PhaseUnauthenticated || env.store.Len() != 0 {
		t.Fatalf("expected unauthenticated with empty storage, got %s / %d keys", snap.Phase, env.store.Len())
	}
	if fb.count("current_user") != 1 {
		t.Fatalf("expected exactly one current-user call, got %d", fb.count("current_user"))
	}
}

func TestHydrateWithoutAccessTokenClearsStaleRefresh(t *testing.T) {
	fb := newFakeBackend()
	env := newTestEnv(t, fb, testConfig())
	_ = env.store.Set(context.Background(), store.Pair{Refresh: "R-stale"})

	snap, err := env.manager.Hydrate(context.Background())
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if snap.Phase != PhaseUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", snap.Phase)
	}
	if fb.count("current_user") != 0 {
		t.Fatal("backend must not be contacted without an access token")
	}
	if env.store.Len() != 0 {
		t.Fatal("stale refresh token must be cleared")
	}
}

func TestHydrateStorageReadFailureCountsAsFailedHydrate(t *testing.T) {
	fb := newFakeBackend()
	fs := &failingStore{Store: store.NewMemory(store.DefaultKeys()), getErr: errDiskFull}
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 8
	sink := NewChannelSink(8)
	m, err := New().WithConfig(cfg).WithBackend(fb).WithStore(fs).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	snap, err := m.Hydrate(context.Background())
	if err != nil {
		t.Fatalf("hydrate failures must not surface, got %v", err)
	}
	if snap.Phase != PhaseUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", snap.Phase)
	}
	counters := m.MetricsSnapshot().Counters
	if counters[MetricHydrateFailure] != 1 || counters[MetricStorageFailure] == 0 {
		t.Fatalf("expected hydrate and storage failures counted, got %v", counters)
	}
	if fb.count("current_user") != 0 {
		t.Fatal("backend must not be contacted when tokens cannot be read")
	}

	m.Close()
	event := <-sink.Events()
	if event.EventType != auditEventHydrated || event.Success || event.Error == "" {
		t.Fatalf("expected failed hydrate audit event, got %+v", event)
	}
}

func TestHydrateTwiceFails(t *testing.T) {
	env := newTestEnv(t, newFakeBackend(), testConfig())
	if _, err := env.manager.Hydrate(context.Background()); err != nil {
		t.Fatalf("first hydrate: %v", err)
	}
	if _, err := env.manager.Hydrate(context.Background()); !errors.Is(err, ErrAlreadyHydrated) {
		t.Fatalf("expected ErrAlreadyHydrated, got %v", err)
	}
}

func TestLoginAndLogoutRejectedWhileInitializing(t *testing.T) {
	fb := newFakeBackend()
	env := newTestEnv(t, fb, testConfig())

	if _, err := env.manager.Login(context.Background(), Credentials{Identifier: "a@b.com", Secret: "x"}); !errors.Is(err, ErrSessionInitializing) {
		t.Fatalf("expected ErrSessionInitializing from login, got %v", err)
	}
	if _, err := env.manager.Logout(context.Background()); !errors.Is(err, ErrSessionInitializing) {
		t.Fatalf("expected ErrSessionInitializing from logout, got %v", err)
	}
	if fb.count("login") != 0 {
		t.Fatal("backend must not be contacted while initializing")
	}
}

func TestLoginPersistsTokensAndNavigatesToLanding(t *testing.T) {
	env := newLoggedInEnv(t, newFakeBackend())

	snap := env.manager.Snapshot()
	if snap.Phase != PhaseAuthenticated {
		t.Fatalf("expected authenticated, got %s", snap.Phase)
	}
	if snap.User == nil || snap.User.Email != "a@b.com" {
		t.Fatalf("unexpected user %+v", snap.User)
	}
	pair := env.stored(t)
	if pair.Access != "T1" || pair.Refresh != "R1" {
		t.Fatalf("expected T1/R1 in storage, got %+v", pair)
	}
}

func TestLoginNavigation(t *testing.T) {
	env := newTestEnv(t, newFakeBackend(), testConfig())
	_, _ = env.manager.Hydrate(context.Background())

	nav, err := env.manager.Login(context.Background(), Credentials{Identifier: "a@b.com", Secret: "x"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if nav.Target != NavLanding || nav.Path != "/dashboard" {
		t.Fatalf("unexpected navigation %+v", nav)
	}
}

func TestLoginFailureKeepsStateAndBackendMessage(t *testing.T) {
	fb := newFakeBackend()
	fb.login = func(Credentials) (Grant, error) {
		return Grant{}, newError(ErrAuthentication, 401, "Incorrect email or password", nil)
	}
	env := newTestEnv(t, fb, testConfig())
	_, _ = env.manager.Hydrate(context.Background())
	before := env.manager.Snapshot()
	writes := env.store.Writes()

	nav, err := env.manager.Login(context.Background(), Credentials{Identifier: "a@b.com", Secret: "bad"})
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if ErrorMessage(err) != "Incorrect email or password" {
		t.Fatalf("expected backend message verbatim, got %q", ErrorMessage(err))
	}
	if nav.Target != NavNone {
		t.Fatalf("failed login must not navigate, got %+v", nav)
	}
	if after := env.manager.Snapshot(); after != before {
		t.Fatalf("state changed on failed login: %+v -> %+v", before, after)
	}
	if env.store.Writes() != writes {
		t.Fatal("failed login must not write storage")
	}
}

func TestLoginRequiresNonEmptyCredentials(t *testing.T) {
	fb := newFakeBackend()
	env := newTestEnv(t, fb, testConfig())
	_, _ = env.manager.Hydrate(context.Background())

	cases := []Credentials{{}, {Identifier: "a@b.com"}, {Identifier: "  ", Secret: "x"}}
	for _, creds := range cases {
		if _, err := env.manager.Login(context.Background(), creds); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation for %+v, got %v", creds, err)
		}
	}
	if fb.count("login") != 0 {
		t.Fatal("backend must not be contacted for empty credentials")
	}
}

func TestLoginStorageFailureLeavesStateUntouched(t *testing.T) {
	fb := newFakeBackend()
	mem := store.NewMemory(store.DefaultKeys())
	fs := &failingStore{Store: mem, setErr: errDiskFull}
	m, err := New().WithConfig(testConfig()).WithBackend(fb).WithStore(fs).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer m.Close()
	_, _ = m.Hydrate(context.Background())

	_, err = m.Login(context.Background(), Credentials{Identifier: "a@b.com", Secret: "x"})
	if !errors.Is(err, ErrStorage) || !errors.Is(err, errDiskFull) {
		t.Fatalf("expected storage error wrapping cause, got %v", err)
	}
	if snap := m.Snapshot(); snap.Phase != PhaseUnauthenticated || snap.AccessToken != "" {
		t.Fatalf("expected unauthenticated after storage failure, got %+v", snap)
	}
}

func TestLogoutClearsEverythingAndNotifiesInBackground(t *testing.T) {
	fb := newFakeBackend()
	notified := make(chan string, 1)
	fb.logout = func(access string) error {
		notified <- access
		return nil
	}
	env := newLoggedInEnv(t, fb)

	nav, err := env.manager.Logout(context.Background())
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if nav.Target != NavHome || nav.Path != "/" {
		t.Fatalf("unexpected navigation %+v", nav)
	}
	if snap := env.manager.Snapshot(); snap.Phase != PhaseUnauthenticated || snap.User != nil || snap.AccessToken != "" {
		t.Fatalf("expected cleared session, got %+v", snap)
	}
	if env.store.Len() != 0 {
		t.Fatal("expected empty storage")
	}
	if got := <-notified; got != "T1" {
		t.Fatalf("expected notify with T1, got %q", got)
	}
}

func TestLogoutNotifyFailureIsSwallowedAndCounted(t *testing.T) {
	fb := newFakeBackend()
	fb.logout = func(string) error {
		return newError(ErrNetwork, 0, "", errors.New("connection reset"))
	}
	env := newLoggedInEnv(t, fb)

	if _, err := env.manager.Logout(context.Background()); err != nil {
		t.Fatalf("notify failure must not fail logout: %v", err)
	}
	env.manager.Close()

	if got := env.manager.MetricsSnapshot().Counters[MetricLogoutNotifyFailure]; got != 1 {
		t.Fatalf("expected 1 notify failure, got %d", got)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	fb := newFakeBackend()
	env := newLoggedInEnv(t, fb)

	for i := 0; i < 3; i++ {
		if _, err := env.manager.Logout(context.Background()); err != nil {
			t.Fatalf("logout %d: %v", i, err)
		}
	}
	env.manager.Close()
	if fb.count("logout") != 1 {
		t.Fatalf("expected one backend notify, got %d", fb.count("logout"))
	}
}

func TestLogoutDuringPendingLoginWins(t *testing.T) {
	fb := newFakeBackend()
	fb.loginGate = make(chan struct{})
	fb.loginEntered = make(chan struct{}, 1)
	env := newTestEnv(t, fb, testConfig())
	if _, err := env.manager.Hydrate(context.Background()); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	sub := env.manager.Subscribe(4)
	defer sub.Close()
	<-sub.C

	done := make(chan error, 1)
	go func() {
		_, err := env.manager.Login(context.Background(), Credentials{Identifier: "a@b.com", Secret: "x"})
		done <- err
	}()
	<-fb.loginEntered

	nav, err := env.manager.Logout(context.Background())
	if err != nil || nav.Target != NavHome {
		t.Fatalf("logout: %+v %v", nav, err)
	}
	select {
	case snap := <-sub.C:
		t.Fatalf("logout while unauthenticated must not publish, got %+v", snap)
	default:
	}
	close(fb.loginGate)

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected superseded login, got %v", err)
	}
	if snap := env.manager.Snapshot(); snap.Phase != PhaseUnauthenticated || snap.AccessToken != "" {
		t.Fatalf("login resurrected the session after logout: %+v", snap)
	}
	if env.store.Len() != 0 {
		t.Fatal("login result must not be persisted after logout")
	}
}

func TestLogoutRacingCloseNeverOutlivesClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		fb := newFakeBackend()
		var mu sync.Mutex
		finished := 0
		fb.logout = func(string) error {
			time.Sleep(time.Millisecond)
			mu.Lock()
			finished++
			mu.Unlock()
			return nil
		}
		env := newLoggedInEnv(t, fb)

		logoutErr := make(chan error, 1)
		go func() {
			_, err := env.manager.Logout(context.Background())
			logoutErr <- err
		}()
		env.manager.Close()
		err := <-logoutErr

		mu.Lock()
		got := finished
		mu.Unlock()
		switch {
		case err == nil && fb.count("logout") == 1 && got != 1:
			t.Fatalf("run %d: logout notify still running after Close", i)
		case err != nil && !errors.Is(err, ErrManagerNotReady):
			t.Fatalf("run %d: unexpected logout error %v", i, err)
		case err != nil && fb.count("logout") != 0:
			t.Fatalf("run %d: notify started after Close", i)
		}
	}
}

func TestLogoutStorageFailureStillResetsSession(t *testing.T) {
	fb := newFakeBackend()
	mem := store.NewMemory(store.DefaultKeys())
	fs := &failingStore{Store: mem}
	m, err := New().WithConfig(testConfig()).WithBackend(fb).WithStore(fs).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer m.Close()
	_, _ = m.Hydrate(context.Background())
	if _, err := m.Login(context.Background(), Credentials{Identifier: "a@b.com", Secret: "x"}); err != nil {
		t.Fatalf("login: %v", err)
	}

	fs.mu.Lock()
	fs.clearErr = errDiskFull
	fs.mu.Unlock()

	nav, err := m.Logout(context.Background())
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if nav.Target != NavHome {
		t.Fatalf("logout must still navigate home, got %+v", nav)
	}
	if m.Snapshot().Phase != PhaseUnauthenticated {
		t.Fatal("logout must reset the in-memory session regardless of storage")
	}
}

func TestLoginRefreshRefreshLogoutEndsEmpty(t *testing.T) {
	fb := newFakeBackend()
	n := 1
	fb.refresh = func(string) (Grant, error) {
		n++
		return Grant{
			AccessToken:  "T" + string(rune('0'+n)),
			RefreshToken: "R" + string(rune('0'+n)),
			User:         testUser(),
		}, nil
	}
	env := newLoggedInEnv(t, fb)

	for i := 0; i < 2; i++ {
		if err := env.manager.Refresh(context.Background()); err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
	}
	if pair := env.stored(t); pair.Access != "T3" || pair.Refresh != "R3" {
		t.Fatalf("expected T3/R3 after two refreshes, got %+v", pair)
	}
	if _, err := env.manager.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}

	if env.manager.Snapshot().Phase != PhaseUnauthenticated {
		t.Fatal("expected unauthenticated")
	}
	if env.store.Len() != 0 {
		t.Fatal("expected empty storage")
	}
}

func TestHasRole(t *testing.T) {
	env := newLoggedInEnv(t, newFakeBackend())
	if !env.manager.HasRole("user") {
		t.Fatal("expected role user")
	}
	if env.manager.HasRole("admin") {
		t.Fatal("unexpected role admin")
	}
	_, _ = env.manager.Logout(context.Background())
	if env.manager.HasRole("user") {
		t.Fatal("unauthenticated session has no role")
	}
}

func TestClosedManagerIsNotReady(t *testing.T) {
	env := newLoggedInEnv(t, newFakeBackend())
	env.manager.Close()

	if err := env.manager.Refresh(context.Background()); !errors.Is(err, ErrManagerNotReady) {
		t.Fatalf("expected ErrManagerNotReady, got %v", err)
	}
	var nilManager *Manager
	if _, err := nilManager.Hydrate(context.Background()); !errors.Is(err, ErrManagerNotReady) {
		t.Fatalf("expected ErrManagerNotReady from nil manager, got %v", err)
	}
}
