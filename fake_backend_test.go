package goAuthClient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goAuthClient/store"
	"github.com/jonboulle/clockwork"
)

// fakeBackend is an in-memory Backend. Hooks default to a happy path
// issuing T<n>/R<n> token pairs.
type fakeBackend struct {
	mu    sync.Mutex
	calls map[string]int

	currentUser    func(access string) (User, error)
	login          func(Credentials) (Grant, error)
	refresh        func(refreshToken string) (Grant, error)
	updateProfile  func(access string, update ProfileUpdate) (User, error)
	changePassword func(access string, req ChangePasswordRequest) (*Grant, error)
	logout         func(access string) error
	statelessErr   error

	// refreshGate, when set, blocks Refresh until closed. refreshEntered
	// receives one value per Refresh call entering the gate.
	refreshGate    chan struct{}
	refreshEntered chan struct{}

	// loginGate and loginEntered do the same for Login.
	loginGate    chan struct{}
	loginEntered chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{calls: make(map[string]int)}
}

func (f *fakeBackend) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func testUser() User {
	return User{ID: "u1", Email: "a@b.com", Name: "Ada", Role: "user", EmailVerified: true}
}

func (f *fakeBackend) CurrentUser(_ context.Context, access string) (User, error) {
	f.record("current_user")
	if f.currentUser != nil {
		return f.currentUser(access)
	}
	return testUser(), nil
}

func (f *fakeBackend) Login(ctx context.Context, creds Credentials) (Grant, error) {
	f.record("login")
	if f.loginEntered != nil {
		f.loginEntered <- struct{}{}
	}
	if f.loginGate != nil {
		select {
		case <-f.loginGate:
		case <-ctx.Done():
			return Grant{}, newError(ErrNetwork, 0, "", ctx.Err())
		}
	}
	if f.login != nil {
		return f.login(creds)
	}
	return Grant{AccessToken: "T1", RefreshToken: "R1", TokenType: "bearer", User: testUser()}, nil
}

func (f *fakeBackend) Register(context.Context, RegisterRequest) error {
	f.record("register")
	return f.statelessErr
}

func (f *fakeBackend) Logout(_ context.Context, access string) error {
	f.record("logout")
	if f.logout != nil {
		return f.logout(access)
	}
	return nil
}

func (f *fakeBackend) Refresh(ctx context.Context, refreshToken string) (Grant, error) {
	f.record("refresh")
	if f.refreshEntered != nil {
		f.refreshEntered <- struct{}{}
	}
	if f.refreshGate != nil {
		select {
		case <-f.refreshGate:
		case <-ctx.Done():
			return Grant{}, newError(ErrNetwork, 0, "", ctx.Err())
		}
	}
	if f.refresh != nil {
		return f.refresh(refreshToken)
	}
	return Grant{AccessToken: "T2", RefreshToken: "R2", User: testUser()}, nil
}

func (f *fakeBackend) UpdateProfile(_ context.Context, access string, update ProfileUpdate) (User, error) {
	f.record("update_profile")
	if f.updateProfile != nil {
		return f.updateProfile(access, update)
	}
	u := testUser()
	if update.Name != nil {
		u.Name = *update.Name
	}
	return u, nil
}

func (f *fakeBackend) VerifyEmail(context.Context, string) error {
	f.record("verify_email")
	return f.statelessErr
}

func (f *fakeBackend) RequestPasswordReset(context.Context, string) error {
	f.record("forgot_password")
	return f.statelessErr
}

func (f *fakeBackend) ResetPassword(context.Context, string, string) error {
	f.record("reset_password")
	return f.statelessErr
}

func (f *fakeBackend) ChangePassword(_ context.Context, access string, req ChangePasswordRequest) (*Grant, error) {
	f.record("change_password")
	if f.changePassword != nil {
		return f.changePassword(access, req)
	}
	return nil, nil
}

// failingStore wraps a store and fails Get/Set/Clear on demand.
type failingStore struct {
	store.Store
	mu       sync.Mutex
	getErr   error
	setErr   error
	clearErr error
}

func (s *failingStore) Get(ctx context.Context) (store.Pair, error) {
	s.mu.Lock()
	err := s.getErr
	s.mu.Unlock()
	if err != nil {
		return store.Pair{}, err
	}
	return s.Store.Get(ctx)
}

func (s *failingStore) Set(ctx context.Context, pair store.Pair) error {
	s.mu.Lock()
	err := s.setErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.Set(ctx, pair)
}

func (s *failingStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	err := s.clearErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.Clear(ctx)
}

var errDiskFull = errors.New("disk full")

type testEnv struct {
	manager *Manager
	backend *fakeBackend
	store   *store.Memory
	clock   *clockwork.FakeClock
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Storage.Driver = "memory"
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Backend.LogoutTimeout = time.Second
	return cfg
}

// newTestEnv builds a Manager over fb and an in-memory store. It is not
// hydrated.
func newTestEnv(t *testing.T, fb *fakeBackend, cfg Config) *testEnv {
	t.Helper()
	mem := store.NewMemory(store.DefaultKeys())
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))

	m, err := New().
		WithConfig(cfg).
		WithBackend(fb).
		WithStore(mem).
		WithClock(clock).
		Build()
	if err != nil {
		t.Fatalf("build manager: %v", err)
	}
	t.Cleanup(m.Close)
	return &testEnv{manager: m, backend: fb, store: mem, clock: clock}
}

// newLoggedInEnv returns an env that hydrated to unauthenticated and then
// logged in with T1/R1.
func newLoggedInEnv(t *testing.T, fb *fakeBackend) *testEnv {
	t.Helper()
	env := newTestEnv(t, fb, testConfig())
	if _, err := env.manager.Hydrate(context.Background()); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if _, err := env.manager.Login(context.Background(), Credentials{Identifier: "a@b.com", Secret: "x"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	return env
}

func (e *testEnv) stored(t *testing.T) store.Pair {
	t.Helper()
	pair, err := e.store.Get(context.Background())
	if err != nil {
		t.Fatalf("store get: %v", err)
	}
	return pair
}
