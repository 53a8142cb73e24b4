package backendtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	goAuthClient "github.com/MrEthical07/goAuthClient"
	"github.com/MrEthical07/goAuthClient/internal/rate"
	"github.com/MrEthical07/goAuthClient/jwt"
	"github.com/MrEthical07/goAuthClient/password"
	"github.com/MrEthical07/goAuthClient/refresh"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultRole = "user"

type account struct {
	user goAuthClient.User
	hash string
}

type session struct {
	userID     string
	secretHash [32]byte
}

type options struct {
	accessTTL time.Duration
	now       func() time.Time
	hasher    password.Config
	policies  map[string]rate.Policy
	redis     redis.UniversalClient
}

// Option configures a Server.
type Option func(*options)

// WithAccessTTL sets the access token lifetime. Default 15 minutes.
func WithAccessTTL(ttl time.Duration) Option {
	return func(o *options) { o.accessTTL = ttl }
}

// WithClock sets the clock used to issue and verify access tokens.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithPasswordConfig sets the Argon2id parameters. Default password.FastConfig.
func WithPasswordConfig(cfg password.Config) Option {
	return func(o *options) { o.hasher = cfg }
}

const (
	scopeLogin = "login"
	scopeReset = "reset"
)

// WithLoginLimit throttles failed logins per identifier and client IP
// using Redis counters. Throttled logins get 429.
func WithLoginLimit(client redis.UniversalClient, maxAttempts int, cooldown time.Duration) Option {
	return limit(client, scopeLogin, rate.Policy{Max: maxAttempts, Window: cooldown})
}

// WithResetLimit throttles password reset requests per email and client IP.
// Throttled requests get 429.
func WithResetLimit(client redis.UniversalClient, maxRequests int, window time.Duration) Option {
	return limit(client, scopeReset, rate.Policy{Max: maxRequests, Window: window})
}

func limit(client redis.UniversalClient, scope string, policy rate.Policy) Option {
	return func(o *options) {
		o.redis = client
		if o.policies == nil {
			o.policies = make(map[string]rate.Policy)
		}
		o.policies[scope] = policy
	}
}

// Server is a running reference backend. Close it when done.
type Server struct {
	*httptest.Server

	tokens  *jwt.Manager
	hasher  *password.Hasher
	limiter *rate.Limiter
	now     func() time.Time

	loginCalls   atomic.Int64
	refreshCalls atomic.Int64
	logoutCalls  atomic.Int64

	mu           sync.Mutex
	users        map[string]*account
	byEmail      map[string]string
	sessions     map[refresh.SessionID]*session
	access       map[string]refresh.SessionID
	verifyTokens map[string]string
	resetTokens  map[string]string
	refreshGate  chan struct{}
	refreshFails []int
}

// New starts a Server on a loopback port.
func New(opts ...Option) (*Server, error) {
	o := options{
		accessTTL: 15 * time.Minute,
		now:       time.Now,
		hasher:    password.FastConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     o.accessTTL,
		SigningMethod: jwt.MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "backendtest",
		Now:           o.now,
	})
	if err != nil {
		return nil, err
	}
	hasher, err := password.New(o.hasher)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if o.redis != nil {
		limiter = rate.New(o.redis, "backendtest:rl:", o.policies)
	}

	s := &Server{
		tokens:       tokens,
		hasher:       hasher,
		limiter:      limiter,
		now:          o.now,
		users:        make(map[string]*account),
		byEmail:      make(map[string]string),
		sessions:     make(map[refresh.SessionID]*session),
		access:       make(map[string]refresh.SessionID),
		verifyTokens: make(map[string]string),
		resetTokens:  make(map[string]string),
	}
	s.Server = httptest.NewServer(s.routes())
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.HandleFunc("GET /auth/me", s.handleMe)
	mux.HandleFunc("PUT /auth/me", s.handleUpdateMe)
	mux.HandleFunc("POST /auth/verify-email", s.handleVerifyEmail)
	mux.HandleFunc("POST /auth/forgot-password", s.handleForgotPassword)
	mux.HandleFunc("POST /auth/reset-password", s.handleResetPassword)
	mux.HandleFunc("POST /auth/change-password", s.handleChangePassword)
	return mux
}

// AddUser creates a verified account.
func (s *Server) AddUser(email, pw, role string) (goAuthClient.User, error) {
	hash, err := s.hasher.Hash(pw)
	if err != nil {
		return goAuthClient.User{}, err
	}
	if role == "" {
		role = defaultRole
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acct, err := s.createLocked(email, "", role, hash)
	if err != nil {
		return goAuthClient.User{}, err
	}
	acct.user.EmailVerified = true
	return acct.user, nil
}

// LoginCalls returns how many login requests were received.
func (s *Server) LoginCalls() int64 { return s.loginCalls.Load() }

// RefreshCalls returns how many refresh requests were received.
func (s *Server) RefreshCalls() int64 { return s.refreshCalls.Load() }

// LogoutCalls returns how many logout requests were received.
func (s *Server) LogoutCalls() int64 { return s.logoutCalls.Load() }

// ActiveSessions returns the number of unrevoked sessions.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// HoldRefresh makes refresh requests block until release is called.
func (s *Server) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.refreshGate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.refreshGate == gate {
				s.refreshGate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// FailNextRefresh makes the next refresh request fail with status.
func (s *Server) FailNextRefresh(status int) {
	s.mu.Lock()
	s.refreshFails = append(s.refreshFails, status)
	s.mu.Unlock()
}

// RevokeAccessTokens invalidates every outstanding access token. Sessions
// and refresh tokens stay valid.
func (s *Server) RevokeAccessTokens() {
	s.mu.Lock()
	clear(s.access)
	s.mu.Unlock()
}

// VerificationToken returns the pending email verification token for email.
func (s *Server) VerificationToken(email string) (string, bool) {
	return s.pendingToken(s.verifyTokens, email)
}

// ResetToken returns the pending password reset token for email.
func (s *Server) ResetToken(email string) (string, bool) {
	return s.pendingToken(s.resetTokens, email)
}

func (s *Server) pendingToken(tokens map[string]string, email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return "", false
	}
	for token, userID := range tokens {
		if userID == id {
			return token, true
		}
	}
	return "", false
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.loginCalls.Add(1)

	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Username == "" || body.Password == "" {
		writeValidation(w, "username and password are required")
		return
	}

	ctx := r.Context()
	ip := clientIP(r)
	if s.limiter != nil {
		if err := s.limiter.Check(ctx, scopeLogin, body.Username, ip); err != nil {
			writeLimiterError(w, err, "Too many login attempts")
			return
		}
	}

	s.mu.Lock()
	var hash string
	acct := s.lookupLocked(body.Username)
	if acct != nil {
		hash = acct.hash
	}
	s.mu.Unlock()

	ok := false
	if acct != nil {
		ok, _ = s.hasher.Verify(body.Password, hash)
	}
	if !ok {
		if s.limiter != nil {
			if err := s.limiter.Hit(ctx, scopeLogin, body.Username, ip); err != nil {
				writeLimiterError(w, err, "Too many login attempts")
				return
			}
		}
		writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if s.limiter != nil {
		_ = s.limiter.Reset(ctx, scopeLogin, body.Username, ip)
	}

	s.mu.Lock()
	grant, err := s.openSessionLocked(acct.user.ID)
	s.mu.Unlock()
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Could not create session")
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if !decode(w, r, &body) {
		return
	}
	if !validEmail(body.Email) {
		writeValidation(w, "value is not a valid email address")
		return
	}
	hash, err := s.hasher.Hash(body.Password)
	if err != nil {
		writeValidation(w, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acct, err := s.createLocked(body.Email, body.Name, defaultRole, hash)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}
	s.verifyTokens[uuid.NewString()] = acct.user.ID
	writeJSON(w, http.StatusCreated, acct.user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.logoutCalls.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, sid, ok := s.authenticateLocked(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	s.revokeSessionLocked(sid)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	s.mu.Lock()
	gate := s.refreshGate
	fail := 0
	if len(s.refreshFails) > 0 {
		fail = s.refreshFails[0]
		s.refreshFails = s.refreshFails[1:]
	}
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	if fail != 0 {
		writeDetail(w, fail, "Refresh failed")
		return
	}

	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.RefreshToken == "" {
		writeValidation(w, "refresh_token is required")
		return
	}
	sid, secret, err := refresh.Decode(body.RefreshToken)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sid]
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	if sess.secretHash != secret.Hash() {
		s.revokeSessionLocked(sid)
		writeDetail(w, http.StatusUnauthorized, "Refresh token reuse detected")
		return
	}

	grant, err := s.rotateLocked(sid, sess)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Could not rotate session")
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, _, ok := s.authenticateLocked(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, acct.user)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var body goAuthClient.ProfileUpdate
	if !decode(w, r, &body) {
		return
	}
	if body.Email != nil && !validEmail(*body.Email) {
		writeValidation(w, "value is not a valid email address")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acct, _, ok := s.authenticateLocked(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	if body.Email != nil {
		email := normalizeEmail(*body.Email)
		if owner, taken := s.byEmail[email]; taken && owner != acct.user.ID {
			writeDetail(w, http.StatusBadRequest, "Email already registered")
			return
		}
		if email != acct.user.Email {
			delete(s.byEmail, acct.user.Email)
			s.byEmail[email] = acct.user.ID
			acct.user.Email = email
			acct.user.EmailVerified = false
		}
	}
	if body.Name != nil {
		acct.user.Name = *body.Name
	}
	writeJSON(w, http.StatusOK, acct.user)
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if !decode(w, r, &body) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.verifyTokens[body.Token]
	if !ok {
		writeDetail(w, http.StatusBadRequest, "Invalid or expired verification token")
		return
	}
	delete(s.verifyTokens, body.Token)
	if acct, ok := s.users[userID]; ok {
		acct.user.EmailVerified = true
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Email verified"})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &body) {
		return
	}
	if !validEmail(body.Email) {
		writeValidation(w, "value is not a valid email address")
		return
	}
	if s.limiter != nil {
		if err := s.limiter.Hit(r.Context(), scopeReset, normalizeEmail(body.Email), clientIP(r)); err != nil {
			writeLimiterError(w, err, "Too many reset requests")
			return
		}
	}

	s.mu.Lock()
	if id, ok := s.byEmail[normalizeEmail(body.Email)]; ok {
		s.resetTokens[uuid.NewString()] = id
	}
	s.mu.Unlock()

	// Same response whether or not the account exists.
	writeJSON(w, http.StatusAccepted, map[string]string{"detail": "If the account exists, a reset link has been sent"})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if !decode(w, r, &body) {
		return
	}
	hash, err := s.hasher.Hash(body.NewPassword)
	if err != nil {
		writeValidation(w, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.resetTokens[body.Token]
	acct := s.users[userID]
	if !ok || acct == nil {
		writeDetail(w, http.StatusBadRequest, "Invalid or expired reset token")
		return
	}
	delete(s.resetTokens, body.Token)
	acct.hash = hash
	s.revokeUserLocked(userID)
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Password has been reset"})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var body goAuthClient.ChangePasswordRequest
	if !decode(w, r, &body) {
		return
	}

	s.mu.Lock()
	acct, _, ok := s.authenticateLocked(r)
	var current string
	if ok {
		current = acct.hash
	}
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	if match, _ := s.hasher.Verify(body.CurrentPassword, current); !match {
		writeDetail(w, http.StatusBadRequest, "Current password is incorrect")
		return
	}
	hash, err := s.hasher.Hash(body.NewPassword)
	if err != nil {
		writeValidation(w, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acct.hash = hash
	s.revokeUserLocked(acct.user.ID)
	grant, err := s.openSessionLocked(acct.user.ID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Could not create session")
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

type grantBody struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	TokenType    string            `json:"token_type"`
	ExpiresIn    int64             `json:"expires_in"`
	User         goAuthClient.User `json:"user"`
}

func (s *Server) createLocked(email, name, role, hash string) (*account, error) {
	email = normalizeEmail(email)
	if _, exists := s.byEmail[email]; exists {
		return nil, errors.New("email already registered")
	}
	acct := &account{
		user: goAuthClient.User{
			ID:        uuid.NewString(),
			Email:     email,
			Name:      name,
			Role:      role,
			Status:    "active",
			CreatedAt: s.now().UTC().Truncate(time.Second),
		},
		hash: hash,
	}
	s.users[acct.user.ID] = acct
	s.byEmail[email] = acct.user.ID
	return acct, nil
}

func (s *Server) lookupLocked(email string) *account {
	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil
	}
	return s.users[id]
}

func (s *Server) authenticateLocked(r *http.Request) (*account, refresh.SessionID, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return nil, refresh.SessionID{}, false
	}
	sid, ok := s.access[token]
	if !ok {
		return nil, refresh.SessionID{}, false
	}
	claims, err := s.tokens.ParseAccess(token)
	if err != nil {
		return nil, refresh.SessionID{}, false
	}
	acct, ok := s.users[claims.Subject]
	return acct, sid, ok
}

func (s *Server) openSessionLocked(userID string) (grantBody, error) {
	sid, err := refresh.NewSessionID()
	if err != nil {
		return grantBody{}, err
	}
	sess := &session{userID: userID}
	s.sessions[sid] = sess
	return s.rotateLocked(sid, sess)
}

func (s *Server) rotateLocked(sid refresh.SessionID, sess *session) (grantBody, error) {
	secret, refreshToken, err := refresh.Issue(sid)
	if err != nil {
		return grantBody{}, err
	}
	acct := s.users[sess.userID]
	accessToken, err := s.tokens.CreateAccess(acct.user.ID, acct.user.Role, acct.user.Email)
	if err != nil {
		return grantBody{}, err
	}
	sess.secretHash = secret.Hash()
	s.access[accessToken] = sid

	return grantBody{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.tokens.AccessTTL() / time.Second),
		User:         acct.user,
	}, nil
}

func (s *Server) revokeSessionLocked(sid refresh.SessionID) {
	delete(s.sessions, sid)
	for token, owner := range s.access {
		if owner == sid {
			delete(s.access, token)
		}
	}
}

func (s *Server) revokeUserLocked(userID string) {
	for sid, sess := range s.sessions {
		if sess.userID == userID {
			s.revokeSessionLocked(sid)
		}
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(v); err != nil {
		writeValidation(w, "request body must be valid JSON")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// writeValidation answers 422 with a list-shaped detail.
func writeValidation(w http.ResponseWriter, msgs ...string) {
	items := make([]map[string]string, 0, len(msgs))
	for _, msg := range msgs {
		items = append(items, map[string]string{"msg": msg, "type": "value_error"})
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": items})
}

func writeLimiterError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, rate.ErrLimited) {
		writeDetail(w, http.StatusTooManyRequests, msg)
		return
	}
	writeDetail(w, http.StatusServiceUnavailable, "Rate limiter unavailable")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	local, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	return ok && local != "" && strings.Contains(domain, ".")
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
