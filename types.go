package goAuthClient

import (
	"context"
	"time"
)

// Phase is the discrete state of the session state machine.
type Phase uint8

const (
	// PhaseInitializing is the startup phase, left exactly once by Hydrate.
	PhaseInitializing Phase = iota
	// PhaseUnauthenticated means no user and no tokens.
	PhaseUnauthenticated
	// PhaseAuthenticated means a user and an access token are present.
	PhaseAuthenticated
	// PhaseRefreshing is the transient phase while a token refresh is in flight.
	PhaseRefreshing
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// HasSession reports whether p carries a user and an access token.
func (p Phase) HasSession() bool {
	return p == PhaseAuthenticated || p == PhaseRefreshing
}

// User is the profile record returned by the backend. The server is
// authoritative; the client never derives fields locally.
type User struct {
	ID            string           `json:"id"`
	Email         string           `json:"email"`
	Name          string           `json:"name,omitempty"`
	Role          string           `json:"role,omitempty"`
	Status        string           `json:"status,omitempty"`
	EmailVerified bool             `json:"email_verified"`
	Usage         map[string]int64 `json:"usage,omitempty"`
	CreatedAt     time.Time        `json:"created_at,omitzero"`
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.Usage != nil {
		out.Usage = make(map[string]int64, len(u.Usage))
		for k, v := range u.Usage {
			out.Usage[k] = v
		}
	}
	return &out
}

// Credentials are the login inputs.
type Credentials struct {
	Identifier string `json:"username"`
	Secret     string `json:"password"`
}

// Grant is a successful login or refresh response.
type Grant struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type,omitempty"`
	ExpiresIn    time.Duration `json:"-"`
	User         User          `json:"user"`
}

// ProfileUpdate is a partial profile update. Nil fields are not sent.
type ProfileUpdate struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

// RegisterRequest is the account registration input.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// ChangePasswordRequest is the password change input.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Snapshot is a read-only copy of the session. It never carries the
// refresh token.
type Snapshot struct {
	Phase       Phase
	User        *User
	AccessToken string
	Generation  uint64
}

// Authenticated reports whether the snapshot carries a session.
func (s Snapshot) Authenticated() bool {
	return s.Phase.HasSession()
}

// HasRole reports whether the session user has exactly role.
func (s Snapshot) HasRole(role string) bool {
	return s.Phase.HasSession() && s.User != nil && s.User.Role == role
}

// NavTarget names the view an operation asks the router to show.
type NavTarget uint8

const (
	NavNone NavTarget = iota
	NavLanding
	NavHome
	NavLogin
)

func (t NavTarget) String() string {
	switch t {
	case NavLanding:
		return "landing"
	case NavHome:
		return "home"
	case NavLogin:
		return "login"
	default:
		return "none"
	}
}

// Navigation is a navigation intent returned by an operation. Path is
// resolved from Config.Routes.
type Navigation struct {
	Target NavTarget
	Path   string
}

// Backend is the remote authentication API consumed by the Manager.
// backend.Client is the HTTP implementation.
//
// Implementations return *Error values whose Kind is one of ErrValidation,
// ErrAuthentication, ErrTokenRejected, ErrBackend or ErrNetwork.
type Backend interface {
	CurrentUser(ctx context.Context, accessToken string) (User, error)
	Login(ctx context.Context, creds Credentials) (Grant, error)
	Register(ctx context.Context, req RegisterRequest) error
	Logout(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string) (Grant, error)
	UpdateProfile(ctx context.Context, accessToken string, update ProfileUpdate) (User, error)
	VerifyEmail(ctx context.Context, token string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	// ChangePassword returns a non-nil Grant when the backend rotated tokens.
	ChangePassword(ctx context.Context, accessToken string, req ChangePasswordRequest) (*Grant, error)
}
