package goAuthClient

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication reports rejected credentials (login, register, reset).
	ErrAuthentication = errors.New("authentication failed")
	// ErrSessionExpired reports a refresh that failed or had no refresh
	// token. The session has been reset to unauthenticated.
	ErrSessionExpired = errors.New("session expired")
	// ErrNotAuthenticated reports an operation that requires a session
	// invoked without one. The backend was not contacted.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrValidation reports input rejected locally or by the backend (400/422).
	ErrValidation = errors.New("validation failed")
	// ErrNetwork reports a transport failure, timeout or undecodable response.
	ErrNetwork = errors.New("network failure")
	// ErrTokenRejected reports a 401 on a bearer-authenticated request.
	ErrTokenRejected = errors.New("access token rejected")
	// ErrBackend reports any other non-2xx backend response.
	ErrBackend = errors.New("backend error")
	// ErrStorage reports a token storage failure.
	ErrStorage = errors.New("token storage failure")
	// ErrSessionInitializing reports an operation attempted before hydration completed.
	ErrSessionInitializing = errors.New("session is initializing")
	// ErrAlreadyHydrated is returned by a second call to Hydrate.
	ErrAlreadyHydrated = errors.New("session already hydrated")
	// ErrSuperseded reports a result discarded because the session was reset
	// (logout wins) while the operation was in flight.
	ErrSuperseded = errors.New("operation superseded by a session reset")
	// ErrManagerNotReady reports use of a nil or closed Manager.
	ErrManagerNotReady = errors.New("session manager not ready")
)

// Error is a typed failure carrying the backend-provided message.
//
// errors.Is matches Kind (one of the sentinel errors above). Err, when set,
// is the underlying cause and is unwrapped as well.
type Error struct {
	Kind    error
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = genericMessage(e.Kind)
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	return msg
}

// Unwrap returns the kind and the cause.
func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// ErrorMessage returns the human-readable message of err suitable for
// display: the backend message when present, otherwise a generic message
// for its kind.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		if typed.Message != "" {
			return typed.Message
		}
		return genericMessage(typed.Kind)
	}
	for _, kind := range errorKinds {
		if errors.Is(err, kind) {
			return genericMessage(kind)
		}
	}
	return "Something went wrong. Please try again."
}

var errorKinds = []error{
	ErrSessionExpired,
	ErrAuthentication,
	ErrNotAuthenticated,
	ErrValidation,
	ErrNetwork,
	ErrTokenRejected,
	ErrBackend,
	ErrStorage,
	ErrSessionInitializing,
	ErrAlreadyHydrated,
	ErrSuperseded,
	ErrManagerNotReady,
}

func genericMessage(kind error) string {
	switch kind {
	case ErrAuthentication:
		return "Invalid credentials."
	case ErrSessionExpired:
		return "Your session has expired. Please sign in again."
	case ErrNotAuthenticated, ErrTokenRejected:
		return "You need to sign in to continue."
	case ErrValidation:
		return "The request was invalid."
	case ErrNetwork:
		return "Could not reach the server. Check your connection."
	case ErrStorage:
		return "Could not save your session."
	case ErrSessionInitializing:
		return "Still loading your session."
	case ErrSuperseded:
		return "Your session changed while the request was running."
	default:
		return "Something went wrong. Please try again."
	}
}

func newError(kind error, status int, message string, cause error) *Error {
	return &Error{Kind: kind, Status: status, Message: message, Err: cause}
}

func storageError(op string, err error) error {
	return newError(ErrStorage, 0, "", fmt.Errorf("%s: %w", op, err))
}
