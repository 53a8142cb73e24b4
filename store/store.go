package store

import (
	"context"
	"errors"
)

const (
	// AccessTokenKey is the default key under which the access token is stored.
	AccessTokenKey = "access_token"
	// RefreshTokenKey is the default key under which the refresh token is stored.
	RefreshTokenKey = "refresh_token"
)

// ErrUnavailable wraps failures of the underlying storage medium.
var ErrUnavailable = errors.New("token storage unavailable")

// Pair is the persisted token pair. An empty Access means "no session".
type Pair struct {
	Access  string
	Refresh string
}

// Empty reports whether no access token is present.
func (p Pair) Empty() bool {
	return p.Access == ""
}

// Store is the storage collaborator consumed by the session manager.
//
// Implementations must make Set and Clear all-or-nothing with respect to the
// two keys: a reader never observes a new access token next to an old refresh
// token.
type Store interface {
	Get(ctx context.Context) (Pair, error)
	Set(ctx context.Context, pair Pair) error
	Clear(ctx context.Context) error
}

// Keys names the two slots used by a [Store].
type Keys struct {
	Access  string
	Refresh string
}

// DefaultKeys returns the well-known key names.
func DefaultKeys() Keys {
	return Keys{Access: AccessTokenKey, Refresh: RefreshTokenKey}
}

func (k Keys) normalize() Keys {
	if k.Access == "" {
		k.Access = AccessTokenKey
	}
	if k.Refresh == "" {
		k.Refresh = RefreshTokenKey
	}
	return k
}
