package refresh

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

const tokenSize = len(SessionID{}) + len(Secret{})

// ErrMalformed is returned by Decode and ParseSessionID for input that is
// not a well-formed token.
var ErrMalformed = errors.New("malformed refresh token")

// SessionID identifies one login session across rotations.
type SessionID [16]byte

// Secret is the rotating part of a token.
type Secret [32]byte

// NewSessionID returns a random SessionID.
func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	return base64.RawURLEncoding.EncodeToString(s[:])
}

// ParseSessionID reverses SessionID.String.
func ParseSessionID(s string) (SessionID, error) {
	var sid SessionID
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(raw) != len(sid) {
		return sid, ErrMalformed
	}
	copy(sid[:], raw)
	return sid, nil
}

// NewSecret returns a random Secret.
func NewSecret() (Secret, error) {
	var secret Secret
	_, err := rand.Read(secret[:])
	return secret, err
}

// Hash is what a server stores in place of the secret.
func (s Secret) Hash() [32]byte {
	return sha256.Sum256(s[:])
}

// Encode returns the wire form of (sid, secret).
func Encode(sid SessionID, secret Secret) string {
	var raw [tokenSize]byte
	copy(raw[:len(sid)], sid[:])
	copy(raw[len(sid):], secret[:])
	return base64.RawURLEncoding.EncodeToString(raw[:])
}

// Decode splits a token into its session ID and secret.
func Decode(token string) (SessionID, Secret, error) {
	var (
		sid    SessionID
		secret Secret
	)
	if len(token) != base64.RawURLEncoding.EncodedLen(tokenSize) {
		return sid, secret, ErrMalformed
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != tokenSize {
		return sid, secret, ErrMalformed
	}
	copy(sid[:], raw[:len(sid)])
	copy(secret[:], raw[len(sid):])
	return sid, secret, nil
}

// Issue returns a fresh secret for sid together with its encoded token.
func Issue(sid SessionID) (Secret, string, error) {
	secret, err := NewSecret()
	if err != nil {
		return Secret{}, "", err
	}
	return secret, Encode(sid, secret), nil
}
