package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned by [Inspect] for opaque (non-JWT) tokens.
var ErrNotJWT = errors.New("token is not a JWT")

var unverifiedParser = jwt.NewParser()

// Inspect decodes the claims of tokenStr without verifying the signature.
func Inspect(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, _, err := unverifiedParser.ParseUnverified(tokenStr, claims); err != nil {
		return nil, errors.Join(ErrNotJWT, err)
	}
	return claims, nil
}

// ExpiresAt returns the exp claim of tokenStr. ok is false for opaque tokens
// and tokens without exp.
func ExpiresAt(tokenStr string) (time.Time, bool) {
	claims, err := Inspect(tokenStr)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// ExpiresWithin reports whether tokenStr expires before now+leeway. Tokens
// whose expiry cannot be read are never reported as expiring.
func ExpiresWithin(tokenStr string, now time.Time, leeway time.Duration) bool {
	exp, ok := ExpiresAt(tokenStr)
	if !ok {
		return false
	}
	return !now.Add(leeway).Before(exp)
}
