package credential

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryFromJWT reads the iat and exp claims of token without verifying its
// signature. It is meant for bearer-token sources that do not report expiry
// separately; the cache never trusts the token for anything else.
// A missing iat yields a zero IssuedAt.
func ExpiryFromJWT(token string) (issuedAt, expiresAt time.Time, err error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %v", ErrNotJWT, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %v", ErrNotJWT, err)
	}
	if exp == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: token has no exp claim", ErrNoExpiry)
	}

	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		issuedAt = iat.Time
	}
	return issuedAt, exp.Time, nil
}
