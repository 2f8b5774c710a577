package credential

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Get after Close.
	ErrClosed = errors.New("credential: cache closed")

	// ErrEmptySecret is returned when a Source yields no secret bytes.
	ErrEmptySecret = errors.New("credential: source returned an empty secret")

	// ErrNoExpiry is returned when no expiry can be determined for a secret.
	ErrNoExpiry = errors.New("credential: no expiry")

	// ErrExpired is returned when a fetched credential is already expired.
	ErrExpired = errors.New("credential: credential expired")

	// ErrNotJWT is returned by ExpiryFromJWT for malformed tokens.
	ErrNotJWT = errors.New("credential: not a JWT")

	// ErrRejected marks a Source failure that retrying cannot fix, such as
	// a revoked refresh token. Sources wrap it; the cache does not retry.
	ErrRejected = errors.New("credential: rejected by source")
)

// Error reports a refresh that failed after all attempts. Every caller that
// waited on the refresh receives the same Error.
type Error struct {
	Key      string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("credential: refresh %q failed after %d attempt(s): %v", e.Key, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func permanent(err error) bool {
	return errors.Is(err, ErrEmptySecret) || errors.Is(err, ErrNoExpiry) || errors.Is(err, ErrRejected)
}
