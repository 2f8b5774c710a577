package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// MaxKeyLength bounds store keys. Keys built by RequestKey are far shorter.
const MaxKeyLength = 512

// ErrInvalidKey is returned by Set for keys a store refuses.
var ErrInvalidKey = errors.New("cache: invalid key")

// Cache is the byte store behind a Transport. Values are encoded stored
// responses; a shared store such as a remote KV can serve several
// processes.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Get reports a miss as (nil, false), never as an error.
//   - Set with a non-positive ttl stores nothing.
//   - Delete of an absent key succeeds.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ValidateKey rejects blank keys, keys over MaxKeyLength and keys holding
// control characters.
func ValidateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return fmt.Errorf("%w: blank", ErrInvalidKey)
	case len(key) > MaxKeyLength:
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidKey, len(key), MaxKeyLength)
	case strings.IndexFunc(key, unicode.IsControl) >= 0:
		return fmt.Errorf("%w: control character", ErrInvalidKey)
	}
	return nil
}
