package credential

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Keyer derives cache keys from a source name and the parameters of a
// credential request: role ARN, session policy, scopes, installation id.
//
// Contract:
//   - Determinism: equal inputs give equal keys, whatever the map order.
//   - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	Key(source string, params any) (string, error)
}

// DefaultKeyer hashes the JSON encoding of params. encoding/json writes map
// keys sorted at every depth, so maps with equal entries encode alike and
// map[string]string matches the equivalent map[string]any. Struct params
// encode in field order.
type DefaultKeyer struct{}

// Key returns "cred:<source>:<16 hex chars>". Secrets in params never
// appear in the key.
func (DefaultKeyer) Key(source string, params any) (string, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("credential: encode key params: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return fmt.Sprintf("cred:%s:%s", source, hex.EncodeToString(sum[:8])), nil
}

// KeyFor derives a key with DefaultKeyer.
func KeyFor(source string, params any) (string, error) {
	return DefaultKeyer{}.Key(source, params)
}

var _ Keyer = DefaultKeyer{}
