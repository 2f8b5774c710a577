package auth

import "errors"

// Sentinel errors for signing and credential minting.
var (
	ErrMissingCredentials = errors.New("auth: missing credentials")
	ErrInvalidKey         = errors.New("auth: invalid signing key")
	ErrTokenEndpoint      = errors.New("auth: token endpoint failed")
	ErrTokenMalformed     = errors.New("auth: token malformed")
	ErrSignatureMismatch  = errors.New("auth: signature mismatch")
	ErrUnknownSigner      = errors.New("auth: unknown signer")
)
