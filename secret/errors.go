package secret

import "errors"

var (
	// ErrProviderNotRegistered is returned for references naming an unknown
	// provider.
	ErrProviderNotRegistered = errors.New("secret: provider not registered")

	// ErrEmptyValue is returned by a strict Resolver when a provider yields
	// an empty secret.
	ErrEmptyValue = errors.New("secret: empty value")

	// ErrNotFound is returned by providers when a reference does not exist.
	ErrNotFound = errors.New("secret: not found")

	// ErrMissingEnv is returned by ExpandEnvStrict for unset ${VAR}s.
	ErrMissingEnv = errors.New("secret: missing required environment variables")

	// ErrUnknownKey is returned by Source for keys with no reference.
	ErrUnknownKey = errors.New("secret: no reference for key")
)
