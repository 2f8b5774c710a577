package config

import "errors"

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("config: invalid")

	// ErrUnknownSource indicates auth.source names no credential source.
	ErrUnknownSource = errors.New("config: unknown credential source")
)
