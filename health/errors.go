package health

import "errors"

var (
	// ErrCheckTimeout is the error of a check that outlived the aggregator
	// timeout.
	ErrCheckTimeout = errors.New("health: check timed out")

	// ErrCheckerNotFound is returned for names that were never registered.
	ErrCheckerNotFound = errors.New("health: no such checker")

	// ErrCircuitsOpen marks an unhealthy CircuitChecker result.
	ErrCircuitsOpen = errors.New("health: too many circuits open")

	// ErrRefreshFailing marks an unhealthy CredentialChecker result.
	ErrRefreshFailing = errors.New("health: credential refreshes failing")
)
