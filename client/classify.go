package client

import (
	"context"
	"errors"
	"net/http"

	"github.com/jonwraymond/remoteops/resilience"
)

// Verdict is the classification of one attempt.
type Verdict struct {
	// Success ends the call with the response.
	Success bool

	// Retryable failures are attempted again while attempts remain.
	Retryable bool

	// Healthy means the backend answered sanely even though the call
	// failed (e.g. a 404). A non-retryable healthy outcome counts as a
	// circuit success; exhausted retryable outcomes always count as
	// failures.
	Healthy bool

	// RefreshCredential asks for the credential to be invalidated and
	// fetched again before the next attempt.
	RefreshCredential bool
}

// Classifier decides what an attempt's outcome means.
type Classifier interface {
	Classify(resp *Response, obs resilience.Observation, err error) Verdict
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(resp *Response, obs resilience.Observation, err error) Verdict

// Classify calls f.
func (f ClassifierFunc) Classify(resp *Response, obs resilience.Observation, err error) Verdict {
	return f(resp, obs, err)
}

// DefaultClassifier treats network errors, timeouts, 408, 429, 5xx
// gateway statuses and rate-limited 403s as retryable, and a 401 as a cue
// to refresh the credential once.
type DefaultClassifier struct {
	// ClientErrorsHealthy keeps non-retryable 4xx responses (404, a plain
	// 403, a repeated 401) from counting against the circuit.
	ClientErrorsHealthy bool
}

// Classify implements Classifier.
func (c DefaultClassifier) Classify(resp *Response, obs resilience.Observation, err error) Verdict {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Verdict{}
		}
		return Verdict{Retryable: true}
	}

	code := resp.StatusCode
	switch {
	case code >= 200 && code < 400:
		return Verdict{Success: true, Healthy: true}
	case code == http.StatusUnauthorized:
		return Verdict{Retryable: true, Healthy: c.ClientErrorsHealthy, RefreshCredential: true}
	case code == http.StatusTooManyRequests:
		return Verdict{Retryable: true}
	case code == http.StatusForbidden && (obs.Secondary || (obs.HasBudget && obs.Remaining == 0)):
		return Verdict{Retryable: true}
	case code == http.StatusRequestTimeout,
		code == http.StatusInternalServerError,
		code == http.StatusBadGateway,
		code == http.StatusServiceUnavailable,
		code == http.StatusGatewayTimeout:
		return Verdict{Retryable: true}
	case code >= 500:
		return Verdict{}
	default:
		return Verdict{Healthy: c.ClientErrorsHealthy}
	}
}

var _ Classifier = DefaultClassifier{}
