package client

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonwraymond/remoteops/resilience"
)

// MetadataParser extracts rate-limit metadata from a response.
type MetadataParser interface {
	Parse(resp *Response, now time.Time) resilience.Observation
}

// MetadataParserFunc adapts a function to MetadataParser.
type MetadataParserFunc func(resp *Response, now time.Time) resilience.Observation

// Parse calls f.
func (f MetadataParserFunc) Parse(resp *Response, now time.Time) resilience.Observation {
	return f(resp, now)
}

// HeaderParser reads the common X-RateLimit-* and Retry-After headers.
//
// Secondary limits are recognized as a 403 or 429 that carries Retry-After,
// or mentions SecondaryMarker in its body, while the primary budget still has
// calls remaining.
type HeaderParser struct {
	LimitHeader     string
	RemainingHeader string
	// ResetHeader holds the reset time in Unix seconds.
	ResetHeader      string
	RetryAfterHeader string
	SecondaryMarker  string
}

// DefaultHeaderParser returns a HeaderParser with the conventional header
// names.
func DefaultHeaderParser() HeaderParser {
	return HeaderParser{
		LimitHeader:      "X-RateLimit-Limit",
		RemainingHeader:  "X-RateLimit-Remaining",
		ResetHeader:      "X-RateLimit-Reset",
		RetryAfterHeader: "Retry-After",
		SecondaryMarker:  "secondary rate limit",
	}
}

// Parse implements MetadataParser.
func (p HeaderParser) Parse(resp *Response, now time.Time) resilience.Observation {
	var obs resilience.Observation
	if resp == nil {
		return obs
	}
	obs.Success = resp.StatusCode >= 200 && resp.StatusCode < 400

	limit, okLimit := parseUint32(resp.Header.Get(p.LimitHeader))
	remaining, okRemaining := parseUint32(resp.Header.Get(p.RemainingHeader))
	reset, okReset := parseUnix(resp.Header.Get(p.ResetHeader))
	if okLimit && okRemaining && okReset {
		obs.HasBudget = true
		obs.Limit = limit
		obs.Remaining = remaining
		obs.ResetAt = reset
	}

	retryAfter, hasRetryAfter := parseRetryAfter(resp.Header.Get(p.RetryAfterHeader), now)
	obs.RetryAfter = retryAfter

	limited := resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests
	primaryExhausted := okRemaining && remaining == 0
	mentioned := p.SecondaryMarker != "" &&
		strings.Contains(strings.ToLower(string(resp.Body)), strings.ToLower(p.SecondaryMarker))
	obs.Secondary = limited && !primaryExhausted && (hasRetryAfter || mentioned)

	return obs
}

func parseUint32(v string) (uint32, bool) {
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

func parseUnix(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return time.Time{}, false
	}
	return time.Unix(n, 0).UTC(), true
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	when, err := http.ParseTime(v)
	if err != nil {
		return 0, false
	}
	if d := when.Sub(now); d > 0 {
		return d, true
	}
	return 0, true
}

var _ MetadataParser = HeaderParser{}
