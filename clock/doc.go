// Package clock abstracts time so that every suspension point in the client
// core (rate-limit waits, retry backoff, poll intervals) can be driven by a
// deterministic clock in tests.
package clock
