// Package credential caches short-lived secrets and refreshes them ahead of
// expiry.
//
// A Cache entry moves through three windows:
//
//	fresh        now < RefreshAt              served from memory
//	stale        RefreshAt <= now < ExpiresAt served from memory, one background refresh
//	expired      now >= ExpiresAt             never served, synchronous refresh
//
// Concurrent refreshes for the same key collapse into one Source.Fetch call.
// Different keys refresh independently.
package credential
