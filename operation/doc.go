// Package operation tracks long-running server-side operations (role
// sessions, pipeline runs, workflow runs) to a terminal state by polling, and
// streams the logs of their sub-resources as they finish.
//
// A Poller owns the adaptive polling loop. Each iteration is one PollOnce
// step driven by an injected clock, so the loop runs in tests without real
// time passing. A Streamer shares the poller's cadence and delivers each
// sub-resource's content at most once.
package operation
