// Package cache revalidates repeated reads against a remote API with
// conditional requests.
//
// Transport wraps a client.Transport. GET responses that carry an ETag or
// Last-Modified validator are stored; the next GET for the same URL and
// credential key is sent with If-None-Match or If-Modified-Since, and a 304
// answer is replayed from the store as the original 200. Status polls of a
// long-running operation mostly see unchanged resources, and many APIs do
// not charge 304s against the rate budget.
//
// Every request still reaches the server, so replayed answers are never
// stale and rate-limit headers stay current.
package cache
