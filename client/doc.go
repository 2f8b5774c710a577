// Package client runs remote calls through the resilience stack.
//
// An Executor call checks the endpoint class's circuit breaker, obtains a
// credential, waits for a rate-limit permit, signs and sends the request,
// feeds the response's rate-limit headers back into the limiter and
// classifies the outcome. Retryable outcomes re-enter at the rate-limit
// step with exponential backoff that honors Retry-After.
//
// Wire details stay behind two interfaces: Transport sends a Request and
// Signer authenticates it with a credential.
package client
