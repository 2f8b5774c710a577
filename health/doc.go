// Package health reports whether the remote endpoints a client depends on
// are usable.
//
// A Checker reports a Status: Healthy, Degraded, or Unhealthy. The package
// ships checkers over the client's own resilience state:
//
//   - CircuitChecker: endpoint classes whose circuit is open or probing
//   - CredentialChecker: credential refreshes failing since the last check
//   - RateLimitChecker: classes throttled by a low budget or a secondary limit
//
// # Aggregating Health Checks
//
//	agg := health.NewAggregator(health.AggregatorConfig{Logger: logger})
//	agg.Register("circuits", health.NewCircuitChecker(exec.Breakers(), health.CircuitCheckerConfig{}))
//	agg.Register("credentials", health.NewCredentialChecker(cache))
//	agg.Register("rate_limits", health.NewRateLimitChecker(exec.Limiter(), health.RateLimitCheckerConfig{}))
//
//	results := agg.CheckAll(ctx)
//	overall := agg.OverallStatus(results)
//
// # HTTP Endpoints
//
//	mux := http.NewServeMux()
//	health.RegisterHandlers(mux, agg) // /healthz, /readyz, /health, /health/{name}
package health
