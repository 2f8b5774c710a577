// Package secret resolves secret references found in configuration and
// serves them to a credential.Cache.
//
// A reference names a provider and a path within it:
//
//	secretref:file:/run/secrets/ci_token
//	secretref:env:CI_TOKEN
//
// Values may also embed references ("Bearer secretref:env:CI_TOKEN") and
// ${VAR} environment expansions, which are applied first and must be set.
// Providers are built by name from a Registry; DefaultRegistry knows "env"
// and "file". Source adapts a Resolver into a credential.Source so rotated
// secrets reach the cache on its next refresh.
package secret
