// Package config loads client settings from a YAML file and REMOTEOPS_*
// environment variables and converts them into component configs.
//
// Loading follows three layers: built-in defaults, the optional file, then
// the environment. Nested keys map to variables by replacing dots with
// underscores, so rate_limit.burst is read from REMOTEOPS_RATE_LIMIT_BURST.
// Durations accept Go syntax ("250ms", "5m").
//
// String values that hold credentials may be "secretref:<provider>:<ref>"
// references or contain ${VAR} placeholders. They are resolved by Build,
// not by Load, so a loaded Config never carries secret material.
//
// Map keys are lowercased by the loader. Credential keys used in
// auth.secret.refs should therefore be lowercase.
package config
