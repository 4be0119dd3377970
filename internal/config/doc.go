// Package config loads and validates the orchestrator's YAML configuration.
//
// Configuration files support ${VAR_NAME} environment variable expansion and
// human-readable duration strings ("5m", "30s") for TTL fields. Missing
// durations fall back to package defaults (DefaultCommandTTL, DefaultCacheTTL).
package config
