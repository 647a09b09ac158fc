// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the routing engine's configuration:
// server settings, provider declarations with weight/quality/cost, probe and
// hysteresis thresholds, breaker cooldowns, router weights, and failover
// bounds. Every tunable constant of the engine is named here; nothing is an
// inline literal.
package config
