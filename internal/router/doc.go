// Package router ranks the providers of a capability for one request.
//
// Ranking is a pure function over snapshots of the registry, the health
// records, the circuit states, and the in-flight load counters. Providers
// with an open circuit are filtered out; the rest are scored by a blended
// quality/latency/load/preference metric and sorted descending, ties broken
// by name for determinism. The router never mutates state and never calls
// a provider.
package router
