// Package failover executes requests against a ranked provider list under a
// global deadline. It is the engine's sole entry point: it asks the router
// for candidates, dispatches them in order with per-attempt timeouts,
// reports every real outcome to the health monitor and the circuit breaker,
// and returns either the first success or an aggregate error enumerating
// every attempt and its cause.
package failover
