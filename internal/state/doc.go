// Package state holds the mutable per-provider runtime state shared between
// the health monitor, the router, and the failover coordinator: health
// records with a latency EWMA, and in-flight load counters.
//
// Each provider entry carries its own lock so that updates for one provider
// never serialize updates for another. Readers take point-in-time snapshots;
// no lock is held while callers score or sort.
package state
