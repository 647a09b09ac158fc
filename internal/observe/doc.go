// Package observe is the engine's observability surface. The failover
// coordinator emits one Decision per request — chosen provider, full
// attempt log, winning score breakdown — and the Collector aggregates them
// into per-provider counters plus a bounded window of recent decisions.
package observe
