// Package circuitbreaker implements per-provider circuit breaking for the
// routing engine.
//
// A circuit breaker prevents repeated calls to a failing provider. It has
// three states:
//
//   - CLOSED: Normal operation, attempts pass through
//   - OPEN: Provider failing, attempts rejected until cooldown elapses
//   - HALF-OPEN: Exactly one trial attempt probes for recovery
//
// The cooldown doubles with every consecutive open, capped at a maximum.
// Transitions are driven only by real call outcomes reported by the
// failover coordinator, never by health probes.
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(cfg)
//	cb := registry.GetBreaker(id)
//	if err := cb.Acquire(); err == nil {
//	    // Make request...
//	    if err != nil {
//	        cb.RecordFailure()
//	    } else {
//	        cb.RecordSuccess()
//	    }
//	}
package circuitbreaker
