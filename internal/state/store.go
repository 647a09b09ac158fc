package state

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/codescope/relay/internal/provider"
)

// Status is the observed health of a provider.
type Status int

const (
	StatusUnknown Status = iota // never observed
	StatusHealthy
	StatusDegraded
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

const ewmaAlpha = 0.2

// HealthSnapshot is a point-in-time copy of one provider's health record.
type HealthSnapshot struct {
	Status               Status
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
	LatencyEWMA          time.Duration
	HasLatency           bool
	LastProbe            time.Time
}

// Entry is the runtime state of a single provider. The health record is
// guarded by the entry mutex; the in-flight counter is a bare atomic so the
// hot dispatch path never takes the lock.
type Entry struct {
	mutex sync.Mutex

	status               Status
	consecutiveSuccesses int
	consecutiveFailures  int
	ewmaLatency          time.Duration
	hasEWMA              bool
	lastProbe            time.Time

	inflight atomic.Int64
}

// RecordSuccess applies one successful observation (probe or real call).
// Promotion to Healthy requires successThreshold consecutive successes.
func (e *Entry) RecordSuccess(latency time.Duration, successThreshold int, now time.Time) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.consecutiveSuccesses++
	e.consecutiveFailures = 0
	e.lastProbe = now

	if !e.hasEWMA {
		e.ewmaLatency = latency
		e.hasEWMA = true
	} else {
		e.ewmaLatency = time.Duration((1-ewmaAlpha)*float64(e.ewmaLatency) + ewmaAlpha*float64(latency))
	}

	if e.consecutiveSuccesses >= successThreshold {
		e.status = StatusHealthy
	}
}

// RecordFailure applies one failed observation. A single failure demotes
// Healthy (or Unknown) to Degraded; Unhealthy requires failThreshold
// consecutive failures.
func (e *Entry) RecordFailure(failThreshold int, now time.Time) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.consecutiveFailures++
	e.consecutiveSuccesses = 0
	e.lastProbe = now

	if e.consecutiveFailures >= failThreshold {
		e.status = StatusUnhealthy
		return
	}

	if e.status == StatusHealthy || e.status == StatusUnknown {
		e.status = StatusDegraded
	}
}

// DemoteStale drops the status one notch when the record has not been
// refreshed since the staleness horizon. Returns the new status and whether
// a demotion happened. Unknown records are left alone.
func (e *Entry) DemoteStale(horizon time.Time) (Status, bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.lastProbe.IsZero() || !e.lastProbe.Before(horizon) {
		return e.status, false
	}

	switch e.status {
	case StatusHealthy:
		e.status = StatusDegraded
	case StatusDegraded:
		e.status = StatusUnhealthy
	default:
		return e.status, false
	}

	return e.status, true
}

// Health returns a copy of the current health record.
func (e *Entry) Health() HealthSnapshot {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return HealthSnapshot{
		Status:               e.status,
		ConsecutiveSuccesses: e.consecutiveSuccesses,
		ConsecutiveFailures:  e.consecutiveFailures,
		LatencyEWMA:          e.ewmaLatency,
		HasLatency:           e.hasEWMA,
		LastProbe:            e.lastProbe,
	}
}

// AcquireSlot increments the in-flight counter around a dispatch.
func (e *Entry) AcquireSlot() {
	e.inflight.Add(1)
}

// ReleaseSlot decrements the in-flight counter, flooring at zero.
func (e *Entry) ReleaseSlot() {
	for {
		current := e.inflight.Load()
		if current <= 0 {
			return
		}
		if e.inflight.CompareAndSwap(current, current-1) {
			return
		}
	}
}

// Inflight returns the current in-flight count.
func (e *Entry) Inflight() int64 {
	return e.inflight.Load()
}

// Store owns every provider Entry, created lazily on first reference.
type Store struct {
	mutex   sync.RWMutex
	entries map[provider.ID]*Entry
}

func NewStore() *Store {
	return &Store{
		entries: make(map[provider.ID]*Entry),
	}
}

// Entry returns the state entry for a provider, creating it on first use.
func (s *Store) Entry(id provider.ID) *Entry {
	s.mutex.RLock()
	entry, exists := s.entries[id]
	s.mutex.RUnlock()

	if exists {
		return entry
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if entry, exists = s.entries[id]; exists {
		return entry
	}

	entry = &Entry{}
	s.entries[id] = entry
	return entry
}

// Snapshot returns health copies for every known provider.
func (s *Store) Snapshot() map[provider.ID]HealthSnapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	snapshot := make(map[provider.ID]HealthSnapshot, len(s.entries))
	for id, entry := range s.entries {
		snapshot[id] = entry.Health()
	}

	return snapshot
}
