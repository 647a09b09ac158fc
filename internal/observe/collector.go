package observe

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ProviderStats aggregates request outcomes for one provider.
type ProviderStats struct {
	Selections int64   `json:"selections"`
	Successes  int64   `json:"successes"`
	Failures   int64   `json:"failures"`
	Cost       float64 `json:"cost"`
}

// Snapshot is the JSON shape served by the status handler.
type Snapshot struct {
	TotalRequests int64                    `json:"total_requests"`
	Failed        int64                    `json:"failed_requests"`
	Uptime        time.Duration            `json:"uptime"`
	Providers     map[string]ProviderStats `json:"providers"`
}

// Collector consumes routing decisions off a buffered channel, keeps
// per-provider counters, and retains a bounded LRU window of recent
// decisions for inspection.
type Collector struct {
	decisionCh chan Decision
	logger     *slog.Logger

	mutex     sync.RWMutex
	total     int64
	failed    int64
	providers map[string]*ProviderStats
	recent    *lru.Cache[string, Decision]
	startTime time.Time

	costPerUnit map[string]float64
}

// NewCollector creates a collector retaining up to windowSize recent
// decisions. costPerUnit maps provider ids to their declared cost; a
// successful attempt accrues one unit.
func NewCollector(bufferSize, windowSize int, costPerUnit map[string]float64, logger *slog.Logger) (*Collector, error) {
	recent, err := lru.New[string, Decision](windowSize)
	if err != nil {
		return nil, err
	}

	if costPerUnit == nil {
		costPerUnit = make(map[string]float64)
	}

	return &Collector{
		decisionCh:  make(chan Decision, bufferSize),
		logger:      logger,
		providers:   make(map[string]*ProviderStats),
		recent:      recent,
		startTime:   time.Now(),
		costPerUnit: costPerUnit,
	}, nil
}

// RecordDecision implements Hook. The send never blocks; decisions are
// dropped when the buffer is full.
func (c *Collector) RecordDecision(d Decision) {
	select {
	case c.decisionCh <- d:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Decision collector started")
	defer c.logger.Info("Decision collector stopped")

	for {
		select {
		case d := <-c.decisionCh:
			c.process(d)
		case <-ctx.Done():
			// Drain remaining decisions before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) drain() {
	for {
		select {
		case d := <-c.decisionCh:
			c.process(d)
		default:
			return
		}
	}
}

func (c *Collector) process(d Decision) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.total++
	c.recent.Add(d.RequestID, d)

	for _, attempt := range d.Attempts {
		stats := c.stats(attempt.Provider)
		if attempt.Error == "" {
			stats.Successes++
			stats.Cost += c.costPerUnit[attempt.Provider]
		} else {
			stats.Failures++
		}
	}

	if d.Chosen == "" {
		c.failed++
		return
	}

	c.stats(d.Chosen).Selections++
}

// stats must be called with the mutex held.
func (c *Collector) stats(id string) *ProviderStats {
	s, ok := c.providers[id]
	if !ok {
		s = &ProviderStats{}
		c.providers[id] = s
	}
	return s
}

// Snapshot returns a copy of the aggregated counters.
func (c *Collector) Snapshot() Snapshot {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	snap := Snapshot{
		TotalRequests: c.total,
		Failed:        c.failed,
		Uptime:        time.Since(c.startTime),
		Providers:     make(map[string]ProviderStats, len(c.providers)),
	}

	for id, stats := range c.providers {
		snap.Providers[id] = *stats
	}

	return snap
}

// RecentDecisions returns the retained decision window, newest first.
func (c *Collector) RecentDecisions() []Decision {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	decisions := make([]Decision, 0, c.recent.Len())
	for _, key := range c.recent.Keys() {
		if d, ok := c.recent.Peek(key); ok {
			decisions = append(decisions, d)
		}
	}

	sort.Slice(decisions, func(i, j int) bool {
		return decisions[i].Timestamp.After(decisions[j].Timestamp)
	})

	return decisions
}
