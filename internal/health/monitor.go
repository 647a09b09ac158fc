package health

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/codescope/relay/internal/provider"
	"github.com/codescope/relay/internal/state"
)

// Config holds the probe scheduling and hysteresis thresholds.
type Config struct {
	// ProbeInterval is the nominal delay between probes of one provider.
	ProbeInterval time.Duration
	// ProbeTimeout bounds a single probe; must be shorter than the interval.
	ProbeTimeout time.Duration
	// Jitter is the fraction of the interval randomized per sleep (0..1).
	Jitter float64
	// FailThreshold consecutive failures demote a provider to Unhealthy.
	FailThreshold int
	// SuccessThreshold consecutive successes promote a provider to Healthy.
	SuccessThreshold int
	// StaleMultiplier sets the watchdog horizon as a multiple of the
	// probe interval.
	StaleMultiplier int
}

// Monitor schedules independent health probes per provider and applies
// their outcomes, with hysteresis, to the shared state store.
type Monitor struct {
	registry *provider.Registry
	store    *state.Store
	cfg      Config
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func NewMonitor(registry *provider.Registry, store *state.Store, cfg Config, logger *slog.Logger) *Monitor {
	return &Monitor{
		registry: registry,
		store:    store,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start launches one probe loop per registered provider plus the staleness
// watchdog. All loops stop when ctx is cancelled; Wait joins them.
func (m *Monitor) Start(ctx context.Context) {
	for _, desc := range m.registry.All() {
		m.wg.Add(1)
		go m.probeLoop(ctx, desc)
	}

	m.wg.Add(1)
	go m.watchdog(ctx)
}

// Wait blocks until every probe loop has exited.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// RecordCallOutcome applies a real call result to the provider's health
// record. Real traffic is stronger evidence than a probe and uses the
// identical hysteresis rules, so each call counts as exactly one
// observation.
func (m *Monitor) RecordCallOutcome(id provider.ID, success bool, latency time.Duration) {
	entry := m.store.Entry(id)
	before := entry.Health().Status

	if success {
		entry.RecordSuccess(latency, m.cfg.SuccessThreshold, time.Now())
	} else {
		entry.RecordFailure(m.cfg.FailThreshold, time.Now())
	}

	m.logTransition(id, before, entry.Health().Status)
}

func (m *Monitor) probeLoop(ctx context.Context, desc provider.Descriptor) {
	defer m.wg.Done()

	// A panicking probe loop is respawned until shutdown.
	for ctx.Err() == nil {
		m.runProbes(ctx, desc)
	}

	m.logger.Info("Health probe stopped",
		slog.String("provider", string(desc.ID())))
}

func (m *Monitor) runProbes(ctx context.Context, desc provider.Descriptor) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Health probe panicked, respawning",
				slog.String("provider", string(desc.ID())),
				slog.Any("panic", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.jitteredInterval()):
			m.probeOnce(ctx, desc)
		}
	}
}

func (m *Monitor) probeOnce(ctx context.Context, desc provider.Descriptor) {
	id := desc.ID()

	client, ok := m.registry.Client(id)
	if !ok {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	entry := m.store.Entry(id)
	before := entry.Health().Status

	start := time.Now()
	err := client.Probe(probeCtx)
	latency := time.Since(start)

	if err != nil {
		// Probe errors land in the health record, never in a caller.
		entry.RecordFailure(m.cfg.FailThreshold, time.Now())
		m.logger.Debug("Health probe failed",
			slog.String("provider", string(id)),
			slog.Any("err", err))
	} else {
		entry.RecordSuccess(latency, m.cfg.SuccessThreshold, time.Now())
	}

	m.logTransition(id, before, entry.Health().Status)
}

// watchdog demotes records one notch when their last observation is older
// than StaleMultiplier probe intervals, so a dead probe loop cannot leave a
// provider marked Healthy forever.
func (m *Monitor) watchdog(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			horizon := time.Now().Add(-time.Duration(m.cfg.StaleMultiplier) * m.cfg.ProbeInterval)
			for _, desc := range m.registry.All() {
				id := desc.ID()
				if status, demoted := m.store.Entry(id).DemoteStale(horizon); demoted {
					m.logger.Warn("Health record stale, demoting",
						slog.String("provider", string(id)),
						slog.String("status", status.String()))
				}
			}
		}
	}
}

func (m *Monitor) jitteredInterval() time.Duration {
	if m.cfg.Jitter <= 0 {
		return m.cfg.ProbeInterval
	}

	spread := (rand.Float64()*2 - 1) * m.cfg.Jitter
	return time.Duration(float64(m.cfg.ProbeInterval) * (1 + spread))
}

func (m *Monitor) logTransition(id provider.ID, before, after state.Status) {
	if before == after {
		return
	}

	if after == state.StatusHealthy {
		m.logger.Info("Provider is back up",
			slog.String("provider", string(id)))
	} else {
		m.logger.Warn("Provider health changed",
			slog.String("provider", string(id)),
			slog.String("from", before.String()),
			slog.String("to", after.String()))
	}
}
