package failover

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codescope/relay/internal/circuitbreaker"
	"github.com/codescope/relay/internal/health"
	"github.com/codescope/relay/internal/observe"
	"github.com/codescope/relay/internal/provider"
	"github.com/codescope/relay/internal/router"
	"github.com/codescope/relay/internal/state"
)

// Config bounds a single request's failover sequence.
type Config struct {
	// MaxAttempts caps how many backends one request may reach.
	MaxAttempts int
	// AttemptTimeout bounds a single dispatch, further clamped by the
	// remaining request deadline.
	AttemptTimeout time.Duration
	// RequestDeadline applies when the caller's context has no deadline.
	RequestDeadline time.Duration
}

// Coordinator walks the ranked candidate list for each request.
type Coordinator struct {
	registry *provider.Registry
	store    *state.Store
	breakers *circuitbreaker.Registry
	router   *router.Router
	monitor  *health.Monitor
	hook     observe.Hook
	cfg      Config
	logger   *slog.Logger
}

func NewCoordinator(
	registry *provider.Registry,
	store *state.Store,
	breakers *circuitbreaker.Registry,
	rt *router.Router,
	monitor *health.Monitor,
	hook observe.Hook,
	cfg Config,
	logger *slog.Logger,
) *Coordinator {
	if hook == nil {
		hook = observe.NopHook{}
	}

	return &Coordinator{
		registry: registry,
		store:    store,
		breakers: breakers,
		router:   rt,
		monitor:  monitor,
		hook:     hook,
		cfg:      cfg,
		logger:   logger,
	}
}

// Execute routes one request: rank candidates once, then dispatch in order
// until a provider succeeds, candidates or attempts run out, or the
// deadline expires. Every real outcome is reported to the health monitor
// and the circuit breaker; pre-dispatch circuit rejections are not
// attempts.
func (c *Coordinator) Execute(ctx context.Context, capability provider.Capability, req *provider.Request) (*provider.Response, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestDeadline)
		defer cancel()
	}
	deadline, _ := ctx.Deadline()

	candidates, err := c.router.Rank(capability)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	start := time.Now()

	var attempts []Attempt
	var skipped []provider.ID

	for _, candidate := range candidates {
		if len(attempts) >= c.cfg.MaxAttempts {
			break
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		breaker := c.breakers.GetBreaker(candidate.ID)
		if err := breaker.Acquire(); err != nil {
			// Fast rejection before dispatch; advance without consuming
			// an attempt.
			skipped = append(skipped, candidate.ID)
			c.logger.Debug("Candidate rejected by circuit",
				slog.String("request_id", requestID),
				slog.String("provider", string(candidate.ID)))
			continue
		}

		resp, attempt := c.dispatch(ctx, candidate, req, remaining)
		attempts = append(attempts, attempt)

		if attempt.Err == nil {
			c.monitor.RecordCallOutcome(candidate.ID, true, attempt.Duration)
			breaker.RecordSuccess()

			c.emit(requestID, capability, &candidate, attempts, skipped, time.Since(start))
			return resp, nil
		}

		// Caller cancellation aborts the sequence. The aborted attempt
		// stays in the log but the provider is not penalized for our
		// deadline; a half-open trial abandoned this way releases its
		// slot so the breaker can admit the next trial.
		if ctx.Err() != nil {
			breaker.Release()
			c.emit(requestID, capability, nil, attempts, skipped, time.Since(start))
			return nil, &CancelledError{Attempts: attempts, Cause: ctx.Err()}
		}

		c.monitor.RecordCallOutcome(candidate.ID, false, attempt.Duration)
		breaker.RecordFailure()

		c.logger.Warn("Attempt failed, advancing",
			slog.String("request_id", requestID),
			slog.String("provider", string(candidate.ID)),
			slog.Any("err", attempt.Err))
	}

	c.emit(requestID, capability, nil, attempts, skipped, time.Since(start))

	return nil, &AllProvidersFailedError{
		Capability: capability,
		Attempts:   attempts,
		Skipped:    skipped,
	}
}

func (c *Coordinator) dispatch(ctx context.Context, candidate router.Candidate, req *provider.Request, remaining time.Duration) (*provider.Response, Attempt) {
	client, ok := c.registry.Client(candidate.ID)
	if !ok {
		return nil, Attempt{
			Provider: candidate.ID,
			Err:      provider.WrapBackendError(candidate.ID, errors.New("no client registered")),
		}
	}

	timeout := c.cfg.AttemptTimeout
	if remaining < timeout {
		timeout = remaining
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entry := c.store.Entry(candidate.ID)
	entry.AcquireSlot()
	defer entry.ReleaseSlot()

	start := time.Now()
	resp, err := client.Call(attemptCtx, req)
	duration := time.Since(start)

	attempt := Attempt{Provider: candidate.ID, Duration: duration}
	if err != nil {
		attempt.Err = provider.WrapBackendError(candidate.ID, err)
		return nil, attempt
	}

	return resp, attempt
}

func (c *Coordinator) emit(requestID string, capability provider.Capability, winner *router.Candidate, attempts []Attempt, skipped []provider.ID, duration time.Duration) {
	decision := observe.Decision{
		RequestID:  requestID,
		Capability: string(capability),
		Attempts:   make([]observe.AttemptRecord, 0, len(attempts)),
		Duration:   duration,
		Timestamp:  time.Now(),
	}

	if winner != nil {
		decision.Chosen = string(winner.ID)
		decision.Score = winner.Score
		decision.Breakdown = observe.ScoreBreakdown{
			Quality:    winner.Breakdown.Quality,
			Latency:    winner.Breakdown.Latency,
			Load:       winner.Breakdown.Load,
			Preference: winner.Breakdown.Preference,
		}
	}

	for _, attempt := range attempts {
		record := observe.AttemptRecord{
			Provider: string(attempt.Provider),
			Duration: attempt.Duration,
		}
		if attempt.Err != nil {
			record.Error = attempt.Err.Error()
		}
		decision.Attempts = append(decision.Attempts, record)
	}

	for _, id := range skipped {
		decision.Skipped = append(decision.Skipped, string(id))
	}

	c.hook.RecordDecision(decision)
}
