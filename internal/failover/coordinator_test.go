package failover_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/codescope/relay/internal/circuitbreaker"
	"github.com/codescope/relay/internal/failover"
	"github.com/codescope/relay/internal/health"
	"github.com/codescope/relay/internal/observe"
	"github.com/codescope/relay/internal/provider"
	"github.com/codescope/relay/internal/router"
	"github.com/codescope/relay/internal/state"
)

type fakeClient struct {
	callFn func(ctx context.Context, req *provider.Request) (*provider.Response, error)
}

func (f *fakeClient) Call(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	return f.callFn(ctx, req)
}

func (f *fakeClient) Probe(ctx context.Context) error { return nil }

func succeeding(payload any) *fakeClient {
	return &fakeClient{callFn: func(ctx context.Context, req *provider.Request) (*provider.Response, error) {
		return &provider.Response{Payload: payload}, nil
	}}
}

func failing(err error) *fakeClient {
	return &fakeClient{callFn: func(ctx context.Context, req *provider.Request) (*provider.Response, error) {
		return nil, err
	}}
}

func hanging() *fakeClient {
	return &fakeClient{callFn: func(ctx context.Context, req *provider.Request) (*provider.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
}

// recordingHook captures emitted decisions for inspection.
type recordingHook struct {
	mutex     sync.Mutex
	decisions []observe.Decision
}

func (h *recordingHook) RecordDecision(d observe.Decision) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.decisions = append(h.decisions, d)
}

func (h *recordingHook) last() observe.Decision {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	Expect(h.decisions).NotTo(BeEmpty())
	return h.decisions[len(h.decisions)-1]
}

var _ = Describe("Coordinator", func() {
	var (
		registry *provider.Registry
		store    *state.Store
		breakers *circuitbreaker.Registry
		monitor  *health.Monitor
		hook     *recordingHook
		cfg      failover.Config
		log      *slog.Logger
	)

	register := func(name string, quality float64, client provider.Client) provider.ID {
		err := registry.Register(provider.Descriptor{
			Capability: provider.CapabilityEmbedding,
			Name:       name,
			Weight:     1,
			Quality:    quality,
		}, client)
		Expect(err).NotTo(HaveOccurred())
		return provider.MakeID(provider.CapabilityEmbedding, name)
	}

	newCoordinator := func() *failover.Coordinator {
		rt := router.New(registry, store, breakers,
			router.Weights{Quality: 0.6, Latency: 0.3, Load: 0.1},
			router.Penalties{Unknown: 0.2, Degraded: 0.35, Unhealthy: 0.6})
		return failover.NewCoordinator(registry, store, breakers, rt, monitor, hook, cfg, log)
	}

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, nil))
		registry = provider.NewRegistry()
		store = state.NewStore()
		breakers = circuitbreaker.NewRegistry(circuitbreaker.Config{
			OpenThreshold: 3,
			BaseCooldown:  time.Second,
			MaxCooldown:   time.Minute,
		})
		monitor = health.NewMonitor(registry, store, health.Config{
			ProbeInterval:    time.Minute,
			ProbeTimeout:     time.Second,
			FailThreshold:    3,
			SuccessThreshold: 2,
			StaleMultiplier:  3,
		}, log)
		hook = &recordingHook{}
		cfg = failover.Config{
			MaxAttempts:     3,
			AttemptTimeout:  50 * time.Millisecond,
			RequestDeadline: 500 * time.Millisecond,
		}
	})

	request := func() *provider.Request {
		return &provider.Request{Operation: "embed", Payload: []string{"hello"}}
	}

	It("should return the first ranked provider's response on success", func() {
		a := register("alpha", 0.9, succeeding("from-alpha"))
		register("beta", 0.7, succeeding("from-beta"))

		resp, err := newCoordinator().Execute(context.Background(), provider.CapabilityEmbedding, request())
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Payload).To(Equal("from-alpha"))

		decision := hook.last()
		Expect(decision.Chosen).To(Equal(string(a)))
		Expect(decision.Attempts).To(HaveLen(1))
		Expect(store.Entry(a).Health().ConsecutiveSuccesses).To(Equal(1))
	})

	It("should fail over when the best provider times out", func() {
		a := register("alpha", 0.9, hanging())
		b := register("beta", 0.7, succeeding("from-beta"))

		resp, err := newCoordinator().Execute(context.Background(), provider.CapabilityEmbedding, request())
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Payload).To(Equal("from-beta"))

		decision := hook.last()
		Expect(decision.Attempts).To(HaveLen(2))
		Expect(decision.Attempts[0].Provider).To(Equal(string(a)))
		Expect(decision.Attempts[1].Provider).To(Equal(string(b)))

		// Only the timed-out provider accrues breaker and health penalties.
		Expect(breakers.GetBreaker(a).Failures()).To(Equal(1))
		Expect(breakers.GetBreaker(b).Failures()).To(Equal(0))
		Expect(store.Entry(a).Health().ConsecutiveFailures).To(Equal(1))
		Expect(store.Entry(b).Health().ConsecutiveFailures).To(Equal(0))
	})

	It("should classify a timed-out attempt as a timeout", func() {
		register("alpha", 0.9, hanging())
		register("beta", 0.7, succeeding("ok"))

		_, err := newCoordinator().Execute(context.Background(), provider.CapabilityEmbedding, request())
		Expect(err).NotTo(HaveOccurred())

		attempt := hook.last().Attempts[0]
		Expect(attempt.Error).To(ContainSubstring("timeout"))
	})

	It("should aggregate every attempt when all providers fail", func() {
		a := register("alpha", 0.9, failing(errors.New("alpha down")))
		b := register("beta", 0.8, failing(errors.New("beta down")))
		c := register("gamma", 0.7, failing(errors.New("gamma down")))

		_, err := newCoordinator().Execute(context.Background(), provider.CapabilityEmbedding, request())

		var allFailed *failover.AllProvidersFailedError
		Expect(errors.As(err, &allFailed)).To(BeTrue())
		Expect(allFailed.Capability).To(Equal(provider.CapabilityEmbedding))
		Expect(allFailed.Attempts).To(HaveLen(3))
		Expect(allFailed.Attempts[0].Provider).To(Equal(a))
		Expect(allFailed.Attempts[1].Provider).To(Equal(b))
		Expect(allFailed.Attempts[2].Provider).To(Equal(c))
		Expect(err.Error()).To(ContainSubstring("alpha down"))
		Expect(err.Error()).To(ContainSubstring("gamma down"))
	})

	It("should stop at the attempt cap", func() {
		cfg.MaxAttempts = 2
		register("alpha", 0.9, failing(errors.New("down")))
		register("beta", 0.8, failing(errors.New("down")))
		register("gamma", 0.7, failing(errors.New("down")))

		_, err := newCoordinator().Execute(context.Background(), provider.CapabilityEmbedding, request())

		var allFailed *failover.AllProvidersFailedError
		Expect(errors.As(err, &allFailed)).To(BeTrue())
		Expect(allFailed.Attempts).To(HaveLen(2))
	})

	It("should route around an open circuit without consuming attempts", func() {
		a := register("alpha", 0.95, failing(errors.New("down")))
		b := register("beta", 0.9, succeeding("ok"))

		breaker := breakers.GetBreaker(a)
		for i := 0; i < 3; i++ {
			breaker.RecordFailure()
		}

		resp, err := newCoordinator().Execute(context.Background(), provider.CapabilityEmbedding, request())
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Payload).To(Equal("ok"))

		decision := hook.last()
		Expect(decision.Attempts).To(HaveLen(1))
		Expect(decision.Attempts[0].Provider).To(Equal(string(b)))
		Expect(decision.Skipped).To(BeEmpty())
	})

	It("should record a pre-dispatch rejection as skipped, not attempted", func() {
		a := register("alpha", 0.95, hanging())
		register("beta", 0.9, succeeding("ok"))

		// Trip alpha into Open, wait out the cooldown so ranking sees
		// HalfOpen, then occupy the single trial slot.
		breakers = circuitbreaker.NewRegistry(circuitbreaker.Config{
			OpenThreshold: 1,
			BaseCooldown:  time.Millisecond,
			MaxCooldown:   time.Millisecond,
		})

		breaker := breakers.GetBreaker(a)
		breaker.RecordFailure()
		time.Sleep(5 * time.Millisecond)
		Expect(breaker.Acquire()).To(Succeed())

		resp, err := newCoordinator().Execute(context.Background(), provider.CapabilityEmbedding, request())
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Payload).To(Equal("ok"))

		decision := hook.last()
		Expect(decision.Skipped).To(ConsistOf(string(a)))
		Expect(decision.Attempts).To(HaveLen(1))
	})

	It("should re-admit and close a recovered provider after its cooldown", func() {
		var healthy atomic.Bool
		client := &fakeClient{callFn: func(ctx context.Context, req *provider.Request) (*provider.Response, error) {
			if healthy.Load() {
				return &provider.Response{Payload: "recovered"}, nil
			}
			return nil, errors.New("down")
		}}
		a := register("alpha", 0.9, client)

		breakers = circuitbreaker.NewRegistry(circuitbreaker.Config{
			OpenThreshold: 1,
			BaseCooldown:  50 * time.Millisecond,
			MaxCooldown:   time.Second,
		})
		coordinator := newCoordinator()

		_, err := coordinator.Execute(context.Background(), provider.CapabilityEmbedding, request())
		Expect(err).To(HaveOccurred())
		Expect(breakers.GetBreaker(a).State()).To(Equal(circuitbreaker.StateOpen))

		// Inside the cooldown the provider is not even ranked.
		_, err = coordinator.Execute(context.Background(), provider.CapabilityEmbedding, request())
		var allFailed *failover.AllProvidersFailedError
		Expect(errors.As(err, &allFailed)).To(BeTrue())
		Expect(allFailed.Attempts).To(BeEmpty())

		healthy.Store(true)
		time.Sleep(60 * time.Millisecond)

		resp, err := coordinator.Execute(context.Background(), provider.CapabilityEmbedding, request())
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Payload).To(Equal("recovered"))
		Expect(breakers.GetBreaker(a).State()).To(Equal(circuitbreaker.StateClosed))
	})

	It("should free the half-open slot when the caller cancels mid-trial", func() {
		a := register("alpha", 0.9, hanging())

		breakers = circuitbreaker.NewRegistry(circuitbreaker.Config{
			OpenThreshold: 1,
			BaseCooldown:  time.Millisecond,
			MaxCooldown:   time.Millisecond,
		})
		breaker := breakers.GetBreaker(a)
		breaker.RecordFailure()
		time.Sleep(5 * time.Millisecond)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		_, err := newCoordinator().Execute(ctx, provider.CapabilityEmbedding, request())

		var cancelled *failover.CancelledError
		Expect(errors.As(err, &cancelled)).To(BeTrue())

		// The abandoned trial must not wedge the breaker.
		Expect(breaker.State()).To(Equal(circuitbreaker.StateHalfOpen))
		Expect(breaker.Acquire()).To(Succeed())
	})

	It("should not penalize a provider when the caller cancels", func() {
		a := register("alpha", 0.9, hanging())

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		_, err := newCoordinator().Execute(ctx, provider.CapabilityEmbedding, request())

		var cancelled *failover.CancelledError
		Expect(errors.As(err, &cancelled)).To(BeTrue())
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		Expect(cancelled.Attempts).To(HaveLen(1))

		Expect(breakers.GetBreaker(a).Failures()).To(Equal(0))
		Expect(store.Entry(a).Health().ConsecutiveFailures).To(Equal(0))
	})

	It("should fail fast on an unknown capability", func() {
		_, err := newCoordinator().Execute(context.Background(), provider.CapabilityEmbedding, request())
		Expect(errors.Is(err, provider.ErrUnknownCapability)).To(BeTrue())
	})

	It("should open a breaker after repeated failures across requests", func() {
		a := register("alpha", 0.9, failing(errors.New("down")))
		coordinator := newCoordinator()

		for i := 0; i < 3; i++ {
			_, err := coordinator.Execute(context.Background(), provider.CapabilityEmbedding, request())
			Expect(err).To(HaveOccurred())
		}

		Expect(breakers.GetBreaker(a).State()).To(Equal(circuitbreaker.StateOpen))

		// With the only provider's circuit open the next request has no
		// candidates at all.
		_, err := coordinator.Execute(context.Background(), provider.CapabilityEmbedding, request())
		var allFailed *failover.AllProvidersFailedError
		Expect(errors.As(err, &allFailed)).To(BeTrue())
		Expect(allFailed.Attempts).To(BeEmpty())
	})
})
