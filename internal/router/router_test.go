package router_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/codescope/relay/internal/circuitbreaker"
	"github.com/codescope/relay/internal/provider"
	"github.com/codescope/relay/internal/router"
	"github.com/codescope/relay/internal/state"
)

type nopClient struct{}

func (nopClient) Call(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	return &provider.Response{}, nil
}

func (nopClient) Probe(ctx context.Context) error { return nil }

var _ = Describe("Router", func() {
	var (
		registry *provider.Registry
		store    *state.Store
		breakers *circuitbreaker.Registry
		rt       *router.Router
	)

	weights := router.Weights{Quality: 0.6, Latency: 0.3, Load: 0.1}
	penalties := router.Penalties{Unknown: 0.2, Degraded: 0.35, Unhealthy: 0.6}

	register := func(name string, quality, weight float64) provider.ID {
		err := registry.Register(provider.Descriptor{
			Capability: provider.CapabilityEmbedding,
			Name:       name,
			Weight:     weight,
			Quality:    quality,
		}, nopClient{})
		Expect(err).NotTo(HaveOccurred())
		return provider.MakeID(provider.CapabilityEmbedding, name)
	}

	markHealthy := func(id provider.ID, latency time.Duration) {
		store.Entry(id).RecordSuccess(latency, 1, time.Now())
	}

	BeforeEach(func() {
		registry = provider.NewRegistry()
		store = state.NewStore()
		breakers = circuitbreaker.NewRegistry(circuitbreaker.Config{
			OpenThreshold: 3,
			BaseCooldown:  time.Second,
			MaxCooldown:   time.Minute,
		})
		rt = router.New(registry, store, breakers, weights, penalties)
	})

	It("should fail for a capability with no providers", func() {
		_, err := rt.Rank(provider.CapabilityVectorStore)
		Expect(errors.Is(err, provider.ErrUnknownCapability)).To(BeTrue())
	})

	It("should prefer quality over latency under the default weights", func() {
		a := register("alpha", 0.9, 1)
		b := register("beta", 0.7, 1)
		c := register("gamma", 0.9, 1)

		markHealthy(a, 50*time.Millisecond)
		markHealthy(b, 10*time.Millisecond)
		markHealthy(c, 10*time.Millisecond)

		for i := 0; i < 3; i++ {
			breakers.GetBreaker(c).RecordFailure()
		}

		candidates, err := rt.Rank(provider.CapabilityEmbedding)
		Expect(err).NotTo(HaveOccurred())

		Expect(candidates).To(HaveLen(2))
		Expect(candidates[0].ID).To(Equal(a))
		Expect(candidates[1].ID).To(Equal(b))
	})

	It("should exclude open-circuit providers entirely", func() {
		a := register("alpha", 0.9, 1)
		markHealthy(a, 10*time.Millisecond)

		for i := 0; i < 3; i++ {
			breakers.GetBreaker(a).RecordFailure()
		}

		candidates, err := rt.Rank(provider.CapabilityEmbedding)
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).To(BeEmpty())
	})

	It("should keep an open provider eligible once its cooldown elapses", func() {
		breakers = circuitbreaker.NewRegistry(circuitbreaker.Config{
			OpenThreshold: 1,
			BaseCooldown:  time.Millisecond,
			MaxCooldown:   time.Millisecond,
		})
		rt = router.New(registry, store, breakers, weights, penalties)

		a := register("alpha", 0.9, 1)
		breakers.GetBreaker(a).RecordFailure()

		candidates, err := rt.Rank(provider.CapabilityEmbedding)
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).To(BeEmpty())

		time.Sleep(5 * time.Millisecond)

		candidates, err = rt.Rank(provider.CapabilityEmbedding)
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).To(HaveLen(1))
		Expect(candidates[0].ID).To(Equal(a))
	})

	It("should rank Healthy above Unknown above Degraded at equal quality", func() {
		healthy := register("healthy", 0.9, 1)
		register("unknown", 0.9, 1)
		degraded := register("degraded", 0.9, 1)

		markHealthy(healthy, 10*time.Millisecond)
		markHealthy(degraded, 10*time.Millisecond)
		store.Entry(degraded).RecordFailure(3, time.Now())

		candidates, err := rt.Rank(provider.CapabilityEmbedding)
		Expect(err).NotTo(HaveOccurred())

		Expect(candidates[0].Name).To(Equal("healthy"))
		Expect(candidates[1].Name).To(Equal("unknown"))
		Expect(candidates[2].Name).To(Equal("degraded"))
	})

	It("should rank loaded providers below idle peers", func() {
		busy := register("busy", 0.9, 1)
		idle := register("idle", 0.9, 1)

		markHealthy(busy, 10*time.Millisecond)
		markHealthy(idle, 10*time.Millisecond)

		store.Entry(busy).AcquireSlot()
		store.Entry(busy).AcquireSlot()

		candidates, err := rt.Rank(provider.CapabilityEmbedding)
		Expect(err).NotTo(HaveOccurred())

		Expect(candidates[0].Name).To(Equal("idle"))
		Expect(candidates[1].Name).To(Equal("busy"))
	})

	It("should break exact ties by name", func() {
		register("beta", 0.9, 1)
		register("alpha", 0.9, 1)

		candidates, err := rt.Rank(provider.CapabilityEmbedding)
		Expect(err).NotTo(HaveOccurred())

		Expect(candidates[0].Name).To(Equal("alpha"))
		Expect(candidates[1].Name).To(Equal("beta"))
		Expect(candidates[0].Score).To(Equal(candidates[1].Score))
	})

	It("should report a breakdown that sums to the score", func() {
		a := register("alpha", 0.9, 1)
		markHealthy(a, 25*time.Millisecond)

		candidates, err := rt.Rank(provider.CapabilityEmbedding)
		Expect(err).NotTo(HaveOccurred())

		b := candidates[0].Breakdown
		Expect(b.Quality + b.Latency + b.Load + b.Preference).To(BeNumerically("~", candidates[0].Score, 1e-12))
	})

	It("should give an unprobed provider a neutral latency score", func() {
		register("cold", 0.9, 1)

		candidates, err := rt.Rank(provider.CapabilityEmbedding)
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates[0].Breakdown.Latency).To(BeNumerically("~", weights.Latency, 1e-12))
	})

	Context("with a preference weight", func() {
		prefWeights := router.Weights{Quality: 0.5, Latency: 0.2, Load: 0.1, Preference: 0.2}

		BeforeEach(func() {
			rt = router.New(registry, store, breakers, prefWeights, penalties)
		})

		It("should favor the heavier of two otherwise equal providers", func() {
			heavy := register("heavy", 0.9, 4)
			light := register("light", 0.9, 1)

			markHealthy(heavy, 10*time.Millisecond)
			markHealthy(light, 10*time.Millisecond)

			candidates, err := rt.Rank(provider.CapabilityEmbedding)
			Expect(err).NotTo(HaveOccurred())

			Expect(candidates[0].Name).To(Equal("heavy"))
			Expect(candidates[1].Name).To(Equal("light"))
		})

		It("should favor the cheaper of two otherwise equal providers", func() {
			cheapDesc := provider.Descriptor{
				Capability:  provider.CapabilityEmbedding,
				Name:        "cheap",
				Weight:      1,
				Quality:     0.9,
				CostPerUnit: 0.00001,
				CostUnit:    "token",
			}
			priceyDesc := cheapDesc
			priceyDesc.Name = "pricey"
			priceyDesc.CostPerUnit = 0.00008

			Expect(registry.Register(cheapDesc, nopClient{})).To(Succeed())
			Expect(registry.Register(priceyDesc, nopClient{})).To(Succeed())

			markHealthy(cheapDesc.ID(), 10*time.Millisecond)
			markHealthy(priceyDesc.ID(), 10*time.Millisecond)

			candidates, err := rt.Rank(provider.CapabilityEmbedding)
			Expect(err).NotTo(HaveOccurred())

			Expect(candidates[0].Name).To(Equal("cheap"))
			Expect(candidates[1].Name).To(Equal("pricey"))
		})
	})
})
