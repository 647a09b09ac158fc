package circuitbreaker_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/codescope/relay/internal/circuitbreaker"
	"github.com/codescope/relay/internal/provider"
)

var _ = Describe("Registry", func() {
	var registry *circuitbreaker.Registry

	BeforeEach(func() {
		registry = circuitbreaker.NewRegistry(circuitbreaker.Config{
			OpenThreshold: 5,
			BaseCooldown:  30 * time.Second,
			MaxCooldown:   5 * time.Minute,
		})
	})

	Describe("GetBreaker", func() {
		It("should create a new breaker for an unknown provider", func() {
			cb := registry.GetBreaker(provider.ID("embedding/openai"))
			Expect(cb).NotTo(BeNil())
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})

		It("should return the same breaker for the same provider", func() {
			cb1 := registry.GetBreaker(provider.ID("embedding/openai"))
			cb2 := registry.GetBreaker(provider.ID("embedding/openai"))
			Expect(cb1).To(BeIdenticalTo(cb2))
		})

		It("should return distinct breakers for distinct providers", func() {
			cb1 := registry.GetBreaker(provider.ID("embedding/openai"))
			cb2 := registry.GetBreaker(provider.ID("embedding/ollama"))
			Expect(cb1).NotTo(BeIdenticalTo(cb2))
		})

		It("should be safe under concurrent first access", func() {
			const goroutines = 32
			breakers := make([]*circuitbreaker.CircuitBreaker, goroutines)
			var wg sync.WaitGroup

			for i := 0; i < goroutines; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					breakers[i] = registry.GetBreaker(provider.ID("embedding/shared"))
				}(i)
			}
			wg.Wait()

			for i := 1; i < goroutines; i++ {
				Expect(breakers[i]).To(BeIdenticalTo(breakers[0]))
			}
		})
	})

	Describe("Stats", func() {
		It("should report the state of every known breaker", func() {
			openID := provider.ID("embedding/flaky")
			cb := registry.GetBreaker(openID)
			for i := 0; i < 5; i++ {
				cb.RecordFailure()
			}
			registry.GetBreaker(provider.ID("embedding/solid"))

			stats := registry.Stats()
			Expect(stats).To(HaveLen(2))
			Expect(stats[openID]).To(Equal(circuitbreaker.StateOpen))
			Expect(stats[provider.ID("embedding/solid")]).To(Equal(circuitbreaker.StateClosed))
		})
	})

	Describe("Reset", func() {
		It("should discard all breakers", func() {
			registry.GetBreaker(provider.ID("embedding/openai"))
			registry.Reset()
			Expect(registry.Stats()).To(BeEmpty())
		})
	})
})
