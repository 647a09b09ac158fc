package router

import (
	"sort"

	"github.com/codescope/relay/internal/circuitbreaker"
	"github.com/codescope/relay/internal/provider"
	"github.com/codescope/relay/internal/state"
)

// Weights blend the four scoring components. They are configuration
// constants expected to sum to 1.
type Weights struct {
	Quality    float64
	Latency    float64
	Load       float64
	Preference float64
}

// Penalties are subtracted from a provider's declared quality depending on
// its observed health. Unknown must stay below Degraded so that a cold
// provider ranks under an observed-Healthy peer of equal quality but above
// anything already seen failing.
type Penalties struct {
	Unknown   float64
	Degraded  float64
	Unhealthy float64
}

// Breakdown records each weighted component of a candidate's score.
type Breakdown struct {
	Quality    float64 `json:"quality"`
	Latency    float64 `json:"latency"`
	Load       float64 `json:"load"`
	Preference float64 `json:"preference"`
}

// Candidate is the ephemeral per-request ranking output for one provider.
type Candidate struct {
	ID        provider.ID
	Name      string
	Score     float64
	Breakdown Breakdown
}

// Router produces ranked candidate lists from registry, health, circuit,
// and load snapshots.
type Router struct {
	registry  *provider.Registry
	store     *state.Store
	breakers  *circuitbreaker.Registry
	weights   Weights
	penalties Penalties
}

func New(registry *provider.Registry, store *state.Store, breakers *circuitbreaker.Registry, weights Weights, penalties Penalties) *Router {
	return &Router{
		registry:  registry,
		store:     store,
		breakers:  breakers,
		weights:   weights,
		penalties: penalties,
	}
}

// Rank returns the capability's providers ordered best-first.
//
// Providers inside an open circuit's cooldown are excluded entirely. Once
// the cooldown elapses the provider becomes eligible again so the
// coordinator's Acquire can claim the half-open trial. Half-open providers
// stay nominally eligible; the breaker itself admits only one concurrent
// trial, so extra nominees fail fast and the coordinator advances past
// them.
func (r *Router) Rank(capability provider.Capability) ([]Candidate, error) {
	descriptors, err := r.registry.List(capability)
	if err != nil {
		return nil, err
	}

	maxWeight := 0.0
	for _, desc := range descriptors {
		if desc.Weight > maxWeight {
			maxWeight = desc.Weight
		}
	}

	candidates := make([]Candidate, 0, len(descriptors))

	for _, desc := range descriptors {
		id := desc.ID()

		if r.breakers.GetBreaker(id).Cooling() {
			continue
		}

		entry := r.store.Entry(id)
		health := entry.Health()
		inflight := entry.Inflight()

		candidates = append(candidates, r.score(desc, health, inflight, maxWeight))
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Name < candidates[j].Name
	})

	return candidates, nil
}

func (r *Router) score(desc provider.Descriptor, health state.HealthSnapshot, inflight int64, maxWeight float64) Candidate {
	quality := desc.Quality - r.penalty(health.Status)
	if quality < 0 {
		quality = 0
	}

	latencyScore := 1.0
	if health.HasLatency {
		latencyScore = 1 / (1 + health.LatencyEWMA.Seconds())
	}

	loadScore := 1 / (1 + float64(inflight))

	preference := 0.0
	if maxWeight > 0 {
		preference = desc.Weight / maxWeight * costEfficiency(desc)
	}

	breakdown := Breakdown{
		Quality:    r.weights.Quality * quality,
		Latency:    r.weights.Latency * latencyScore,
		Load:       r.weights.Load * loadScore,
		Preference: r.weights.Preference * preference,
	}

	return Candidate{
		ID:        desc.ID(),
		Name:      desc.Name,
		Score:     breakdown.Quality + breakdown.Latency + breakdown.Load + breakdown.Preference,
		Breakdown: breakdown,
	}
}

func (r *Router) penalty(status state.Status) float64 {
	switch status {
	case state.StatusUnknown:
		return r.penalties.Unknown
	case state.StatusDegraded:
		return r.penalties.Degraded
	case state.StatusUnhealthy:
		return r.penalties.Unhealthy
	default:
		return 0
	}
}

// costEfficiency maps a declared cost per unit to 0..1, where 1 is free.
// The reasonable ceiling depends on the unit being billed.
func costEfficiency(desc provider.Descriptor) float64 {
	ceiling := 1.0
	switch desc.CostUnit {
	case "token":
		ceiling = 0.0001
	case "second":
		ceiling = 0.1
	case "request", "GB":
		ceiling = 1.0
	}

	cost := desc.CostPerUnit
	if cost > ceiling {
		cost = ceiling
	}

	return (ceiling - cost) / ceiling
}
