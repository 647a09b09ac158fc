package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/codescope/relay/config"
	"github.com/codescope/relay/internal/circuitbreaker"
	"github.com/codescope/relay/internal/embedding"
	"github.com/codescope/relay/internal/failover"
	"github.com/codescope/relay/internal/handler"
	"github.com/codescope/relay/internal/health"
	"github.com/codescope/relay/internal/httpserver"
	"github.com/codescope/relay/internal/observe"
	"github.com/codescope/relay/internal/provider"
	"github.com/codescope/relay/internal/router"
	"github.com/codescope/relay/internal/state"
	"github.com/codescope/relay/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry, err := buildRegistry(cfg, log)
	if err != nil {
		log.Error("Failed to build provider registry", slog.Any("err", err))
		os.Exit(1)
	}

	store := state.NewStore()

	breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{
		OpenThreshold: cfg.Breaker.OpenThreshold,
		BaseCooldown:  cfg.Breaker.BaseCooldown,
		MaxCooldown:   cfg.Breaker.MaxCooldown,
	})

	monitor := health.NewMonitor(registry, store, health.Config{
		ProbeInterval:    cfg.Health.ProbeInterval,
		ProbeTimeout:     cfg.Health.ProbeTimeout,
		Jitter:           cfg.Health.Jitter,
		FailThreshold:    cfg.Health.FailThreshold,
		SuccessThreshold: cfg.Health.SuccessThreshold,
		StaleMultiplier:  cfg.Health.StaleMultiplier,
	}, log)
	monitor.Start(ctx)

	collector, err := observe.NewCollector(
		cfg.Observability.BufferSize,
		cfg.Observability.DecisionWindow,
		costTable(registry),
		log)
	if err != nil {
		log.Error("Failed to create decision collector", slog.Any("err", err))
		os.Exit(1)
	}
	collector.Start(ctx)

	rt := router.New(registry, store, breakers,
		router.Weights{
			Quality:    cfg.Router.Weights.Quality,
			Latency:    cfg.Router.Weights.Latency,
			Load:       cfg.Router.Weights.Load,
			Preference: cfg.Router.Weights.Preference,
		},
		router.Penalties{
			Unknown:   cfg.Router.Penalties.Unknown,
			Degraded:  cfg.Router.Penalties.Degraded,
			Unhealthy: cfg.Router.Penalties.Unhealthy,
		})

	coordinator := failover.NewCoordinator(registry, store, breakers, rt, monitor, collector, failover.Config{
		MaxAttempts:     cfg.Failover.MaxAttempts,
		AttemptTimeout:  cfg.Failover.AttemptTimeout,
		RequestDeadline: cfg.Failover.RequestDeadline,
	}, log)

	embedHandler := handler.NewEmbedHandler(log, coordinator)

	mux := setupRouter(embedHandler, collector, breakers)

	srv, err := httpserver.New(cfg.Server.Address, mux)
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("Routing engine started",
		slog.String("address", cfg.Server.Address),
		slog.Int("providers", len(registry.All())))

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
		monitor.Wait()
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting server", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

// buildRegistry registers one embedding client per configured provider.
// Misconfiguration is unrecoverable and surfaces here, not at request time.
func buildRegistry(cfg *config.Config, log *slog.Logger) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	for _, pc := range cfg.Providers {
		desc := provider.Descriptor{
			Capability:  provider.Capability(pc.Capability),
			Name:        pc.Name,
			Weight:      pc.Weight,
			Quality:     pc.Quality,
			CostPerUnit: pc.CostPerUnit,
			CostUnit:    pc.CostUnit,
		}

		client, err := embedding.NewClient(embedding.Options{
			BaseURL: pc.URL,
			Model:   pc.Model,
			Token:   pc.Token,
		}, log.With(slog.String("provider", string(desc.ID()))))
		if err != nil {
			return nil, err
		}

		if err := registry.Register(desc, client); err != nil {
			return nil, err
		}

		log.Info("Registered provider",
			slog.String("provider", string(desc.ID())),
			slog.Float64("weight", pc.Weight),
			slog.Float64("quality", pc.Quality))
	}

	return registry, nil
}

func costTable(registry *provider.Registry) map[string]float64 {
	table := make(map[string]float64)
	for _, desc := range registry.All() {
		table[string(desc.ID())] = desc.CostPerUnit
	}
	return table
}
