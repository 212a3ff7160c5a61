package infrastructure

import (
	"context"
	"time"

	"whatsam/internal/application/engine"
	"whatsam/internal/domain/repository"
	"whatsam/internal/infrastructure/authstore"
	"whatsam/internal/infrastructure/config"
	"whatsam/internal/infrastructure/health"
	"whatsam/internal/infrastructure/logger"
	"whatsam/internal/infrastructure/metrics"
	"whatsam/internal/infrastructure/ratelimit"
	"whatsam/internal/infrastructure/recovery"
	"whatsam/internal/infrastructure/registry"
	"whatsam/internal/infrastructure/webhook"
	"whatsam/internal/infrastructure/websocket"
	"whatsam/internal/infrastructure/whatsapp"

	"go.uber.org/fx"
)

// Module provides all infrastructure layer dependencies
var Module = fx.Module("infrastructure",
	fx.Provide(
		NewLogger,
		NewMetrics,
		NewAuthStore,
		fx.Annotate(
			whatsapp.NewFactory,
			fx.As(new(repository.ProtocolFactory)),
		),
		registry.New,
		fx.Annotate(
			func(c *registry.Client) *registry.Client { return c },
			fx.As(new(repository.RegistryClient)),
		),
		NewEventHub,
		NewNotifier,
		NewRateLimiter,
		NewHealthChecker,
		recovery.New,
	),
	fx.Invoke(WireSessionLister),
	fx.Invoke(RunWorkerLifecycle),
)

// NewLogger builds the process logger from configuration.
func NewLogger(cfg *config.Config) logger.Logger {
	return logger.NewStructuredLogger(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

// NewMetrics builds the Prometheus collector.
func NewMetrics(cfg *config.Config) *metrics.Metrics {
	return metrics.NewMetrics(cfg.Metrics.Namespace)
}

// NewAuthStore builds the local+remote auth state store, verifying the
// object store is reachable.
func NewAuthStore(cfg *config.Config, log logger.Logger) (repository.AuthStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return authstore.New(ctx, cfg, log)
}

// NewEventHub builds the WebSocket stream hub.
func NewEventHub(log logger.Logger) *websocket.EventHub {
	return websocket.NewEventHub(websocket.DefaultHubConfig(), log)
}

// NewNotifier fans transitions out to the backend and the stream hub.
func NewNotifier(client *registry.Client, hub *websocket.EventHub) repository.StatusNotifier {
	return webhook.NewCompositeNotifier(client, hub)
}

// NewRateLimiter builds the HTTP token-bucket limiter.
func NewRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.NewLimiter(ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   cfg.RateLimit.CleanupInterval,
		MaxAge:            cfg.RateLimit.MaxAge,
	})
}

// NewHealthChecker builds the dependency prober for the health surface.
func NewHealthChecker(factory repository.ProtocolFactory, store repository.AuthStore,
	lister repository.SessionLister, backend repository.RegistryClient) *health.Checker {
	return health.NewChecker(factory, store, lister, backend)
}

// WireSessionLister hands the engine's read surface to the registry for
// heartbeat payloads. Done late to break the construction cycle.
func WireSessionLister(client *registry.Client, lister repository.SessionLister) {
	client.SetSessionLister(lister)
}

// RunWorkerLifecycle owns the worker's startup and reverse-order
// teardown: register, heartbeat and recover on the way up; preserve,
// unregister and stop the engine on the way down.
func RunWorkerLifecycle(
	lc fx.Lifecycle,
	eng *engine.Engine,
	client *registry.Client,
	coordinator *recovery.Coordinator,
	checker *health.Checker,
	hub *websocket.EventHub,
	limiter *ratelimit.Limiter,
	log logger.Logger,
) {
	workerCtx, stopWorker := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if !client.Enabled() {
					log.Info("standalone mode: backend registration disabled")
					checker.MarkReady()
					return
				}

				result, err := client.Register(workerCtx)
				if err != nil {
					// The worker still serves local traffic; registration
					// is not attempted again in this process.
					log.Error("registration failed, continuing standalone", logger.Err(err))
					checker.MarkReady()
					return
				}

				client.StartHeartbeat(workerCtx)
				checker.MarkReady()

				if result.RecoveryRequired {
					coordinator.Run(workerCtx)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// Preserve sessions before anything loses its connection.
			coordinator.Preserve(ctx)
			stopWorker()
			_ = client.Unregister(ctx)
			eng.Shutdown(ctx)
			hub.Close()
			limiter.Stop()
			return nil
		},
	})
}
