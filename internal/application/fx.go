package application

import (
	"whatsam/internal/application/engine"
	"whatsam/internal/application/usecase"
	"whatsam/internal/domain/repository"
	"whatsam/internal/infrastructure/config"
	"whatsam/internal/infrastructure/logger"
	"whatsam/internal/infrastructure/metrics"

	"go.uber.org/fx"
)

// Module provides all application layer dependencies
var Module = fx.Module("application",
	fx.Provide(
		NewEngine,
		fx.Annotate(
			func(e *engine.Engine) *engine.Engine { return e },
			fx.As(new(repository.SessionLister)),
		),
		usecase.NewSessionUseCase,
		usecase.NewMessageUseCase,
	),
)

// NewEngine assembles the session lifecycle engine.
func NewEngine(
	cfg *config.Config,
	factory repository.ProtocolFactory,
	store repository.AuthStore,
	notifier repository.StatusNotifier,
	m *metrics.Metrics,
	log logger.Logger,
) *engine.Engine {
	return engine.New(engine.ConfigFrom(cfg), factory, store, notifier, m, log)
}
