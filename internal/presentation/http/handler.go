package http

import (
	"whatsam/internal/application/usecase"
	"whatsam/internal/infrastructure/config"
	"whatsam/internal/infrastructure/health"
	"whatsam/internal/infrastructure/logger"
)

// Handler bundles the HTTP boundary's dependencies. Routes stay thin:
// bind, validate, delegate to a usecase, map the error.
type Handler struct {
	sessionUC *usecase.SessionUseCase
	messageUC *usecase.MessageUseCase
	checker   *health.Checker
	cfg       *config.Config
	logger    logger.Logger
}

// NewHandler creates the handler bundle.
func NewHandler(
	sessionUC *usecase.SessionUseCase,
	messageUC *usecase.MessageUseCase,
	checker *health.Checker,
	cfg *config.Config,
	log logger.Logger,
) *Handler {
	return &Handler{
		sessionUC: sessionUC,
		messageUC: messageUC,
		checker:   checker,
		cfg:       cfg,
		logger:    log.WithComponent("http"),
	}
}
