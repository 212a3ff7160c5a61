package app

import (
	"whatsam/internal/application"
	"whatsam/internal/infrastructure"
	"whatsam/internal/infrastructure/config"
	"whatsam/internal/presentation"

	"go.uber.org/fx"
)

// Module aggregates all application modules for easy import
var Module = fx.Options(
	config.Module,
	infrastructure.Module,
	application.Module,
	presentation.Module,
)
