package presentation

import (
	"whatsam/internal/presentation/http"
	"whatsam/internal/presentation/ws"

	"go.uber.org/fx"
)

// Module provides all presentation layer dependencies
var Module = fx.Module("presentation",
	fx.Provide(
		http.NewHandler,
		http.NewRouter,
		ws.NewStreamHandler,
	),
)
