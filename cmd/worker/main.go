package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatsam/internal/app"
	"whatsam/internal/infrastructure/config"
	"whatsam/internal/presentation/ws"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

func main() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	fxApp := fx.New(
		app.Module,
		fx.Invoke(startServer),
		fx.StopTimeout(45*time.Second),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := fxApp.Start(startCtx); err != nil {
		log.Printf("failed to start worker: %v", err)
		os.Exit(1)
	}

	// First signal starts the shutdown; any further signals while it runs
	// are ignored.
	sig := <-sigChan
	log.Printf("received signal %v, shutting down", sig)
	signal.Ignore(os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 40*time.Second)
	defer stopCancel()

	if err := fxApp.Stop(stopCtx); err != nil {
		log.Printf("shutdown error: %v", err)
		os.Exit(1)
	}

	log.Println("worker stopped")
}

// startServer starts the HTTP server with graceful shutdown
func startServer(
	lc fx.Lifecycle,
	router *gin.Engine,
	streamHandler *ws.StreamHandler,
	cfg *config.Config,
) {
	streamHandler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Printf("worker %s listening on %s", cfg.Worker.ID, cfg.Server.Address())

			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Printf("server error: %v", err)
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
