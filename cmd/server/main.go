package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BerylCAtieno/research-paper-api/internal/app"
	"github.com/BerylCAtieno/research-paper-api/internal/config"
	"github.com/BerylCAtieno/research-paper-api/internal/router"
	"github.com/BerylCAtieno/research-paper-api/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger := utils.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Build record store, blob store, providers and the pipeline
	application, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", "error", err)
	}

	// Recover documents left behind by a previous process
	if cfg.SweepInterval > 0 {
		go application.Sweeper.Run(ctx, cfg.SweepInterval)
	}

	handler := router.NewRouter(application.Service, cfg.MaxFileSize, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Documents still running after the deadline stay PROCESSING until swept
	if err := application.Close(shutdownCtx); err != nil {
		logger.Error("Failed to close application cleanly", "error", err)
		os.Exit(1)
	}

	logger.Info("Server exited")
}
