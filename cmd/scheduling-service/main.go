package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medgrid/clinic-scheduling/internal/scheduling"
	"github.com/medgrid/clinic-scheduling/pkg/config"
	"github.com/medgrid/clinic-scheduling/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	appLogger := logger.New(cfg.LogLevel)

	// Initialize Scheduling Service
	service, err := scheduling.New(cfg, appLogger)
	if err != nil {
		appLogger.Fatalf("Failed to initialize Scheduling Service: %v", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	// Start service in a goroutine
	go func() {
		appLogger.Infof("Starting Scheduling Service on %s", addr)
		if err := service.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatalf("Failed to start Scheduling Service: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down Scheduling Service...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := service.Stop(ctx); err != nil {
		appLogger.Errorf("Error during shutdown: %v", err)
	}
	appLogger.Info("Scheduling Service stopped")
}
