package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-tracker-go/internal/api"
	"crypto-tracker-go/internal/app"
	"crypto-tracker-go/internal/config"
	"crypto-tracker-go/internal/logger"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracker, err := app.New(ctx, &cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracker", zap.Error(err))
	}
	defer func() {
		if err := tracker.Close(); err != nil {
			log.Error("Failed to release resources", zap.Error(err))
		}
	}()

	// Prices are fetched on demand, so an unreachable exchange only degrades reads.
	checkCtx, cancel := context.WithTimeout(ctx, cfg.Binance.Timeout)
	if serverTime, err := tracker.Market.GetServerTime(checkCtx); err != nil {
		log.Warn("Binance API is not reachable, prices will be unavailable", zap.Error(err))
	} else {
		log.Info("Successfully connected to Binance API.", zap.Time("server_time", time.UnixMilli(serverTime)))
	}
	cancel()

	handler := api.NewHandler(log, tracker.Service, tracker.Market)
	server := api.NewServer(cfg.Server, api.SetupRoutes(handler, cfg.Server.StaticDir), log)
	errCh := server.Start()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received, gracefully shutting down...")
	case err := <-errCh:
		if err != nil {
			log.Error("Web server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop web server", zap.Error(err))
	}

	log.Info("Tracker has been shut down.")
}
