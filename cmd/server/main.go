package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rain-platform/internal/artifacts"
	"rain-platform/internal/config"
	"rain-platform/internal/handlers"
	"rain-platform/internal/models"
	"rain-platform/internal/repository"
	"rain-platform/internal/services"
	"rain-platform/pkg/database"
	"rain-platform/pkg/logging"
	"rain-platform/pkg/metrics"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the YAML configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := logging.NewStructuredLogger("rain-api", version, logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting rain platform API server", logging.Fields{
		"version":     version,
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"db_driver":   cfg.Database.Driver,
		"artifacts":   cfg.Artifacts.Root,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("rain_platform", prometheus.DefaultRegisterer)

	// Initialize database
	var weatherService *services.WeatherService
	if cfg.DatabaseEnabled() {
		db, err := database.Open(&database.Config{
			Driver:          cfg.Database.Driver,
			Path:            cfg.Database.Path,
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.Database,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		}, logger, metricsCollector)
		if err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
		}
		defer db.Close()

		weatherRepo, err := repository.NewWeatherRepository(db, cfg.Database.Table, models.HourlyVariables, logger)
		if err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Invalid repository settings", logging.Fields{}, err)
		}
		weatherService = services.NewWeatherService(weatherRepo, logger, metricsCollector)
	}

	// Initialize prediction service; a missing bundle is not fatal
	predictionService, err := services.NewPredictionService(artifacts.NewStore(cfg.Artifacts.Root, logger), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to build prediction service", logging.Fields{}, err)
	}
	if err := predictionService.Reload(ctx); err != nil {
		logger.Warn(ctx, "[STARTUP_NO_MODEL] Model bundle not loaded, /api/predict answers 503 until reload", logging.Fields{
			"error": err.Error(),
		})
	}

	weatherHandler := handlers.NewWeatherHandler(weatherService, predictionService, logger, metricsCollector)

	// Setup router
	router := mux.NewRouter()
	weatherHandler.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler())

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
