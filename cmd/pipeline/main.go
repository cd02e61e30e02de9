package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"rain-platform/internal/artifacts"
	"rain-platform/internal/config"
	"rain-platform/internal/extraction"
	"rain-platform/internal/models"
	"rain-platform/internal/repository"
	"rain-platform/internal/services"
	"rain-platform/migrations"
	"rain-platform/pkg/database"
	"rain-platform/pkg/logging"
	"rain-platform/pkg/metrics"
)

const version = "1.0.0"

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to the YAML configuration file")
	offline := flag.String("offline", "", "Read an Open-Meteo archive JSON dump instead of calling the API (skips database stages)")
	batchSize := flag.Int("batch-size", 0, "Rows per insert transaction (default: database.batch_size)")
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
	logger, err := logging.NewFileLogger("rain-pipeline", version, logging.ParseLevel(cfg.Logging.Level), cfg.Logging.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "[PIPELINE_BOOT] Starting rain pipeline", logging.Fields{
		"version":    version,
		"config":     *configPath,
		"offline":    *offline,
		"db_driver":  cfg.Database.Driver,
		"artifacts":  cfg.Artifacts.Root,
		"batch_size": *batchSize,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("rain_pipeline", prometheus.DefaultRegisterer)

	var repo repository.WeatherRepository
	if cfg.DatabaseEnabled() && *offline == "" {
		db, err := database.Open(databaseConfig(cfg), logger, metricsCollector)
		if err != nil {
			logger.Fatal(ctx, "[PIPELINE_BOOT_ERROR] Failed to connect to database", logging.Fields{}, err)
		}
		defer db.Close()

		if err := database.NewMigrator(db, migrations.FS, ".", logger).Up(ctx); err != nil {
			logger.Fatal(ctx, "[PIPELINE_BOOT_ERROR] Failed to apply migrations", logging.Fields{}, err)
		}

		repo, err = repository.NewWeatherRepository(db, cfg.Database.Table, models.HourlyVariables, logger)
		if err != nil {
			logger.Fatal(ctx, "[PIPELINE_BOOT_ERROR] Invalid repository settings", logging.Fields{}, err)
		}
	}

	client := extraction.NewClient(cfg.Extraction.BaseURL, cfg.Extraction.Timeout, logger, metricsCollector)
	store := artifacts.NewStore(cfg.Artifacts.Root, logger)

	pipeline, err := services.NewPipelineService(cfg, client, repo, store, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[PIPELINE_BOOT_ERROR] Failed to build pipeline", logging.Fields{}, err)
	}

	result, err := pipeline.Run(ctx, services.RunOptions{OfflineFile: *offline, BatchSize: *batchSize})
	printSummary(result, err)
	if err != nil {
		var stageErr *services.StageError
		if errors.As(err, &stageErr) {
			fmt.Fprintf(os.Stderr, "\nStage %q failed (%s): %v\n", stageErr.Stage, models.FaultKind(err), stageErr.Err)
		}
		logger.Close()
		os.Exit(1)
	}
}

func databaseConfig(cfg *config.Config) *database.Config {
	return &database.Config{
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
	}
}

func printSummary(result *services.PipelineResult, err error) {
	if result == nil || result.Run == nil {
		return
	}
	run := result.Run

	fmt.Println(strings.Repeat("=", 80))
	if err != nil {
		fmt.Println("PIPELINE FAILED")
	} else {
		fmt.Println("PIPELINE COMPLETE")
	}
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Run ID:        %s\n", run.ID)
	fmt.Printf("Source:        %s\n", run.Source)
	fmt.Printf("Status:        %s\n", run.Status)
	fmt.Printf("Hourly Rows:   %d\n", run.HourlyRows)
	fmt.Printf("Daily Rows:    %d\n", run.DailyRows)
	fmt.Printf("Train Rows:    %d\n", run.TrainRows)
	fmt.Printf("Test Rows:     %d\n", run.TestRows)
	if run.FailedStage != "" {
		fmt.Printf("Failed Stage:  %s\n", run.FailedStage)
	}

	if result.Evaluation != nil {
		names := make([]string, 0, len(result.Evaluation.Scores))
		for name := range result.Evaluation.Scores {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Println("\nHeld-out scores:")
		for _, name := range names {
			fmt.Printf("  %-10s %.4f\n", name, result.Evaluation.Scores[name])
		}
	}
}
