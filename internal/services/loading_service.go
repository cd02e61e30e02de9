package services

import (
	"context"
	"fmt"
	"time"

	"rain-platform/internal/models"
	"rain-platform/internal/repository"
	"rain-platform/pkg/logging"
	"rain-platform/pkg/metrics"
)

// LoadingService moves flattened daily rows into the database and reads them back
type LoadingService struct {
	repo    repository.WeatherRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// LoadResult contains load statistics
type LoadResult struct {
	TotalRows    int
	InsertedRows int
	SkippedRows  int
	Duration     time.Duration
}

// NewLoadingService creates a new loading service
func NewLoadingService(repo repository.WeatherRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *LoadingService {
	return &LoadingService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Load creates the daily table when needed and inserts table in batches.
// Dates already stored are skipped, so reloading an overlapping window is safe.
func (s *LoadingService) Load(ctx context.Context, table *models.FlatTable, batchSize int) (*LoadResult, error) {
	startTime := time.Now()

	s.logger.Info(ctx, "[LOAD_START] Loading daily rows", logging.Fields{
		"rows":       len(table.Rows),
		"batch_size": batchSize,
	})

	if err := s.repo.EnsureWeatherTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare weather table: %w", err)
	}

	inserted, err := s.repo.InsertDailyRows(ctx, table, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to insert daily rows: %w", err)
	}

	result := &LoadResult{
		TotalRows:    len(table.Rows),
		InsertedRows: inserted,
		SkippedRows:  len(table.Rows) - inserted,
		Duration:     time.Since(startTime),
	}

	s.logger.Info(ctx, "[LOAD_COMPLETE] Daily rows loaded", logging.Fields{
		"total_rows":       result.TotalRows,
		"inserted_rows":    result.InsertedRows,
		"skipped_rows":     result.SkippedRows,
		"duration_seconds": result.Duration.Seconds(),
	})

	return result, nil
}

// Ingest reads every stored day back as a flat table ordered by date
func (s *LoadingService) Ingest(ctx context.Context) (*models.FlatTable, error) {
	table, total, err := s.repo.ListDailyRows(ctx, repository.DailyFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to read stored daily rows: %w", err)
	}
	if total == 0 {
		return nil, &models.DataIntegrityError{Message: "no daily rows stored"}
	}

	s.logger.Info(ctx, "[INGEST_COMPLETE] Daily rows read back", logging.Fields{
		"rows":    total,
		"columns": len(table.Columns()),
	})
	return table, nil
}
