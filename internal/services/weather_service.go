package services

import (
	"context"
	"fmt"

	"rain-platform/internal/features"
	"rain-platform/internal/models"
	"rain-platform/internal/repository"
	"rain-platform/pkg/logging"
	"rain-platform/pkg/metrics"
)

// WeatherService serves stored daily weather as pre-transform features
type WeatherService struct {
	repo    repository.WeatherRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewWeatherService creates a new weather service
func NewWeatherService(repo repository.WeatherRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *WeatherService {
	return &WeatherService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// GetDailyFeatures returns one aggregate row per stored day matching filter
// together with the total number of matching days
func (s *WeatherService) GetDailyFeatures(ctx context.Context, filter repository.DailyFilter) ([]models.DailyFeatures, int, error) {
	flat, total, err := s.repo.ListDailyRows(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	if len(flat.Rows) == 0 {
		return []models.DailyFeatures{}, total, nil
	}

	table, err := features.Extract(flat)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to aggregate stored days: %w", err)
	}

	out := make([]models.DailyFeatures, table.Len())
	for i, row := range table.Values {
		values := make(map[string]float64, len(row))
		for j, col := range table.Columns {
			values[col] = row[j]
		}
		out[i] = models.DailyFeatures{
			Date:     table.Dates[i].String(),
			Features: values,
			Rain:     table.Labels[i],
		}
	}
	return out, total, nil
}

// CountDays returns the number of stored days
func (s *WeatherService) CountDays(ctx context.Context) (int, error) {
	return s.repo.CountDailyRows(ctx)
}

// HealthCheck checks the backing database
func (s *WeatherService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}
