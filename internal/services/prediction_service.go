package services

import (
	"context"
	"errors"
	"sync"

	"rain-platform/internal/artifacts"
	"rain-platform/internal/features"
	"rain-platform/internal/models"
	"rain-platform/pkg/logging"
	"rain-platform/pkg/metrics"
)

// Prediction modes
const (
	ModeTransformed = "transformed"
	ModeRaw         = "raw"
)

// ErrModelNotLoaded is returned until a bundle has been loaded
var ErrModelNotLoaded = errors.New("model bundle not loaded")

// Prediction is the model's answer for one day
type Prediction struct {
	Rain        int           `json:"rain"`
	Probability float64       `json:"probability"`
	Mode        string        `json:"mode"`
	Features    models.Schema `json:"features"`
	Values      []float64     `json:"values"`
}

// ModelInfo describes the loaded bundle
type ModelInfo struct {
	Features      models.Schema      `json:"features"`
	RecipeVersion string             `json:"recipe_version"`
	RunID         string             `json:"run_id,omitempty"`
	Threshold     float64            `json:"threshold"`
	Scores        map[string]float64 `json:"scores,omitempty"`
}

// PredictionService serves the persisted model. Raw inputs go through the
// persisted scaler; nothing is re-fit at serving time.
type PredictionService struct {
	store       *artifacts.Store
	transformer *features.Transformer
	logger      *logging.StructuredLogger
	metrics     *metrics.Collector

	mu     sync.RWMutex
	bundle *artifacts.Bundle
}

// NewPredictionService creates a service reading bundles from store
func NewPredictionService(store *artifacts.Store, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*PredictionService, error) {
	transformer, err := features.NewTransformer(features.DefaultRecipe())
	if err != nil {
		return nil, err
	}
	return &PredictionService{
		store:       store,
		transformer: transformer,
		logger:      logger,
		metrics:     metricsCollector,
	}, nil
}

// Reload reads the bundle from the store and swaps it in
func (s *PredictionService) Reload(ctx context.Context) error {
	bundle, err := s.store.LoadBundle(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.bundle = bundle
	s.mu.Unlock()

	if bundle.Metrics != nil {
		s.metrics.SetModelScores(bundle.Metrics.Scores)
	}
	return nil
}

func (s *PredictionService) current() (*artifacts.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bundle == nil {
		return nil, ErrModelNotLoaded
	}
	return s.bundle, nil
}

// Info describes the loaded model
func (s *PredictionService) Info() (*ModelInfo, error) {
	b, err := s.current()
	if err != nil {
		return nil, err
	}
	info := &ModelInfo{
		Features:      b.FeatureNames.Clone(),
		RecipeVersion: b.Scaler.RecipeVersion,
		RunID:         b.Model.RunID,
		Threshold:     b.Model.Threshold,
	}
	if b.Metrics != nil {
		info.Scores = b.Metrics.Scores
	}
	return info, nil
}

// PredictTransformed scores one already-transformed row. columns must equal the
// persisted feature order exactly; a reordered request is rejected, never
// silently realigned.
func (s *PredictionService) PredictTransformed(ctx context.Context, columns []string, values []float64) (*Prediction, error) {
	b, err := s.current()
	if err != nil {
		return nil, err
	}

	actual := models.Schema(columns)
	if !b.FeatureNames.Equal(actual) {
		missing, extra := b.FeatureNames.Diff(actual)
		return nil, models.NewSchemaMismatchError("predict", missing, extra, len(missing) == 0 && len(extra) == 0)
	}
	if len(values) != len(columns) {
		return nil, &models.ValidationError{
			Field:   "values",
			Message: "values must have one entry per column",
		}
	}

	return s.predict(ctx, b, values, ModeTransformed)
}

// PredictRaw transforms one row of daily aggregates with the persisted scaler
// and scores it
func (s *PredictionService) PredictRaw(ctx context.Context, raw map[string]float64) (*Prediction, error) {
	b, err := s.current()
	if err != nil {
		return nil, err
	}

	row, err := s.transformer.TransformRow(raw, b.Scaler)
	if err != nil {
		return nil, err
	}

	return s.predict(ctx, b, row, ModeRaw)
}

func (s *PredictionService) predict(ctx context.Context, b *artifacts.Bundle, row []float64, mode string) (*Prediction, error) {
	label, p, err := b.Model.Predict(row)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPrediction(label, mode)
	s.logger.Debug(ctx, "[PREDICT] Prediction served", logging.Fields{
		"mode":        mode,
		"rain":        label,
		"probability": p,
	})

	return &Prediction{
		Rain:        label,
		Probability: p,
		Mode:        mode,
		Features:    b.FeatureNames.Clone(),
		Values:      row,
	}, nil
}
