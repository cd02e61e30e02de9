package services

import (
	"context"
	"fmt"
	"time"

	"rain-platform/internal/classifier"
	"rain-platform/internal/models"
	"rain-platform/pkg/logging"
	"rain-platform/pkg/metrics"
)

// TrainingService fits and scores the rain classifier
type TrainingService struct {
	params  classifier.TrainingParams
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewTrainingService creates a training service with fixed hyperparameters
func NewTrainingService(params classifier.TrainingParams, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *TrainingService {
	return &TrainingService{
		params:  params,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Train fits the classifier on the training split
func (s *TrainingService) Train(ctx context.Context, train *models.FeatureTable) (*classifier.Model, error) {
	startTime := time.Now()

	model, err := classifier.Train(train, s.params)
	if err != nil {
		return nil, fmt.Errorf("failed to train classifier: %w", err)
	}

	s.logger.Info(ctx, "[TRAIN_COMPLETE] Classifier trained", logging.Fields{
		"rows":             train.Len(),
		"features":         len(model.Features),
		"epochs":           s.params.Epochs,
		"learning_rate":    s.params.LearningRate,
		"l2":               s.params.L2,
		"duration_seconds": time.Since(startTime).Seconds(),
	})
	return model, nil
}

// Evaluate scores model on the held-out split and publishes the scores
func (s *TrainingService) Evaluate(ctx context.Context, model *classifier.Model, test *models.FeatureTable) (*classifier.Evaluation, error) {
	eval, err := classifier.Evaluate(model, test)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate classifier: %w", err)
	}

	s.metrics.SetModelScores(eval.Scores)

	fields := logging.Fields{"rows": eval.Rows}
	for name, v := range eval.Scores {
		fields[name] = v
	}
	s.logger.Info(ctx, "[EVALUATE_COMPLETE] Classifier evaluated", fields)
	return eval, nil
}
