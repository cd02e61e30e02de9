package classifier

import (
	"fmt"
	"math"
	"time"

	"rain-platform/internal/models"
)

// TrainingParams are the fixed hyperparameters of the rain model
type TrainingParams struct {
	LearningRate float64
	Epochs       int
	L2           float64
	Threshold    float64
}

// Model is a fitted logistic regression over an ordered predictor schema
type Model struct {
	Features      models.Schema `json:"features"`
	Weights       []float64     `json:"weights"`
	Bias          float64       `json:"bias"`
	Threshold     float64       `json:"threshold"`
	RecipeVersion string        `json:"recipe_version"`
	RunID         string        `json:"run_id,omitempty"`
	TrainedAt     time.Time     `json:"trained_at"`
}

// Train fits a logistic regression with full-batch gradient descent. The bias
// is not regularized. Weights start at zero so a run is fully deterministic.
func Train(table *models.FeatureTable, params TrainingParams) (*Model, error) {
	if table == nil || table.Len() == 0 {
		return nil, &models.ConfigurationError{Parameter: "training", Message: "no rows to train on"}
	}
	if len(table.Labels) != table.Len() {
		return nil, &models.DataIntegrityError{Column: models.LabelColumn, Message: "every training row needs a label"}
	}
	if params.Epochs <= 0 || params.LearningRate <= 0 {
		return nil, &models.ConfigurationError{
			Parameter: "training",
			Value:     fmt.Sprintf("epochs=%d learning_rate=%g", params.Epochs, params.LearningRate),
			Message:   "epochs and learning rate must be positive",
		}
	}

	n := float64(table.Len())
	width := len(table.Columns)
	weights := make([]float64, width)
	grad := make([]float64, width)
	var bias float64

	for epoch := 0; epoch < params.Epochs; epoch++ {
		for j := range grad {
			grad[j] = 0
		}
		var gradBias float64

		for i, row := range table.Values {
			diff := sigmoid(dot(weights, row)+bias) - float64(table.Labels[i])
			for j, x := range row {
				grad[j] += diff * x
			}
			gradBias += diff
		}

		for j := range weights {
			weights[j] -= params.LearningRate * (grad[j]/n + params.L2*weights[j])
		}
		bias -= params.LearningRate * gradBias / n
	}

	return &Model{
		Features:  table.Columns.Clone(),
		Weights:   weights,
		Bias:      bias,
		Threshold: params.Threshold,
		TrainedAt: time.Now().UTC(),
	}, nil
}

// PredictProba returns P(rain) for one row laid out in m.Features order
func (m *Model) PredictProba(row []float64) (float64, error) {
	if len(row) != len(m.Weights) {
		return 0, &models.ValidationError{
			Field:   "values",
			Value:   fmt.Sprintf("%d", len(row)),
			Message: fmt.Sprintf("expected %d feature values, got %d", len(m.Weights), len(row)),
		}
	}
	for i, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, &models.ValidationError{Field: m.Features[i], Message: "feature values must be finite"}
		}
	}
	return sigmoid(dot(m.Weights, row) + m.Bias), nil
}

// Predict returns the label and probability for row
func (m *Model) Predict(row []float64) (int, float64, error) {
	p, err := m.PredictProba(row)
	if err != nil {
		return 0, 0, err
	}
	if p >= m.Threshold {
		return 1, p, nil
	}
	return 0, p, nil
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
