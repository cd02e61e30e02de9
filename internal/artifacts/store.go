package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"rain-platform/internal/classifier"
	"rain-platform/internal/features"
	"rain-platform/internal/models"
	"rain-platform/pkg/logging"
)

// Artifact file names under the model directory
const (
	FeatureNamesFile = "feature_names.json"
	ScalerFile       = "scaler.json"
	ModelFile        = "model.json"
	MetricsFile      = "metrics.json"

	modelDir = "model"
	splitDir = "data_split"
)

// Bundle is everything serving needs to reproduce training-time features
type Bundle struct {
	FeatureNames models.Schema
	Scaler       *features.ScalerParams
	Model        *classifier.Model
	Metrics      *classifier.Evaluation
}

// Store reads and writes pipeline artifacts below a root directory
type Store struct {
	root   string
	logger *logging.StructuredLogger
}

// NewStore creates a store rooted at root. Directories are created on write.
func NewStore(root string, logger *logging.StructuredLogger) *Store {
	return &Store{root: root, logger: logger}
}

// Root returns the store's root directory
func (s *Store) Root() string {
	return s.root
}

// ModelPath returns the path of a model artifact file
func (s *Store) ModelPath(name string) string {
	return filepath.Join(s.root, modelDir, name)
}

// SplitPath returns the path of an exported split file
func (s *Store) SplitPath(name string) string {
	return filepath.Join(s.root, splitDir, name)
}

// SaveBundle writes feature_names.json, scaler.json, model.json and, when
// present, metrics.json.
func (s *Store) SaveBundle(ctx context.Context, b *Bundle) error {
	if b == nil || b.Scaler == nil || b.Model == nil {
		return &models.ConfigurationError{Parameter: "artifacts", Message: "bundle needs a scaler and a model"}
	}

	files := []struct {
		name string
		v    interface{}
	}{
		{FeatureNamesFile, b.FeatureNames},
		{ScalerFile, b.Scaler},
		{ModelFile, b.Model},
	}
	if b.Metrics != nil {
		files = append(files, struct {
			name string
			v    interface{}
		}{MetricsFile, b.Metrics})
	}

	for _, f := range files {
		if err := writeJSON(s.ModelPath(f.name), f.v); err != nil {
			return err
		}
	}

	s.logger.Info(ctx, "[ARTIFACTS_SAVED] Model bundle persisted", logging.Fields{
		"dir":            filepath.Join(s.root, modelDir),
		"features":       len(b.FeatureNames),
		"recipe_version": b.Scaler.RecipeVersion,
	})
	return nil
}

// LoadBundle reads the bundle and checks it against the compiled predictor
// schema and recipe version. Every inconsistency found is reported.
func (s *Store) LoadBundle(ctx context.Context) (*Bundle, error) {
	b := &Bundle{Scaler: &features.ScalerParams{}, Model: &classifier.Model{}}

	var loadErr *multierror.Error
	if err := readJSON(s.ModelPath(FeatureNamesFile), &b.FeatureNames); err != nil {
		loadErr = multierror.Append(loadErr, err)
	}
	if err := readJSON(s.ModelPath(ScalerFile), b.Scaler); err != nil {
		loadErr = multierror.Append(loadErr, err)
	}
	if err := readJSON(s.ModelPath(ModelFile), b.Model); err != nil {
		loadErr = multierror.Append(loadErr, err)
	}
	if err := loadErr.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("failed to load model bundle: %w", err)
	}

	metrics := &classifier.Evaluation{}
	switch err := readJSON(s.ModelPath(MetricsFile), metrics); {
	case err == nil:
		b.Metrics = metrics
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to load model bundle: %w", err)
	}

	if err := b.Check(); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "[ARTIFACTS_LOADED] Model bundle loaded", logging.Fields{
		"dir":            filepath.Join(s.root, modelDir),
		"recipe_version": b.Scaler.RecipeVersion,
		"run_id":         b.Model.RunID,
	})
	return b, nil
}

// Check verifies that the bundle matches the feature order and recipe this
// binary was built with.
func (b *Bundle) Check() error {
	var merr *multierror.Error

	if !b.FeatureNames.Equal(models.PredictorSchema) {
		merr = multierror.Append(merr, models.NewSchemaMismatchError(FeatureNamesFile, diffMissing(models.PredictorSchema, b.FeatureNames), diffExtra(models.PredictorSchema, b.FeatureNames), true))
	}
	if !b.Model.Features.Equal(b.FeatureNames) {
		merr = multierror.Append(merr, models.NewSchemaMismatchError(ModelFile, diffMissing(b.FeatureNames, b.Model.Features), diffExtra(b.FeatureNames, b.Model.Features), true))
	}
	if len(b.Model.Weights) != len(b.Model.Features) {
		merr = multierror.Append(merr, &models.ConfigurationError{
			Parameter: "model.weights",
			Value:     fmt.Sprintf("%d", len(b.Model.Weights)),
			Message:   fmt.Sprintf("expected one weight per feature (%d)", len(b.Model.Features)),
		})
	}
	if b.Scaler.RecipeVersion != features.RecipeVersion {
		merr = multierror.Append(merr, &models.ConfigurationError{
			Parameter: "scaler.recipe_version",
			Value:     b.Scaler.RecipeVersion,
			Message:   fmt.Sprintf("expected %s", features.RecipeVersion),
		})
	}
	if b.Model.RecipeVersion != b.Scaler.RecipeVersion {
		merr = multierror.Append(merr, &models.ConfigurationError{
			Parameter: "model.recipe_version",
			Value:     b.Model.RecipeVersion,
			Message:   fmt.Sprintf("does not match scaler recipe %s", b.Scaler.RecipeVersion),
		})
	}

	if err := merr.ErrorOrNil(); err != nil {
		return fmt.Errorf("model bundle is inconsistent: %w", err)
	}
	return nil
}

func diffMissing(expected, actual models.Schema) []string {
	missing, _ := expected.Diff(actual)
	return missing
}

func diffExtra(expected, actual models.Schema) []string {
	_, extra := expected.Diff(actual)
	return extra
}

func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
