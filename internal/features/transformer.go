package features

import (
	"fmt"
	"math"

	"cloud.google.com/go/civil"

	"rain-platform/internal/models"
)

// Transformer runs a Recipe over feature tables. It holds no fitted state;
// fitted parameters travel explicitly as *ScalerParams.
type Transformer struct {
	recipe Recipe
}

// NewTransformer validates recipe and returns a transformer for it
func NewTransformer(recipe Recipe) (*Transformer, error) {
	if err := recipe.Validate(); err != nil {
		return nil, err
	}
	return &Transformer{recipe: recipe}, nil
}

// Recipe returns the recipe the transformer runs
func (t *Transformer) Recipe() Recipe {
	return t.recipe
}

// Fit computes standardization parameters over table and applies the recipe.
// This is the training-time path.
func (t *Transformer) Fit(table *models.FeatureTable) (*models.FeatureTable, *ScalerParams, error) {
	params := &ScalerParams{RecipeVersion: t.recipe.Version}
	out, err := t.run(table, params, true)
	if err != nil {
		return nil, nil, err
	}
	return out, params, nil
}

// Transform applies the recipe with previously fitted params. Nothing is re-fit.
func (t *Transformer) Transform(table *models.FeatureTable, params *ScalerParams) (*models.FeatureTable, error) {
	if params == nil {
		return nil, &models.ConfigurationError{Parameter: "scaler", Message: "fitted parameters are required"}
	}
	if params.RecipeVersion != t.recipe.Version {
		return nil, &models.ConfigurationError{
			Parameter: "scaler.recipe_version",
			Value:     params.RecipeVersion,
			Message:   fmt.Sprintf("does not match recipe %s", t.recipe.Version),
		}
	}
	return t.run(table, params, false)
}

// TransformRow transforms one pre-transform row given by column name
func (t *Transformer) TransformRow(raw map[string]float64, params *ScalerParams) ([]float64, error) {
	row := make([]float64, len(t.recipe.Input))
	for i, col := range t.recipe.Input {
		v, ok := raw[col]
		if !ok {
			return nil, &models.DataIntegrityError{Column: col, Message: "missing from input row"}
		}
		row[i] = v
	}

	table := &models.FeatureTable{
		Columns: t.recipe.Input.Clone(),
		Dates:   make([]civil.Date, 1),
		Values:  [][]float64{row},
	}
	out, err := t.Transform(table, params)
	if err != nil {
		return nil, err
	}
	return out.Values[0], nil
}

// Inverse maps a transformed table back to the recipe's input columns
func (t *Transformer) Inverse(table *models.FeatureTable, params *ScalerParams) (*models.FeatureTable, error) {
	if params == nil {
		return nil, &models.ConfigurationError{Parameter: "scaler", Message: "fitted parameters are required"}
	}

	f, err := newFrame(table, t.recipe.Output)
	if err != nil {
		return nil, err
	}

	for i := len(t.recipe.Steps) - 1; i >= 0; i-- {
		step := t.recipe.Steps[i]
		switch step.Op {
		case OpLog1p:
			for _, col := range step.Columns {
				f.mapColumn(col, math.Expm1)
			}
		case OpStandardize:
			for _, col := range step.Columns {
				stats, ok := params.Lookup(col)
				if !ok {
					return nil, &models.ConfigurationError{Parameter: "scaler", Value: col, Message: "no fitted parameters for column"}
				}
				f.mapColumn(col, stats.Invert)
			}
		case OpCircular:
			sin, cos := f.cols[step.Outputs[0]], f.cols[step.Outputs[1]]
			angle := make([]float64, len(sin))
			for r := range sin {
				deg := math.Atan2(sin[r], cos[r]) * 180 / math.Pi
				angle[r] = normalizeDegrees(deg)
			}
			f.replace(step.Outputs, step.Columns[0], angle)
		}
	}

	return f.project(t.recipe.Input)
}

func (t *Transformer) run(table *models.FeatureTable, params *ScalerParams, fit bool) (*models.FeatureTable, error) {
	f, err := newFrame(table, t.recipe.Input)
	if err != nil {
		return nil, err
	}

	for _, step := range t.recipe.Steps {
		switch step.Op {
		case OpLog1p:
			for _, col := range step.Columns {
				if err := f.checkFinite(col); err != nil {
					return nil, err
				}
				for r, v := range f.cols[col] {
					if v < -1 {
						return nil, &models.DataIntegrityError{
							Date:    f.dates[r],
							Column:  col,
							Message: fmt.Sprintf("log1p undefined for %g", v),
						}
					}
				}
				f.mapColumn(col, math.Log1p)
			}

		case OpStandardize:
			for _, col := range step.Columns {
				if err := f.checkFinite(col); err != nil {
					return nil, err
				}
				var stats ColumnStats
				if fit {
					stats, err = FitColumn(col, f.cols[col])
					if err != nil {
						return nil, err
					}
					params.Columns = append(params.Columns, stats)
				} else {
					var ok bool
					stats, ok = params.Lookup(col)
					if !ok {
						return nil, &models.ConfigurationError{Parameter: "scaler", Value: col, Message: "no fitted parameters for column"}
					}
				}
				f.mapColumn(col, stats.Apply)
			}

		case OpCircular:
			col := step.Columns[0]
			if err := f.checkFinite(col); err != nil {
				return nil, err
			}
			angles := f.cols[col]
			sin := make([]float64, len(angles))
			cos := make([]float64, len(angles))
			for r, deg := range angles {
				sin[r], cos[r] = EncodeAngle(deg)
			}
			f.replace([]string{col}, step.Outputs[0], sin)
			f.insertAfter(step.Outputs[0], step.Outputs[1], cos)
		}
	}

	return f.project(t.recipe.Output)
}

// EncodeAngle maps a meteorological angle in degrees to (sin, cos). The angle is
// reduced modulo 360 first so 360 encodes exactly like 0.
func EncodeAngle(deg float64) (float64, float64) {
	rad := normalizeDegrees(deg) * math.Pi / 180
	return math.Sin(rad), math.Cos(rad)
}

func normalizeDegrees(deg float64) float64 {
	a := math.Mod(deg, 360)
	if a < 0 {
		a += 360
	}
	return a
}
