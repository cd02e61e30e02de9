package features

import (
	"fmt"

	"rain-platform/internal/models"
)

// RecipeVersion identifies DefaultRecipe in persisted scaler parameters
const RecipeVersion = "rain-features/v1"

// StepOp is one kind of column transformation
type StepOp string

const (
	// OpLog1p replaces each value v with ln(1+v); v must be >= -1
	OpLog1p StepOp = "log1p"
	// OpStandardize replaces v with (v-mean)/std using fitted or persisted parameters
	OpStandardize StepOp = "standardize"
	// OpCircular replaces one angle column in degrees with its sine and cosine
	OpCircular StepOp = "circular"
)

// Step applies Op to Columns. Outputs names the replacement columns of a circular step.
type Step struct {
	Op      StepOp   `json:"op"`
	Columns []string `json:"columns"`
	Outputs []string `json:"outputs,omitempty"`
}

// Recipe is the ordered list of steps shared by training and serving
type Recipe struct {
	Version string        `json:"version"`
	Input   models.Schema `json:"input"`
	Steps   []Step        `json:"steps"`
	Output  models.Schema `json:"output"`
}

// DefaultRecipe returns the transformation the rain model is trained with.
// Standardization statistics are computed after the log step.
func DefaultRecipe() Recipe {
	return Recipe{
		Version: RecipeVersion,
		Input:   models.AggregateSchema.Clone(),
		Steps: []Step{
			{
				Op:      OpLog1p,
				Columns: []string{models.ColDailySunshine, models.ColWindSpeedAvg},
			},
			{
				Op: OpStandardize,
				Columns: []string{
					models.ColTemperatureAvg,
					models.ColSurfacePressureAvg,
					models.ColRelativeHumidityAvg,
					models.ColCloudCoverAvg,
					models.ColDailyEvapotranspiration,
					models.ColDailySunshine,
					models.ColWindSpeedAvg,
				},
			},
			{
				Op:      OpCircular,
				Columns: []string{models.ColWindDirectionAvg},
				Outputs: []string{models.ColWindDirSin, models.ColWindDirCos},
			},
		},
		Output: models.PredictorSchema.Clone(),
	}
}

// StandardizedColumns returns every column a standardize step touches, in step order
func (r Recipe) StandardizedColumns() []string {
	var cols []string
	for _, step := range r.Steps {
		if step.Op == OpStandardize {
			cols = append(cols, step.Columns...)
		}
	}
	return cols
}

// Validate walks the steps over the input schema and checks that every step
// references live columns and that the result covers Output.
func (r Recipe) Validate() error {
	if r.Version == "" {
		return &models.ConfigurationError{Parameter: "recipe.version", Message: "must not be empty"}
	}

	live := r.Input.Clone()
	for i, step := range r.Steps {
		for _, col := range step.Columns {
			if !live.Contains(col) {
				return &models.ConfigurationError{
					Parameter: fmt.Sprintf("recipe.steps[%d]", i),
					Value:     col,
					Message:   fmt.Sprintf("%s step references a column that is not present", step.Op),
				}
			}
		}

		switch step.Op {
		case OpLog1p, OpStandardize:
		case OpCircular:
			if len(step.Columns) != 1 || len(step.Outputs) != 2 {
				return &models.ConfigurationError{
					Parameter: fmt.Sprintf("recipe.steps[%d]", i),
					Message:   "circular step needs one input column and two outputs",
				}
			}
			live = replaceColumn(live, step.Columns[0], step.Outputs)
		default:
			return &models.ConfigurationError{
				Parameter: fmt.Sprintf("recipe.steps[%d].op", i),
				Value:     string(step.Op),
				Message:   "unknown step",
			}
		}
	}

	for _, col := range r.Output {
		if !live.Contains(col) {
			return &models.ConfigurationError{Parameter: "recipe.output", Value: col, Message: "not produced by the steps"}
		}
	}
	return nil
}

func replaceColumn(s models.Schema, name string, with []string) models.Schema {
	out := make(models.Schema, 0, len(s)+len(with)-1)
	for _, c := range s {
		if c == name {
			out = append(out, with...)
			continue
		}
		out = append(out, c)
	}
	return out
}
