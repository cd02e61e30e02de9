package features

import (
	"math"

	"rain-platform/internal/models"
)

// ColumnStats is the fitted standardization of one column
type ColumnStats struct {
	Column string  `json:"column"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std"`
}

// ScalerParams is fitted once at training time and reused for every later transform
type ScalerParams struct {
	RecipeVersion string        `json:"recipe_version"`
	Columns       []ColumnStats `json:"columns"`
}

// Lookup returns the stats for column
func (p *ScalerParams) Lookup(column string) (ColumnStats, bool) {
	if p == nil {
		return ColumnStats{}, false
	}
	for _, c := range p.Columns {
		if c.Column == column {
			return c, true
		}
	}
	return ColumnStats{}, false
}

// FitColumn computes the population mean and standard deviation of values.
// A constant column has no defined scale and is rejected.
func FitColumn(column string, values []float64) (ColumnStats, error) {
	if len(values) == 0 {
		return ColumnStats{}, &models.ConfigurationError{Parameter: column, Message: "cannot standardize an empty column"}
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(values)))

	if std <= 1e-12*math.Max(1, math.Abs(mean)) {
		return ColumnStats{}, &models.ConfigurationError{
			Parameter: column,
			Message:   "zero variance, standardization is undefined",
		}
	}

	return ColumnStats{Column: column, Mean: mean, StdDev: std}, nil
}

// Apply standardizes v
func (s ColumnStats) Apply(v float64) float64 {
	return (v - s.Mean) / s.StdDev
}

// Invert undoes Apply
func (s ColumnStats) Invert(v float64) float64 {
	return v*s.StdDev + s.Mean
}
