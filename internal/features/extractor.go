// Package features turns flat daily rows into the model's predictor table.
package features

import (
	"fmt"

	"cloud.google.com/go/civil"

	"rain-platform/internal/models"
)

// AggregateOp reduces one day's hourly samples of a variable
type AggregateOp string

const (
	AggregateMean AggregateOp = "mean"
	AggregateSum  AggregateOp = "sum"
)

// Aggregation maps a variable family onto one daily column
type Aggregation struct {
	Output string
	Source string
	Op     AggregateOp
}

// DailyAggregations lists the aggregates in output order. shortwave_radiation has
// no entry and precipitation only feeds the label.
var DailyAggregations = []Aggregation{
	{Output: models.ColSurfacePressureAvg, Source: models.VarSurfacePressure, Op: AggregateMean},
	{Output: models.ColTemperatureAvg, Source: models.VarTemperature, Op: AggregateMean},
	{Output: models.ColDailySunshine, Source: models.VarSunshineDuration, Op: AggregateSum},
	{Output: models.ColDailyEvapotranspiration, Source: models.VarEvapotranspiration, Op: AggregateSum},
	{Output: models.ColRelativeHumidityAvg, Source: models.VarRelativeHumidity, Op: AggregateMean},
	{Output: models.ColCloudCoverAvg, Source: models.VarCloudCover, Op: AggregateMean},
	{Output: models.ColWindSpeedAvg, Source: models.VarWindSpeed, Op: AggregateMean},
	{Output: models.ColWindDirectionAvg, Source: models.VarWindDirection, Op: AggregateMean},
}

// LabelSource is the variable family summed into the rain label
const LabelSource = models.VarPrecipitation

// Extract maps every flat row 1:1 onto a pre-transform feature row with the rain
// label. Aggregates use only the present samples of a day; a family with no
// present sample is a data integrity fault.
func Extract(flat *models.FlatTable) (*models.FeatureTable, error) {
	if flat == nil {
		return nil, fmt.Errorf("extract features: nil table")
	}

	available := models.Schema(flat.Variables)
	if !available.Contains(LabelSource) {
		return nil, &models.DataIntegrityError{Column: LabelSource, Message: "variable family missing from flat table"}
	}
	for _, agg := range DailyAggregations {
		if !available.Contains(agg.Source) {
			return nil, &models.DataIntegrityError{Column: agg.Source, Message: "variable family missing from flat table"}
		}
	}

	columns := make(models.Schema, len(DailyAggregations))
	for i, agg := range DailyAggregations {
		columns[i] = agg.Output
	}

	out := &models.FeatureTable{
		Columns: columns,
		Dates:   make([]civil.Date, 0, len(flat.Rows)),
		Values:  make([][]float64, 0, len(flat.Rows)),
		Labels:  make([]int, 0, len(flat.Rows)),
	}

	for _, row := range flat.Rows {
		precipitation, err := aggregate(row, LabelSource, AggregateSum)
		if err != nil {
			return nil, err
		}

		values := make([]float64, len(DailyAggregations))
		for i, agg := range DailyAggregations {
			v, err := aggregate(row, agg.Source, agg.Op)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}

		out.Dates = append(out.Dates, row.Date)
		out.Values = append(out.Values, values)
		out.Labels = append(out.Labels, RainLabel(precipitation))
	}

	return out, nil
}

// RainLabel is 1 when the day's precipitation sum is strictly positive
func RainLabel(precipitationSum float64) int {
	if precipitationSum > 0 {
		return 1
	}
	return 0
}

func aggregate(row models.DailyFlatRow, variable string, op AggregateOp) (float64, error) {
	var sum float64
	present := 0
	for h := 1; h <= models.HoursPerDay; h++ {
		v, ok := row.Value(variable, h)
		if !ok {
			continue
		}
		sum += v
		present++
	}

	if present == 0 {
		return 0, &models.DataIntegrityError{
			Date:    row.Date.String(),
			Column:  variable,
			Message: "no hourly samples present",
		}
	}

	switch op {
	case AggregateMean:
		return sum / float64(present), nil
	case AggregateSum:
		return sum, nil
	default:
		return 0, fmt.Errorf("unknown aggregation %q", op)
	}
}
