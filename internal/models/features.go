package models

import (
	"cloud.google.com/go/civil"
)

// Daily feature column names
const (
	ColSurfacePressureAvg      = "surface_pressure_avg"
	ColTemperatureAvg          = "temperature_2m_avg"
	ColDailySunshine           = "daily_sunshine"
	ColDailyEvapotranspiration = "daily_et0_fao_evapotranspiration"
	ColRelativeHumidityAvg     = "relative_humidity_2m_avg"
	ColCloudCoverAvg           = "cloud_cover_avg"
	ColWindSpeedAvg            = "wind_speed_10m_avg"
	ColWindDirectionAvg        = "wind_direction_10m_avg"
	ColWindDirSin              = "wind_dir_sin"
	ColWindDirCos              = "wind_dir_cos"

	// LabelColumn is the binary rain target
	LabelColumn = "rain"
)

// Schema is an ordered list of column names. Order is part of the contract.
type Schema []string

// PredictorSchema is the exact predictor order the trained model consumes
var PredictorSchema = Schema{
	ColSurfacePressureAvg,
	ColTemperatureAvg,
	ColDailySunshine,
	ColDailyEvapotranspiration,
	ColRelativeHumidityAvg,
	ColCloudCoverAvg,
	ColWindSpeedAvg,
	ColWindDirSin,
	ColWindDirCos,
}

// AggregateSchema is the feature extractor output before transformation
var AggregateSchema = Schema{
	ColSurfacePressureAvg,
	ColTemperatureAvg,
	ColDailySunshine,
	ColDailyEvapotranspiration,
	ColRelativeHumidityAvg,
	ColCloudCoverAvg,
	ColWindSpeedAvg,
	ColWindDirectionAvg,
}

// Index returns the position of name, or -1
func (s Schema) Index(name string) int {
	for i, c := range s {
		if c == name {
			return i
		}
	}
	return -1
}

// Contains reports whether name is part of the schema
func (s Schema) Contains(name string) bool {
	return s.Index(name) >= 0
}

// Equal reports whether both schemas list the same names in the same order
func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Diff returns expected columns absent from actual and actual columns not expected
func (s Schema) Diff(actual Schema) (missing, extra []string) {
	for _, c := range s {
		if !actual.Contains(c) {
			missing = append(missing, c)
		}
	}
	for _, c := range actual {
		if !s.Contains(c) {
			extra = append(extra, c)
		}
	}
	return missing, extra
}

// Clone returns an independent copy
func (s Schema) Clone() Schema {
	out := make(Schema, len(s))
	copy(out, s)
	return out
}

// WithLabel appends the label column
func (s Schema) WithLabel() Schema {
	return append(s.Clone(), LabelColumn)
}

// FeatureTable is a column-ordered daily feature table. Values is row-major and
// each row lines up with Columns.
type FeatureTable struct {
	Columns Schema
	Dates   []civil.Date
	Values  [][]float64
	Labels  []int
}

// Len returns the number of rows
func (t *FeatureTable) Len() int {
	return len(t.Values)
}

// Column returns a copy of the named column, or nil when absent
func (t *FeatureTable) Column(name string) []float64 {
	idx := t.Columns.Index(name)
	if idx < 0 {
		return nil
	}
	out := make([]float64, len(t.Values))
	for i, row := range t.Values {
		out[i] = row[idx]
	}
	return out
}

// Clone deep-copies the table so later stages never mutate their input
func (t *FeatureTable) Clone() *FeatureTable {
	out := &FeatureTable{
		Columns: t.Columns.Clone(),
		Dates:   append([]civil.Date(nil), t.Dates...),
		Values:  make([][]float64, len(t.Values)),
		Labels:  append([]int(nil), t.Labels...),
	}
	for i, row := range t.Values {
		out.Values[i] = append([]float64(nil), row...)
	}
	return out
}

// Subset returns the rows at indices in the given order
func (t *FeatureTable) Subset(indices []int) *FeatureTable {
	out := &FeatureTable{
		Columns: t.Columns.Clone(),
		Dates:   make([]civil.Date, 0, len(indices)),
		Values:  make([][]float64, 0, len(indices)),
	}
	if t.Labels != nil {
		out.Labels = make([]int, 0, len(indices))
	}
	for _, i := range indices {
		out.Dates = append(out.Dates, t.Dates[i])
		out.Values = append(out.Values, append([]float64(nil), t.Values[i]...))
		if t.Labels != nil {
			out.Labels = append(out.Labels, t.Labels[i])
		}
	}
	return out
}

// LabeledSchema returns Columns followed by the label column when labels are present
func (t *FeatureTable) LabeledSchema() Schema {
	if t.Labels == nil {
		return t.Columns.Clone()
	}
	return t.Columns.WithLabel()
}

// DailyFeatures is the API view of one pre-transform feature row
type DailyFeatures struct {
	Date     string             `json:"date"`
	Features map[string]float64 `json:"features"`
	Rain     int                `json:"rain"`
}
