package models

import (
	"fmt"
	"math"
	"sort"
	"time"

	"cloud.google.com/go/civil"
)

// Hourly variables requested from the archive API
const (
	VarTemperature        = "temperature_2m"
	VarRelativeHumidity   = "relative_humidity_2m"
	VarPrecipitation      = "precipitation"
	VarCloudCover         = "cloud_cover"
	VarWindSpeed          = "wind_speed_10m"
	VarWindDirection      = "wind_direction_10m"
	VarShortwave          = "shortwave_radiation"
	VarSurfacePressure    = "surface_pressure"
	VarSunshineDuration   = "sunshine_duration"
	VarEvapotranspiration = "et0_fao_evapotranspiration"
)

// HoursPerDay is the number of numbered sub-columns each variable gets per day
const HoursPerDay = 24

// DateColumn is the grouping key column of flat and feature tables
const DateColumn = "date"

// HourlyVariables lists the ten base variables in extraction order
var HourlyVariables = []string{
	VarTemperature,
	VarRelativeHumidity,
	VarPrecipitation,
	VarCloudCover,
	VarWindSpeed,
	VarWindDirection,
	VarShortwave,
	VarSurfacePressure,
	VarSunshineDuration,
	VarEvapotranspiration,
}

// Missing is the in-memory marker for an absent reading
func Missing() float64 {
	return math.NaN()
}

// IsMissing reports whether v marks an absent reading
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// HourlyRecord is one observation. Values is indexed like HourlyFrame.Variables.
type HourlyRecord struct {
	Time   time.Time
	Values []float64
}

// HourlyFrame holds one extraction window for a single location
type HourlyFrame struct {
	Latitude  float64
	Longitude float64
	Timezone  string
	Variables []string
	Records   []HourlyRecord
}

// VariableIndex returns the position of name in Variables, or -1
func (f *HourlyFrame) VariableIndex(name string) int {
	for i, v := range f.Variables {
		if v == name {
			return i
		}
	}
	return -1
}

// DailyFlatRow carries up to 24 chronologically ordered readings per variable for one date.
// A slice shorter than 24 means the trailing sub-columns are missing.
type DailyFlatRow struct {
	Date  civil.Date
	Hours map[string][]float64
}

// Value returns the reading for the 1-based hour sub-column of variable
func (r DailyFlatRow) Value(variable string, hour int) (float64, bool) {
	values := r.Hours[variable]
	if hour < 1 || hour > len(values) {
		return 0, false
	}
	v := values[hour-1]
	if IsMissing(v) {
		return 0, false
	}
	return v, true
}

// SampleCount returns the number of hourly samples the row was built from
func (r DailyFlatRow) SampleCount() int {
	n := 0
	for _, values := range r.Hours {
		if len(values) > n {
			n = len(values)
		}
	}
	return n
}

// FlatColumnName returns the numbered sub-column name, e.g. temperature_2m_7
func FlatColumnName(variable string, hour int) string {
	return fmt.Sprintf("%s_%d", variable, hour)
}

// FlatTable is the output of the daily flattener, one row per date in ascending order
type FlatTable struct {
	Variables []string
	Rows      []DailyFlatRow
}

// Columns returns date followed by every sub-column that at least one row fills,
// variable-major in Variables order.
func (t *FlatTable) Columns() []string {
	cols := []string{DateColumn}
	for _, v := range t.Variables {
		width := 0
		for _, row := range t.Rows {
			if n := len(row.Hours[v]); n > width {
				width = n
			}
		}
		for h := 1; h <= width; h++ {
			cols = append(cols, FlatColumnName(v, h))
		}
	}
	return cols
}

// Dates returns the row dates in table order
func (t *FlatTable) Dates() []civil.Date {
	dates := make([]civil.Date, len(t.Rows))
	for i, row := range t.Rows {
		dates[i] = row.Date
	}
	return dates
}

// SortByDate orders rows ascending by date
func (t *FlatTable) SortByDate() {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		return t.Rows[i].Date.Before(t.Rows[j].Date)
	})
}
