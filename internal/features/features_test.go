package features

import (
	"math"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rain-platform/internal/etl"
	"rain-platform/internal/models"
)

const tolerance = 1e-9

// twoDayFrame builds 48 hourly records with every variable populated and rain on day one only
func twoDayFrame() *models.HourlyFrame {
	frame := &models.HourlyFrame{Variables: append([]string(nil), models.HourlyVariables...)}
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 48; h++ {
		values := make([]float64, len(frame.Variables))
		for i, v := range frame.Variables {
			switch v {
			case models.VarPrecipitation:
				if h < 24 && h%6 == 0 {
					values[i] = 0.4
				}
			case models.VarTemperature:
				values[i] = 15 + float64(h)/2
			case models.VarSurfacePressure:
				values[i] = 1010 + float64(h)/4
			case models.VarWindDirection:
				values[i] = float64((h * 37) % 360)
			case models.VarSunshineDuration:
				values[i] = float64(h * 100)
			default:
				values[i] = float64(h) + float64(i)
			}
		}
		frame.Records = append(frame.Records, models.HourlyRecord{Time: start.Add(time.Duration(h) * time.Hour), Values: values})
	}
	return frame
}

func TestEndToEnd_TwoDays(t *testing.T) {
	flat, err := etl.FlattenDaily(twoDayFrame())
	require.NoError(t, err)
	require.Len(t, flat.Rows, 2)
	assert.Len(t, flat.Columns(), 241)

	aggregated, err := Extract(flat)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, aggregated.Labels)
	assert.True(t, models.AggregateSchema.Equal(aggregated.Columns), "columns = %v", aggregated.Columns)

	transformer, err := NewTransformer(DefaultRecipe())
	require.NoError(t, err)

	transformed, params, err := transformer.Fit(aggregated)
	require.NoError(t, err)
	require.Equal(t, 2, transformed.Len())
	assert.True(t, models.PredictorSchema.Equal(transformed.Columns), "columns = %v", transformed.Columns)
	assert.Equal(t, []int{1, 0}, transformed.Labels)
	assert.Len(t, params.Columns, 7)
	assert.Equal(t, RecipeVersion, params.RecipeVersion)

	for _, name := range []string{models.ColWindDirSin, models.ColWindDirCos} {
		for _, v := range transformed.Column(name) {
			assert.GreaterOrEqual(t, v, -1.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}

	// input table is left untouched
	assert.True(t, models.AggregateSchema.Equal(aggregated.Columns))
}

func TestExtract_Labels(t *testing.T) {
	tests := []struct {
		name   string
		precip []float64
		want   int
	}{
		{name: "positive sum", precip: []float64{0, 0, 0.1}, want: 1},
		{name: "exact zero", precip: []float64{0, 0, 0}, want: 0},
		{name: "missing hours ignored", precip: []float64{math.NaN(), 0.2}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := fullRow(civil.Date{Year: 2024, Month: 1, Day: 1}, 3)
			row.Hours[models.VarPrecipitation] = tt.precip
			table, err := Extract(&models.FlatTable{Variables: models.HourlyVariables, Rows: []models.DailyFlatRow{row}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, table.Labels[0])
		})
	}
}

func TestExtract_PartialDayUsesPresentValues(t *testing.T) {
	row := fullRow(civil.Date{Year: 2024, Month: 1, Day: 1}, 24)
	temps := make([]float64, 20)
	for i := range temps {
		temps[i] = float64(i + 1)
	}
	row.Hours[models.VarTemperature] = temps

	table, err := Extract(&models.FlatTable{Variables: models.HourlyVariables, Rows: []models.DailyFlatRow{row}})
	require.NoError(t, err)

	got := table.Column(models.ColTemperatureAvg)[0]
	assert.InDelta(t, 10.5, got, tolerance, "mean over the 20 present values")
}

func TestExtract_Aggregations(t *testing.T) {
	row := fullRow(civil.Date{Year: 2024, Month: 1, Day: 1}, 24)
	table, err := Extract(&models.FlatTable{Variables: models.HourlyVariables, Rows: []models.DailyFlatRow{row}})
	require.NoError(t, err)

	// fullRow fills every hour with 2
	assert.InDelta(t, 2, table.Column(models.ColSurfacePressureAvg)[0], tolerance)
	assert.InDelta(t, 48, table.Column(models.ColDailySunshine)[0], tolerance)
	assert.InDelta(t, 48, table.Column(models.ColDailyEvapotranspiration)[0], tolerance)
	assert.InDelta(t, 2, table.Column(models.ColWindDirectionAvg)[0], tolerance)
	assert.False(t, table.Columns.Contains("shortwave_radiation_avg"))
	for _, c := range table.Columns {
		assert.NotContains(t, c, models.VarPrecipitation)
	}
}

func TestExtract_Faults(t *testing.T) {
	t.Run("all samples missing", func(t *testing.T) {
		row := fullRow(civil.Date{Year: 2024, Month: 2, Day: 3}, 24)
		row.Hours[models.VarCloudCover] = []float64{math.NaN(), math.NaN()}
		_, err := Extract(&models.FlatTable{Variables: models.HourlyVariables, Rows: []models.DailyFlatRow{row}})

		var integrity *models.DataIntegrityError
		require.ErrorAs(t, err, &integrity)
		assert.Equal(t, "2024-02-03", integrity.Date)
		assert.Equal(t, models.VarCloudCover, integrity.Column)
	})

	t.Run("variable family absent", func(t *testing.T) {
		vars := []string{models.VarTemperature, models.VarPrecipitation}
		_, err := Extract(&models.FlatTable{Variables: vars})
		assert.True(t, models.IsDataIntegrity(err))
	})
}

func TestEncodeAngle(t *testing.T) {
	tests := []struct {
		deg float64
		sin float64
		cos float64
	}{
		{deg: 0, sin: 0, cos: 1},
		{deg: 90, sin: 1, cos: 0},
		{deg: 180, sin: 0, cos: -1},
		{deg: 270, sin: -1, cos: 0},
		{deg: -90, sin: -1, cos: 0},
	}

	for _, tt := range tests {
		sin, cos := EncodeAngle(tt.deg)
		assert.InDelta(t, tt.sin, sin, tolerance, "sin(%v)", tt.deg)
		assert.InDelta(t, tt.cos, cos, tolerance, "cos(%v)", tt.deg)
	}

	s0, c0 := EncodeAngle(0)
	s360, c360 := EncodeAngle(360)
	assert.Equal(t, s0, s360)
	assert.Equal(t, c0, c360)
	assert.Equal(t, 0.0, s0)
	assert.Equal(t, 1.0, c0)
}

func TestTransformer_RoundTrip(t *testing.T) {
	table := aggregateTable([][]float64{
		{1012.3, 14.2, 28000, 3.1, 71, 40, 9.5, 0},
		{1008.9, 17.8, 3600, 4.4, 55, 90, 15.2, 90.5},
		{1019.1, 11.0, 0, 1.2, 88, 100, 3.3, 359.75},
		{1001.4, 21.6, 41000, 5.9, 42, 5, 22.0, 181},
	})

	transformer, err := NewTransformer(DefaultRecipe())
	require.NoError(t, err)

	transformed, params, err := transformer.Fit(table)
	require.NoError(t, err)

	restored, err := transformer.Inverse(transformed, params)
	require.NoError(t, err)
	require.True(t, models.AggregateSchema.Equal(restored.Columns))

	for r := range table.Values {
		for c := range table.Values[r] {
			assert.InDelta(t, table.Values[r][c], restored.Values[r][c], tolerance, "row %d column %s", r, table.Columns[c])
		}
	}
}

func TestTransformer_StandardizesAfterLog(t *testing.T) {
	table := aggregateTable([][]float64{
		{1000, 10, 0, 1, 50, 10, 0, 0},
		{1010, 20, math.E - 1, 2, 60, 20, 1, 0},
		{1020, 30, math.E*math.E - 1, 3, 70, 30, 3, 0},
	})

	transformer, err := NewTransformer(DefaultRecipe())
	require.NoError(t, err)

	_, params, err := transformer.Fit(table)
	require.NoError(t, err)

	sunshine, ok := params.Lookup(models.ColDailySunshine)
	require.True(t, ok)
	assert.InDelta(t, 1.0, sunshine.Mean, tolerance, "mean of log1p values 0, 1, 2")
	assert.InDelta(t, math.Sqrt(2.0/3.0), sunshine.StdDev, tolerance, "population std")
}

func TestTransformer_ReusesParams(t *testing.T) {
	training := aggregateTable([][]float64{
		{1000, 10, 100, 1, 50, 10, 2, 0},
		{1020, 30, 300, 3, 70, 30, 4, 90},
	})

	transformer, err := NewTransformer(DefaultRecipe())
	require.NoError(t, err)

	fitted, params, err := transformer.Fit(training)
	require.NoError(t, err)

	row := map[string]float64{}
	for i, col := range models.AggregateSchema {
		row[col] = training.Values[1][i]
	}
	single, err := transformer.TransformRow(row, params)
	require.NoError(t, err)

	for i := range single {
		assert.InDelta(t, fitted.Values[1][i], single[i], tolerance, models.PredictorSchema[i])
	}
}

func TestTransformer_Faults(t *testing.T) {
	transformer, err := NewTransformer(DefaultRecipe())
	require.NoError(t, err)

	tests := []struct {
		name    string
		table   *models.FeatureTable
		isFault func(error) bool
	}{
		{
			name: "constant column",
			table: aggregateTable([][]float64{
				{1000, 10, 1, 1, 50, 10, 2, 0},
				{1000, 20, 2, 2, 60, 20, 3, 0},
			}),
			isFault: models.IsConfiguration,
		},
		{
			name:    "single row has zero variance",
			table:   aggregateTable([][]float64{{1000, 10, 1, 1, 50, 10, 2, 0}}),
			isFault: models.IsConfiguration,
		},
		{
			name: "missing value",
			table: aggregateTable([][]float64{
				{1000, math.NaN(), 1, 1, 50, 10, 2, 0},
				{1010, 20, 2, 2, 60, 20, 3, 0},
			}),
			isFault: models.IsDataIntegrity,
		},
		{
			name: "log1p domain",
			table: aggregateTable([][]float64{
				{1000, 10, -2, 1, 50, 10, 2, 0},
				{1010, 20, 2, 2, 60, 20, 3, 0},
			}),
			isFault: models.IsDataIntegrity,
		},
		{
			name: "missing column",
			table: &models.FeatureTable{
				Columns: models.Schema{models.ColTemperatureAvg},
				Dates:   []civil.Date{{Year: 2024, Month: 1, Day: 1}},
				Values:  [][]float64{{1}},
			},
			isFault: models.IsConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := transformer.Fit(tt.table)
			require.Error(t, err)
			assert.True(t, tt.isFault(err), "unexpected fault type %T: %v", err, err)
		})
	}
}

func TestTransformer_RejectsForeignParams(t *testing.T) {
	transformer, err := NewTransformer(DefaultRecipe())
	require.NoError(t, err)

	_, err = transformer.Transform(aggregateTable([][]float64{{1, 1, 1, 1, 1, 1, 1, 1}}), &ScalerParams{RecipeVersion: "other/v0"})
	assert.True(t, models.IsConfiguration(err))

	_, err = transformer.Transform(aggregateTable([][]float64{{1, 1, 1, 1, 1, 1, 1, 1}}), nil)
	assert.True(t, models.IsConfiguration(err))
}

func TestRecipe_Validate(t *testing.T) {
	require.NoError(t, DefaultRecipe().Validate())

	bad := DefaultRecipe()
	bad.Steps = append(bad.Steps, Step{Op: OpLog1p, Columns: []string{models.ColWindDirectionAvg}})
	assert.Error(t, bad.Validate(), "angle column no longer exists after the circular step")

	unknown := DefaultRecipe()
	unknown.Steps[0].Op = "sqrt"
	assert.Error(t, unknown.Validate())

	assert.Equal(t, 7, len(DefaultRecipe().StandardizedColumns()))
}

func fullRow(date civil.Date, hours int) models.DailyFlatRow {
	row := models.DailyFlatRow{Date: date, Hours: map[string][]float64{}}
	for _, v := range models.HourlyVariables {
		values := make([]float64, hours)
		for i := range values {
			values[i] = 2
		}
		row.Hours[v] = values
	}
	return row
}

func aggregateTable(rows [][]float64) *models.FeatureTable {
	table := &models.FeatureTable{Columns: models.AggregateSchema.Clone()}
	start := civil.Date{Year: 2024, Month: 3, Day: 1}
	for i, r := range rows {
		table.Dates = append(table.Dates, start.AddDays(i))
		table.Values = append(table.Values, r)
		table.Labels = append(table.Labels, i%2)
	}
	return table
}
