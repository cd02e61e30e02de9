package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rain-platform/internal/artifacts"
	"rain-platform/internal/classifier"
	"rain-platform/internal/features"
	"rain-platform/internal/models"
	"rain-platform/internal/repository"
	"rain-platform/internal/services"
	"rain-platform/pkg/database"
	"rain-platform/pkg/logging"
	"rain-platform/pkg/metrics"
)

type testEnv struct {
	router     *mux.Router
	prediction *services.PredictionService
	repo       repository.WeatherRepository
}

func saveTestBundle(t *testing.T, store *artifacts.Store) {
	t.Helper()
	params := &features.ScalerParams{RecipeVersion: features.RecipeVersion}
	for _, col := range features.DefaultRecipe().StandardizedColumns() {
		params.Columns = append(params.Columns, features.ColumnStats{Column: col, Mean: 0, StdDev: 1})
	}
	weights := make([]float64, len(models.PredictorSchema))
	weights[len(weights)-1] = -4 // wind_dir_cos

	require.NoError(t, store.SaveBundle(context.Background(), &artifacts.Bundle{
		FeatureNames: models.PredictorSchema.Clone(),
		Scaler:       params,
		Model: &classifier.Model{
			Features:      models.PredictorSchema.Clone(),
			Weights:       weights,
			Bias:          1,
			Threshold:     0.5,
			RecipeVersion: features.RecipeVersion,
			RunID:         "run-42",
		},
		Metrics: &classifier.Evaluation{Rows: 4, Scores: map[string]float64{classifier.MetricAccuracy: 0.75}},
	}))
}

func newTestEnv(t *testing.T, withBundle, withDB bool) *testEnv {
	t.Helper()
	logger := logging.NewNopLogger()
	collector := metrics.NewCollector("test", prometheus.NewRegistry())

	store := artifacts.NewStore(t.TempDir(), logger)
	prediction, err := services.NewPredictionService(store, logger, collector)
	require.NoError(t, err)
	if withBundle {
		saveTestBundle(t, store)
		require.NoError(t, prediction.Reload(context.Background()))
	}

	env := &testEnv{prediction: prediction}
	var weather *services.WeatherService
	if withDB {
		db, err := database.Open(&database.Config{
			Driver: database.DriverSQLite,
			Path:   filepath.Join(t.TempDir(), "weather.db"),
		}, logger, collector)
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })

		env.repo, err = repository.NewWeatherRepository(db, "weather_data", models.HourlyVariables, logger)
		require.NoError(t, err)
		require.NoError(t, env.repo.EnsureWeatherTable(context.Background()))
		weather = services.NewWeatherService(env.repo, logger, collector)
	}

	env.router = mux.NewRouter()
	NewWeatherHandler(weather, prediction, logger, collector).RegisterRoutes(env.router)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func rawDay() map[string]float64 {
	return map[string]float64{
		models.ColSurfacePressureAvg:      1,
		models.ColTemperatureAvg:          2,
		models.ColDailySunshine:           0,
		models.ColDailyEvapotranspiration: 3,
		models.ColRelativeHumidityAvg:     4,
		models.ColCloudCoverAvg:           5,
		models.ColWindSpeedAvg:            0,
		models.ColWindDirectionAvg:        180,
	}
}

func TestPredict(t *testing.T) {
	env := newTestEnv(t, true, false)

	tests := []struct {
		name        string
		body        interface{}
		wantStatus  int
		checkValues func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name:       "transformed row in persisted order",
			body:       PredictRequest{Columns: models.PredictorSchema, Values: make([]float64, len(models.PredictorSchema))},
			wantStatus: http.StatusOK,
			checkValues: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var pred services.Prediction
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pred))
				assert.Equal(t, 1, pred.Rain)
				assert.Equal(t, services.ModeTransformed, pred.Mode)
			},
		},
		{
			name: "reordered columns",
			body: func() PredictRequest {
				cols := models.PredictorSchema.Clone()
				cols[0], cols[1] = cols[1], cols[0]
				return PredictRequest{Columns: cols, Values: make([]float64, len(cols))}
			}(),
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "missing column",
			body:       PredictRequest{Columns: models.PredictorSchema[:8], Values: make([]float64, 8)},
			wantStatus: http.StatusUnprocessableEntity,
			checkValues: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var resp ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, []string{models.ColWindDirCos}, resp.Missing)
			},
		},
		{
			name:       "raw aggregates use the persisted scaler",
			body:       PredictRequest{Raw: rawDay()},
			wantStatus: http.StatusOK,
			checkValues: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var pred services.Prediction
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pred))
				assert.Equal(t, services.ModeRaw, pred.Mode)
				assert.InDelta(t, 0.0, pred.Values[7], 1e-12, "sin(180)")
				assert.InDelta(t, -1.0, pred.Values[8], 1e-12, "cos(180)")
				assert.Equal(t, 1, pred.Rain)
			},
		},
		{
			name: "raw missing an aggregate",
			body: func() PredictRequest {
				raw := rawDay()
				delete(raw, models.ColWindDirectionAvg)
				return PredictRequest{Raw: raw}
			}(),
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "values length mismatch",
			body:       PredictRequest{Columns: models.PredictorSchema, Values: []float64{1}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "both forms",
			body:       PredictRequest{Columns: models.PredictorSchema, Values: make([]float64, 9), Raw: rawDay()},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			body:       map[string]interface{}{"rows": []int{1}},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/predict", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.checkValues != nil {
				tt.checkValues(t, rec)
			}
		})
	}
}

func TestPredict_NoModel(t *testing.T) {
	env := newTestEnv(t, false, false)

	rec := env.do(t, http.MethodPost, "/api/predict", PredictRequest{Raw: rawDay()})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/model", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/model/reload", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetModel(t *testing.T) {
	env := newTestEnv(t, true, false)

	rec := env.do(t, http.MethodGet, "/api/model", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var info services.ModelInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, models.PredictorSchema, info.Features)
	assert.Equal(t, features.RecipeVersion, info.RecipeVersion)
	assert.Equal(t, "run-42", info.RunID)
	assert.Equal(t, 0.75, info.Scores[classifier.MetricAccuracy])
}

func storedDay(date civil.Date, precipitation float64) models.DailyFlatRow {
	row := models.DailyFlatRow{Date: date, Hours: map[string][]float64{}}
	for _, v := range models.HourlyVariables {
		hours := make([]float64, models.HoursPerDay)
		for h := range hours {
			hours[h] = 10
			if v == models.VarPrecipitation {
				hours[h] = precipitation
			}
		}
		row.Hours[v] = hours
	}
	return row
}

func TestGetDailyWeather(t *testing.T) {
	env := newTestEnv(t, true, true)

	days := []models.DailyFlatRow{
		storedDay(civil.Date{Year: 2024, Month: 6, Day: 1}, 0),
		storedDay(civil.Date{Year: 2024, Month: 6, Day: 2}, 0.1),
		storedDay(civil.Date{Year: 2024, Month: 6, Day: 3}, 0),
	}
	_, err := env.repo.InsertDailyRows(context.Background(), &models.FlatTable{Variables: models.HourlyVariables, Rows: days}, 10)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/weather/daily?start_date=2024-06-02&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data       []models.DailyFeatures `json:"data"`
		Total      int                    `json:"total"`
		TotalPages int                    `json:"total_pages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 2, resp.TotalPages)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "2024-06-02", resp.Data[0].Date)
	assert.Equal(t, 1, resp.Data[0].Rain)
	assert.Equal(t, 240.0, resp.Data[0].Features[models.ColDailySunshine])
	assert.Equal(t, 10.0, resp.Data[0].Features[models.ColWindDirectionAvg])

	rec = env.do(t, http.MethodGet, "/api/weather/daily?start_date=2024-06-02&page=2&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "2024-06-03", resp.Data[0].Date)
	assert.Equal(t, 0, resp.Data[0].Rain)
}

func TestGetDailyWeather_BadInput(t *testing.T) {
	env := newTestEnv(t, true, true)

	for _, q := range []string{"start_date=06/01/2024", "end_date=tomorrow", "start_date=2024-06-03&end_date=2024-06-01"} {
		rec := env.do(t, http.MethodGet, "/api/weather/daily?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestGetDailyWeather_NoDatabase(t *testing.T) {
	env := newTestEnv(t, true, false)

	rec := env.do(t, http.MethodGet, "/api/weather/daily", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, false, true)

	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status["status"])
	assert.Equal(t, "not_loaded", status["model"])
	assert.Equal(t, "ok", status["database"])
}

func TestDocs(t *testing.T) {
	env := newTestEnv(t, false, false)

	rec := env.do(t, http.MethodGet, "/api/docs/openapi.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	paths := doc["paths"].(map[string]interface{})
	assert.Contains(t, paths, "/api/predict")
	assert.Contains(t, paths, "/api/weather/daily")

	rec = env.do(t, http.MethodGet, "/api/docs", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openapi.json")
	assert.Contains(t, rec.Body.String(), "<title>Rain Platform API Documentation</title>")
}

func TestSwaggerUI_RendersGivenDocument(t *testing.T) {
	rec := httptest.NewRecorder()
	SwaggerUI("Staging API", "/v2/openapi.json")(rec, httptest.NewRequest(http.MethodGet, "/docs", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<title>Staging API Documentation</title>")
	assert.Contains(t, rec.Body.String(), "v2")
	assert.NotContains(t, rec.Body.String(), "api/docs")
}
