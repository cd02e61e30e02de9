package repository

import (
	"context"
	"database/sql/driver"
	"math"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rain-platform/internal/models"
	"rain-platform/migrations"
	"rain-platform/pkg/database"
	"rain-platform/pkg/logging"
	"rain-platform/pkg/metrics"
)

var testVariables = []string{"temperature_2m", "precipitation"}

func newMockRepo(t *testing.T) (WeatherRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	logger := logging.NewNopLogger()
	collector := metrics.NewCollector("test", prometheus.NewRegistry())
	db := database.New(sqlx.NewDb(sqlDB, "postgres"), database.DriverPostgres, nil, logger, collector)

	repo, err := NewWeatherRepository(db, "weather_data", testVariables, logger)
	require.NoError(t, err)
	return repo, mock
}

func newSQLiteRepo(t *testing.T) WeatherRepository {
	t.Helper()
	logger := logging.NewNopLogger()
	collector := metrics.NewCollector("test", prometheus.NewRegistry())

	db, err := database.Open(&database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "weather.db"),
	}, logger, collector)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.NewMigrator(db, migrations.FS, ".", logger).Up(context.Background()))

	repo, err := NewWeatherRepository(db, "weather_data", testVariables, logger)
	require.NoError(t, err)
	require.NoError(t, repo.EnsureWeatherTable(context.Background()))
	return repo
}

func flatRow(date civil.Date, hours int, base float64) models.DailyFlatRow {
	row := models.DailyFlatRow{Date: date, Hours: map[string][]float64{}}
	for i, v := range testVariables {
		values := make([]float64, hours)
		for h := range values {
			values[h] = base + float64(i*100+h)
		}
		row.Hours[v] = values
	}
	return row
}

func TestNewWeatherRepository_RejectsBadIdentifiers(t *testing.T) {
	_, err := NewWeatherRepository(nil, "weather; DROP TABLE x", testVariables, logging.NewNopLogger())
	assert.True(t, models.IsConfiguration(err))

	_, err = NewWeatherRepository(nil, "weather_data", []string{"bad-name"}, logging.NewNopLogger())
	assert.True(t, models.IsConfiguration(err))
}

func TestEnsureWeatherTable_Postgres(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS weather_data \(\s+date DATE PRIMARY KEY,\s+temperature_2m_1 FLOAT`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureWeatherTable(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDailyRows_Postgres(t *testing.T) {
	repo, mock := newMockRepo(t)

	table := &models.FlatTable{
		Variables: testVariables,
		Rows: []models.DailyFlatRow{
			flatRow(civil.Date{Year: 2024, Month: 1, Day: 1}, 24, 0),
			flatRow(civil.Date{Year: 2024, Month: 1, Day: 2}, 24, 0),
		},
	}

	insert := regexp.QuoteMeta("INSERT INTO weather_data (date, temperature_2m_1") + `.*` +
		regexp.QuoteMeta("VALUES ($1, $2") + `.*` + regexp.QuoteMeta("$49) ON CONFLICT (date) DO NOTHING")

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(insert)
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	inserted, err := repo.InsertDailyRows(context.Background(), table, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted, "conflicting date is skipped")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDailyRows_RollsBackOnError(t *testing.T) {
	repo, mock := newMockRepo(t)

	table := &models.FlatTable{
		Variables: testVariables,
		Rows:      []models.DailyFlatRow{flatRow(civil.Date{Year: 2024, Month: 1, Day: 1}, 24, 0)},
	}

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO weather_data").ExpectExec().WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := repo.InsertDailyRows(context.Background(), table, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDailyRows_Postgres(t *testing.T) {
	repo, mock := newMockRepo(t)

	start := civil.Date{Year: 2024, Month: 1, Day: 1}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM weather_data WHERE 1=1 AND date >= $1")).
		WithArgs("2024-01-01").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	cols := []string{"date"}
	values := []driver.Value{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	for _, v := range testVariables {
		for h := 1; h <= models.HoursPerDay; h++ {
			cols = append(cols, models.FlatColumnName(v, h))
			if h > 20 {
				values = append(values, nil)
			} else {
				values = append(values, float64(h))
			}
		}
	}
	mock.ExpectQuery(regexp.QuoteMeta("FROM weather_data WHERE 1=1 AND date >= $1 ORDER BY date LIMIT $2 OFFSET $3")).
		WithArgs("2024-01-01", 10, 0).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(values...))

	table, total, err := repo.ListDailyRows(context.Background(), DailyFilter{StartDate: &start, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, start, table.Rows[0].Date)

	v, ok := table.Rows[0].Value("temperature_2m", 20)
	assert.True(t, ok)
	assert.Equal(t, 20.0, v)
	_, ok = table.Rows[0].Value("precipitation", 21)
	assert.False(t, ok, "NULL reads back as missing")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWeatherRepository_SQLiteRoundTrip(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	day1 := civil.Date{Year: 2024, Month: 2, Day: 28}
	day2 := civil.Date{Year: 2024, Month: 2, Day: 29}
	partial := flatRow(day2, 20, 5)
	partial.Hours["temperature_2m"][3] = math.NaN()

	table := &models.FlatTable{Variables: testVariables, Rows: []models.DailyFlatRow{flatRow(day1, 24, 1), partial}}

	inserted, err := repo.InsertDailyRows(ctx, table, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	again, err := repo.InsertDailyRows(ctx, table, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, again, "reloading the same dates inserts nothing")

	count, err := repo.CountDailyRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, total, err := repo.ListDailyRows(ctx, DailyFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, day1, got.Rows[0].Date)
	assert.Equal(t, day2, got.Rows[1].Date)

	v, ok := got.Rows[0].Value("precipitation", 24)
	assert.True(t, ok)
	assert.Equal(t, 1+100+23.0, v)

	_, ok = got.Rows[1].Value("temperature_2m", 4)
	assert.False(t, ok, "NaN stored as NULL")
	_, ok = got.Rows[1].Value("temperature_2m", 21)
	assert.False(t, ok, "trailing hours stay missing")

	filtered, total, err := repo.ListDailyRows(ctx, DailyFilter{StartDate: &day2})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, day2, filtered.Rows[0].Date)
}

func TestPipelineRuns_SQLite(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	run := &models.PipelineRun{
		ID:        "2f1c7d0e-0000-4000-8000-000000000001",
		Status:    models.RunStatusRunning,
		Source:    "archive",
		StartedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.CreateRun(ctx, run))

	run.Status = models.RunStatusFailed
	run.HourlyRows = 48
	run.DailyRows = 2
	run.FailedStage = "transform"
	run.ErrorMessage = "zero variance"
	require.NoError(t, repo.FinishRun(ctx, run))

	got, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.Equal(t, 48, got.HourlyRows)
	assert.Equal(t, "transform", got.FailedStage)
	assert.True(t, got.StartedAt.Equal(run.StartedAt))
	assert.NotNil(t, got.FinishedAt)

	_, err = repo.GetRun(ctx, "missing")
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)

	err = repo.FinishRun(ctx, &models.PipelineRun{ID: "missing", Status: models.RunStatusSucceeded})
	assert.ErrorAs(t, err, &notFound)
}
