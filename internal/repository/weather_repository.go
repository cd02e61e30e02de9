package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"rain-platform/internal/models"
	"rain-platform/pkg/database"
	"rain-platform/pkg/logging"
)

// WeatherRepository provides data access for flattened daily weather rows and run bookkeeping
type WeatherRepository interface {
	// Daily row operations
	EnsureWeatherTable(ctx context.Context) error
	InsertDailyRows(ctx context.Context, table *models.FlatTable, batchSize int) (int, error)
	ListDailyRows(ctx context.Context, filter DailyFilter) (*models.FlatTable, int, error)
	CountDailyRows(ctx context.Context) (int, error)

	// Run operations
	CreateRun(ctx context.Context, run *models.PipelineRun) error
	FinishRun(ctx context.Context, run *models.PipelineRun) error
	GetRun(ctx context.Context, id string) (*models.PipelineRun, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// DailyFilter narrows ListDailyRows. A zero Limit returns every matching row.
type DailyFilter struct {
	StartDate *civil.Date
	EndDate   *civil.Date
	Limit     int
	Offset    int
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// weatherRepository implements WeatherRepository
type weatherRepository struct {
	db        *database.DB
	table     string
	variables []string
	logger    *logging.StructuredLogger
}

// NewWeatherRepository creates a repository storing rows in table with one
// column per variable and hour
func NewWeatherRepository(db *database.DB, table string, variables []string, logger *logging.StructuredLogger) (WeatherRepository, error) {
	if !identifierPattern.MatchString(table) {
		return nil, &models.ConfigurationError{Parameter: "database.table", Value: table, Message: "not a valid identifier"}
	}
	for _, v := range variables {
		if !identifierPattern.MatchString(v) {
			return nil, &models.ConfigurationError{Parameter: "variables", Value: v, Message: "not a valid identifier"}
		}
	}
	return &weatherRepository{
		db:        db,
		table:     table,
		variables: append([]string(nil), variables...),
		logger:    logger,
	}, nil
}

func (r *weatherRepository) hourColumns() []string {
	cols := make([]string, 0, len(r.variables)*models.HoursPerDay)
	for _, v := range r.variables {
		for h := 1; h <= models.HoursPerDay; h++ {
			cols = append(cols, models.FlatColumnName(v, h))
		}
	}
	return cols
}

// EnsureWeatherTable creates the daily table when it does not exist
func (r *weatherRepository) EnsureWeatherTable(ctx context.Context) error {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n\tdate DATE PRIMARY KEY", r.table)
	for _, c := range r.hourColumns() {
		fmt.Fprintf(&b, ",\n\t%s FLOAT", c)
	}
	b.WriteString("\n)")

	if _, err := r.db.ExecContext(ctx, "create_weather_table", b.String()); err != nil {
		return fmt.Errorf("failed to create weather table: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_ENSURE_TABLE] Weather table ready", logging.Fields{
		"table":   r.table,
		"columns": len(r.variables)*models.HoursPerDay + 1,
	})
	return nil
}

// InsertDailyRows writes rows in transactions of batchSize. Dates already
// stored are left untouched. Absent sub-columns are stored as NULL.
func (r *weatherRepository) InsertDailyRows(ctx context.Context, table *models.FlatTable, batchSize int) (int, error) {
	if table == nil || len(table.Rows) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = len(table.Rows)
	}

	cols := r.hourColumns()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)+1), ", ")
	query := r.db.Rebind(fmt.Sprintf(
		"INSERT INTO %s (date, %s) VALUES (%s) ON CONFLICT (date) DO NOTHING",
		r.table, strings.Join(cols, ", "), placeholders,
	))

	timer := time.Now()
	inserted := 0
	for start := 0; start < len(table.Rows); start += batchSize {
		end := start + batchSize
		if end > len(table.Rows) {
			end = len(table.Rows)
		}
		n, err := r.insertBatch(ctx, query, table.Rows[start:end])
		if err != nil {
			return inserted, err
		}
		inserted += n
	}

	r.logger.Info(ctx, "[REPO_BATCH_INSERT] Daily rows stored", logging.Fields{
		"rows":        len(table.Rows),
		"inserted":    inserted,
		"skipped":     len(table.Rows) - inserted,
		"duration_ms": time.Since(timer).Milliseconds(),
	})
	return inserted, nil
}

func (r *weatherRepository) insertBatch(ctx context.Context, query string, rows []models.DailyFlatRow) (int, error) {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	args := make([]interface{}, 0, len(r.variables)*models.HoursPerDay+1)
	for _, row := range rows {
		args = args[:0]
		args = append(args, row.Date.String())
		for _, v := range r.variables {
			for h := 1; h <= models.HoursPerDay; h++ {
				if val, ok := row.Value(v, h); ok {
					args = append(args, val)
				} else {
					args = append(args, nil)
				}
			}
		}

		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert row for %s: %w", row.Date, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

func (r *weatherRepository) whereClause(filter DailyFilter) (string, []interface{}) {
	clause := " WHERE 1=1"
	args := []interface{}{}
	if filter.StartDate != nil {
		clause += " AND date >= ?"
		args = append(args, filter.StartDate.String())
	}
	if filter.EndDate != nil {
		clause += " AND date <= ?"
		args = append(args, filter.EndDate.String())
	}
	return clause, args
}

// ListDailyRows returns stored rows ascending by date plus the total match count
func (r *weatherRepository) ListDailyRows(ctx context.Context, filter DailyFilter) (*models.FlatTable, int, error) {
	where, args := r.whereClause(filter)

	var total int
	countQuery := r.db.Rebind("SELECT COUNT(*) FROM " + r.table + where)
	if err := r.db.GetContext(ctx, "count_daily_rows", &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count daily rows: %w", err)
	}

	cols := r.hourColumns()
	query := fmt.Sprintf("SELECT date, %s FROM %s%s ORDER BY date", strings.Join(cols, ", "), r.table, where)
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, "list_daily_rows", r.db.Rebind(query), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list daily rows: %w", err)
	}
	defer rows.Close()

	table := &models.FlatTable{Variables: append([]string(nil), r.variables...)}
	var rawDate interface{}
	values := make([]sql.NullFloat64, len(cols))
	dest := make([]interface{}, len(cols)+1)
	dest[0] = &rawDate
	for i := range values {
		dest[i+1] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, 0, fmt.Errorf("failed to scan daily row: %w", err)
		}
		date, err := parseDate(rawDate)
		if err != nil {
			return nil, 0, err
		}

		row := models.DailyFlatRow{Date: date, Hours: make(map[string][]float64, len(r.variables))}
		for k, v := range r.variables {
			hours := make([]float64, models.HoursPerDay)
			for h := 0; h < models.HoursPerDay; h++ {
				cell := values[k*models.HoursPerDay+h]
				if cell.Valid {
					hours[h] = cell.Float64
				} else {
					hours[h] = models.Missing()
				}
			}
			row.Hours[v] = hours
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate daily rows: %w", err)
	}

	return table, total, nil
}

// CountDailyRows returns the number of stored days
func (r *weatherRepository) CountDailyRows(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, "count_daily_rows", &total, "SELECT COUNT(*) FROM "+r.table); err != nil {
		return 0, fmt.Errorf("failed to count daily rows: %w", err)
	}
	return total, nil
}

// parseDate accepts the shapes drivers return for a DATE column
func parseDate(raw interface{}) (civil.Date, error) {
	switch v := raw.(type) {
	case time.Time:
		return civil.DateOf(v), nil
	case string:
		return parseDateString(v)
	case []byte:
		return parseDateString(string(v))
	default:
		return civil.Date{}, fmt.Errorf("unexpected date value %T", raw)
	}
}

func parseDateString(s string) (civil.Date, error) {
	if len(s) >= 10 {
		s = s[:10]
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("failed to parse stored date %q: %w", s, err)
	}
	return d, nil
}

// CreateRun records a started pipeline run
func (r *weatherRepository) CreateRun(ctx context.Context, run *models.PipelineRun) error {
	query := r.db.Rebind(`
		INSERT INTO pipeline_runs (id, status, source, started_at)
		VALUES (?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, "insert_run", query,
		run.ID,
		run.Status,
		run.Source,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_CREATE_RUN] Run created", logging.Fields{
		"run_id": run.ID,
		"source": run.Source,
	})
	return nil
}

// FinishRun stores the final status and counters of a run
func (r *weatherRepository) FinishRun(ctx context.Context, run *models.PipelineRun) error {
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}

	query := r.db.Rebind(`
		UPDATE pipeline_runs
		SET status = ?, finished_at = ?, hourly_rows = ?, daily_rows = ?,
		    train_rows = ?, test_rows = ?, failed_stage = ?, error_message = ?
		WHERE id = ?
	`)

	res, err := r.db.ExecContext(ctx, "finish_run", query,
		run.Status,
		finished.Format(time.RFC3339Nano),
		run.HourlyRows,
		run.DailyRows,
		run.TrainRows,
		run.TestRows,
		nullString(run.FailedStage),
		nullString(run.ErrorMessage),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &NotFoundError{Resource: "pipeline_run", ID: run.ID}
	}
	return nil
}

type runRow struct {
	ID           string         `db:"id"`
	Status       string         `db:"status"`
	Source       string         `db:"source"`
	StartedAt    string         `db:"started_at"`
	FinishedAt   sql.NullString `db:"finished_at"`
	HourlyRows   int            `db:"hourly_rows"`
	DailyRows    int            `db:"daily_rows"`
	TrainRows    int            `db:"train_rows"`
	TestRows     int            `db:"test_rows"`
	FailedStage  sql.NullString `db:"failed_stage"`
	ErrorMessage sql.NullString `db:"error_message"`
}

// GetRun loads one run by id
func (r *weatherRepository) GetRun(ctx context.Context, id string) (*models.PipelineRun, error) {
	query := r.db.Rebind(`
		SELECT id, status, source, started_at, finished_at, hourly_rows, daily_rows,
		       train_rows, test_rows, failed_stage, error_message
		FROM pipeline_runs
		WHERE id = ?
	`)

	var row runRow
	err := r.db.GetContext(ctx, "get_run", &row, query, id)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "pipeline_run", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run := &models.PipelineRun{
		ID:           row.ID,
		Status:       row.Status,
		Source:       row.Source,
		HourlyRows:   row.HourlyRows,
		DailyRows:    row.DailyRows,
		TrainRows:    row.TrainRows,
		TestRows:     row.TestRows,
		FailedStage:  row.FailedStage.String,
		ErrorMessage: row.ErrorMessage.String,
	}
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, row.StartedAt); err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}
	if row.FinishedAt.Valid {
		finished, err := time.Parse(time.RFC3339Nano, row.FinishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse finished_at: %w", err)
		}
		run.FinishedAt = &finished
	}
	return run, nil
}

// HealthCheck performs a repository health check
func (r *weatherRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
