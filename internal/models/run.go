package models

import "time"

// Pipeline run states
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// PipelineRun is one bookkeeping row of the pipeline_runs table
type PipelineRun struct {
	ID           string     `json:"id" db:"id"`
	Status       string     `json:"status" db:"status"`
	Source       string     `json:"source" db:"source"`
	StartedAt    time.Time  `json:"started_at" db:"-"`
	FinishedAt   *time.Time `json:"finished_at,omitempty" db:"-"`
	HourlyRows   int        `json:"hourly_rows" db:"hourly_rows"`
	DailyRows    int        `json:"daily_rows" db:"daily_rows"`
	TrainRows    int        `json:"train_rows" db:"train_rows"`
	TestRows     int        `json:"test_rows" db:"test_rows"`
	FailedStage  string     `json:"failed_stage,omitempty" db:"-"`
	ErrorMessage string     `json:"error_message,omitempty" db:"-"`
}
