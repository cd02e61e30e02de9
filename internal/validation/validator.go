package validation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"rain-platform/internal/models"
	"rain-platform/pkg/logging"
)

// Report is the outcome of one gate
type Report struct {
	Gate    string   `json:"gate"`
	Passed  bool     `json:"passed"`
	Missing []string `json:"missing,omitempty"`
	Extra   []string `json:"extra,omitempty"`
}

// Validator compares table columns against an expected schema and records the
// verdict in a status file
type Validator struct {
	statusFile string
	logger     *logging.StructuredLogger
}

// NewValidator creates a validator. An empty statusFile skips the status write.
func NewValidator(statusFile string, logger *logging.StructuredLogger) *Validator {
	return &Validator{statusFile: statusFile, logger: logger}
}

// Validate reports missing and extra columns. Either one fails the gate and
// yields a SchemaMismatchError.
func (v *Validator) Validate(ctx context.Context, gate string, expected Schema, actual []string) (*Report, error) {
	missing, extra := expected.Names().Diff(models.Schema(actual))
	report := &Report{
		Gate:    gate,
		Passed:  len(missing) == 0 && len(extra) == 0,
		Missing: missing,
		Extra:   extra,
	}

	if len(missing) > 0 {
		v.logger.Error(ctx, "[VALIDATION_MISSING] Missing columns", logging.Fields{
			"gate":    gate,
			"missing": missing,
		}, nil)
	}
	if len(extra) > 0 {
		v.logger.Warn(ctx, "[VALIDATION_EXTRA] Extra columns found", logging.Fields{
			"gate":  gate,
			"extra": extra,
		})
	}

	if err := v.writeStatus(report.Passed); err != nil {
		return report, err
	}

	v.logger.Info(ctx, "[VALIDATION_COMPLETE] Validation completed", logging.Fields{
		"gate":     gate,
		"status":   report.Passed,
		"expected": len(expected),
		"actual":   len(actual),
	})

	if !report.Passed {
		return report, models.NewSchemaMismatchError(gate, missing, extra, false)
	}
	return report, nil
}

// CheckOrder requires actual to match expected name for name and position for position
func (v *Validator) CheckOrder(ctx context.Context, gate string, expected, actual models.Schema) error {
	if expected.Equal(actual) {
		return nil
	}
	missing, extra := expected.Diff(actual)
	v.logger.Error(ctx, "[VALIDATION_ORDER] Column order mismatch", logging.Fields{
		"gate":     gate,
		"expected": []string(expected),
		"actual":   []string(actual),
	}, nil)
	return models.NewSchemaMismatchError(gate, missing, extra, len(missing) == 0 && len(extra) == 0)
}

func (v *Validator) writeStatus(passed bool) error {
	if v.statusFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(v.statusFile), 0o755); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}
	if err := os.WriteFile(v.statusFile, []byte(fmt.Sprintf("Validation status: %t", passed)), 0o644); err != nil {
		return fmt.Errorf("failed to write validation status: %w", err)
	}
	return nil
}
