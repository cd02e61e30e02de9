package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// DataIntegrityError means the input broke a structural assumption
// (duplicate timestamp, more than 24 samples in a day, missing variable family).
type DataIntegrityError struct {
	Date    string
	Column  string
	Message string
}

func (e *DataIntegrityError) Error() string {
	var b strings.Builder
	b.WriteString("data integrity fault")
	if e.Date != "" {
		b.WriteString(" on ")
		b.WriteString(e.Date)
	}
	if e.Column != "" {
		b.WriteString(" in column ")
		b.WriteString(e.Column)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// IsTransient returns false; bad input does not improve on retry
func (e *DataIntegrityError) IsTransient() bool {
	return false
}

// ConfigurationError means a parameter is outside its domain
type ConfigurationError struct {
	Parameter string
	Value     string
	Message   string
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("configuration fault: %s: %s", e.Parameter, e.Message)
	}
	return fmt.Sprintf("configuration fault: %s=%s: %s", e.Parameter, e.Value, e.Message)
}

// IsTransient returns false as configuration errors are permanent
func (e *ConfigurationError) IsTransient() bool {
	return false
}

// SchemaMismatchError is raised by a validation gate. Detail aggregates one
// error per offending column.
type SchemaMismatchError struct {
	Gate          string
	Missing       []string
	Extra         []string
	OrderMismatch bool
	Detail        *multierror.Error
}

// NewSchemaMismatchError builds the error with a per-column detail list
func NewSchemaMismatchError(gate string, missing, extra []string, orderMismatch bool) *SchemaMismatchError {
	var detail *multierror.Error
	for _, c := range missing {
		detail = multierror.Append(detail, fmt.Errorf("missing column %q", c))
	}
	for _, c := range extra {
		detail = multierror.Append(detail, fmt.Errorf("unexpected column %q", c))
	}
	if orderMismatch {
		detail = multierror.Append(detail, errors.New("column order differs from the expected order"))
	}
	return &SchemaMismatchError{
		Gate:          gate,
		Missing:       missing,
		Extra:         extra,
		OrderMismatch: orderMismatch,
		Detail:        detail,
	}
}

func (e *SchemaMismatchError) Error() string {
	if e.Detail == nil || len(e.Detail.Errors) == 0 {
		return fmt.Sprintf("schema mismatch at %s gate", e.Gate)
	}
	parts := make([]string, len(e.Detail.Errors))
	for i, err := range e.Detail.Errors {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("schema mismatch at %s gate: %s", e.Gate, strings.Join(parts, "; "))
}

// IsTransient returns false as schema mismatches are permanent
func (e *SchemaMismatchError) IsTransient() bool {
	return false
}

// ValidationError represents an invalid request parameter
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}

// IsDataIntegrity reports whether err wraps a DataIntegrityError
func IsDataIntegrity(err error) bool {
	var target *DataIntegrityError
	return errors.As(err, &target)
}

// IsConfiguration reports whether err wraps a ConfigurationError
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsSchemaMismatch reports whether err wraps a SchemaMismatchError
func IsSchemaMismatch(err error) bool {
	var target *SchemaMismatchError
	return errors.As(err, &target)
}

// FaultKind classifies err for logs and metrics labels
func FaultKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsDataIntegrity(err):
		return "data_integrity"
	case IsConfiguration(err):
		return "configuration"
	case IsSchemaMismatch(err):
		return "schema_mismatch"
	default:
		return "runtime"
	}
}
