package features

import (
	"math"

	"rain-platform/internal/models"
)

// frame is a columnar working copy of a FeatureTable
type frame struct {
	order  models.Schema
	cols   map[string][]float64
	dates  []string
	source *models.FeatureTable
}

// newFrame copies the required columns of table; a missing one is a configuration fault
func newFrame(table *models.FeatureTable, required models.Schema) (*frame, error) {
	if table == nil {
		return nil, &models.ConfigurationError{Parameter: "table", Message: "nil feature table"}
	}

	f := &frame{
		order:  required.Clone(),
		cols:   make(map[string][]float64, len(required)),
		dates:  make([]string, table.Len()),
		source: table,
	}
	for r := range f.dates {
		if r < len(table.Dates) {
			f.dates[r] = table.Dates[r].String()
		}
	}

	for _, col := range required {
		idx := table.Columns.Index(col)
		if idx < 0 {
			return nil, &models.ConfigurationError{Parameter: "columns", Value: col, Message: "required column is missing"}
		}
		values := make([]float64, table.Len())
		for r, row := range table.Values {
			values[r] = row[idx]
		}
		f.cols[col] = values
	}
	return f, nil
}

func (f *frame) checkFinite(col string) error {
	for r, v := range f.cols[col] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &models.DataIntegrityError{Date: f.dates[r], Column: col, Message: "value is missing or not finite"}
		}
	}
	return nil
}

func (f *frame) mapColumn(col string, fn func(float64) float64) {
	values := f.cols[col]
	for r, v := range values {
		values[r] = fn(v)
	}
}

// replace drops the old columns and puts name at the position of old[0]
func (f *frame) replace(old []string, name string, values []float64) {
	order := make(models.Schema, 0, len(f.order))
	for _, c := range f.order {
		switch {
		case c == old[0]:
			order = append(order, name)
		case contains(old[1:], c):
		default:
			order = append(order, c)
		}
	}
	for _, c := range old {
		delete(f.cols, c)
	}
	f.order = order
	f.cols[name] = values
}

func (f *frame) insertAfter(anchor, name string, values []float64) {
	order := make(models.Schema, 0, len(f.order)+1)
	for _, c := range f.order {
		order = append(order, c)
		if c == anchor {
			order = append(order, name)
		}
	}
	f.order = order
	f.cols[name] = values
}

// project builds a new table with exactly the given columns in order
func (f *frame) project(schema models.Schema) (*models.FeatureTable, error) {
	for _, col := range schema {
		if _, ok := f.cols[col]; !ok {
			return nil, &models.ConfigurationError{Parameter: "columns", Value: col, Message: "not produced by the recipe"}
		}
	}

	n := len(f.dates)
	out := &models.FeatureTable{
		Columns: schema.Clone(),
		Dates:   append(f.source.Dates[:0:0], f.source.Dates...),
		Values:  make([][]float64, n),
	}
	if f.source.Labels != nil {
		out.Labels = append([]int(nil), f.source.Labels...)
	}
	for r := 0; r < n; r++ {
		row := make([]float64, len(schema))
		for i, col := range schema {
			row[i] = f.cols[col][r]
		}
		out.Values[r] = row
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
