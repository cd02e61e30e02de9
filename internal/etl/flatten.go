// Package etl reshapes hourly observations into one flat row per calendar date.
package etl

import (
	"fmt"
	"sort"

	"cloud.google.com/go/civil"

	"rain-platform/internal/models"
)

// FlattenDaily groups records by their location-local calendar date and lays out
// each variable's samples as numbered sub-columns in chronological order. Days
// with fewer than 24 samples keep only the sub-columns they have. The input
// frame is not modified.
func FlattenDaily(frame *models.HourlyFrame) (*models.FlatTable, error) {
	if frame == nil {
		return nil, fmt.Errorf("flatten: nil frame")
	}

	width := len(frame.Variables)
	records := make([]models.HourlyRecord, len(frame.Records))
	copy(records, frame.Records)

	for _, rec := range records {
		if len(rec.Values) != width {
			return nil, &models.DataIntegrityError{
				Date:    civil.DateOf(rec.Time).String(),
				Message: fmt.Sprintf("record at %s has %d values, expected %d", rec.Time.Format("2006-01-02T15:04"), len(rec.Values), width),
			}
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Time.Before(records[j].Time)
	})

	table := &models.FlatTable{
		Variables: append([]string(nil), frame.Variables...),
		Rows:      make([]models.DailyFlatRow, 0, len(records)/models.HoursPerDay+1),
	}

	var current *models.DailyFlatRow
	count := 0
	for i, rec := range records {
		if i > 0 && rec.Time.Equal(records[i-1].Time) {
			return nil, &models.DataIntegrityError{
				Date:    civil.DateOf(rec.Time).String(),
				Column:  "time",
				Message: fmt.Sprintf("duplicate timestamp %s", rec.Time.Format("2006-01-02T15:04")),
			}
		}

		date := civil.DateOf(rec.Time)
		if current == nil || current.Date != date {
			table.Rows = append(table.Rows, models.DailyFlatRow{
				Date:  date,
				Hours: make(map[string][]float64, width),
			})
			current = &table.Rows[len(table.Rows)-1]
			count = 0
		}

		count++
		if count > models.HoursPerDay {
			return nil, &models.DataIntegrityError{
				Date:    date.String(),
				Message: fmt.Sprintf("more than %d hourly samples for one day", models.HoursPerDay),
			}
		}

		for k, variable := range frame.Variables {
			current.Hours[variable] = append(current.Hours[variable], rec.Values[k])
		}
	}

	return table, nil
}
