package extraction

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"rain-platform/internal/models"
)

// archiveResponse is the subset of the Open-Meteo archive payload we read
type archiveResponse struct {
	Latitude         float64                    `json:"latitude"`
	Longitude        float64                    `json:"longitude"`
	UTCOffsetSeconds int                        `json:"utc_offset_seconds"`
	Timezone         string                     `json:"timezone"`
	Hourly           map[string]json.RawMessage `json:"hourly"`
	Error            bool                       `json:"error"`
	Reason           string                     `json:"reason"`
}

const archiveTimeLayout = "2006-01-02T15:04"

// DecodeArchive parses an archive response into an hourly frame with the given
// variables. JSON nulls become missing readings. Timestamps keep their
// wall-clock value at the response's utc_offset_seconds, so calendar dates
// stay location-local.
func DecodeArchive(r io.Reader, variables []string) (*models.HourlyFrame, error) {
	var resp archiveResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding archive response: %w", err)
	}
	if resp.Error {
		return nil, fmt.Errorf("archive API error: %s", resp.Reason)
	}

	rawTimes, ok := resp.Hourly["time"]
	if !ok {
		return nil, &models.DataIntegrityError{Column: "time", Message: "hourly block has no time array"}
	}
	var times []string
	if err := json.Unmarshal(rawTimes, &times); err != nil {
		return nil, fmt.Errorf("decoding hourly time: %w", err)
	}

	loc := responseLocation(resp.Timezone, resp.UTCOffsetSeconds)

	columns := make([][]*float64, len(variables))
	for i, v := range variables {
		raw, ok := resp.Hourly[v]
		if !ok {
			return nil, &models.DataIntegrityError{Column: v, Message: "variable missing from hourly block"}
		}
		if err := json.Unmarshal(raw, &columns[i]); err != nil {
			return nil, fmt.Errorf("decoding hourly %s: %w", v, err)
		}
		if len(columns[i]) != len(times) {
			return nil, &models.DataIntegrityError{
				Column:  v,
				Message: fmt.Sprintf("%d values for %d timestamps", len(columns[i]), len(times)),
			}
		}
	}

	frame := &models.HourlyFrame{
		Latitude:  resp.Latitude,
		Longitude: resp.Longitude,
		Timezone:  loc.String(),
		Variables: append([]string(nil), variables...),
		Records:   make([]models.HourlyRecord, len(times)),
	}

	for r, ts := range times {
		t, err := time.ParseInLocation(archiveTimeLayout, ts, loc)
		if err != nil {
			return nil, &models.DataIntegrityError{Column: "time", Message: fmt.Sprintf("bad timestamp %q", ts)}
		}
		values := make([]float64, len(variables))
		for i := range variables {
			if p := columns[i][r]; p != nil {
				values[i] = *p
			} else {
				values[i] = models.Missing()
			}
		}
		frame.Records[r] = models.HourlyRecord{Time: t, Values: values}
	}

	return frame, nil
}

// responseLocation is a fixed zone at the response offset. The archive's
// wall-clock grid has 24 entries on every day, DST transitions included.
func responseLocation(name string, offsetSeconds int) *time.Location {
	if name == "" {
		if offsetSeconds == 0 {
			return time.UTC
		}
		name = fmt.Sprintf("UTC%+d", offsetSeconds/3600)
	}
	return time.FixedZone(name, offsetSeconds)
}
