package extraction

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rain-platform/internal/etl"
	"rain-platform/internal/models"
	"rain-platform/pkg/logging"
	"rain-platform/pkg/metrics"
)

func fixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "archive_two_days.json"))
	require.NoError(t, err)
	return data
}

func newTestClient(baseURL string) *Client {
	return NewClient(baseURL, 0, logging.NewNopLogger(), metrics.NewCollector("test", prometheus.NewRegistry()))
}

func TestClient_FetchHourly(t *testing.T) {
	body := fixture(t)

	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/archive", r.URL.Path)
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	frame, err := client.FetchHourly(context.Background(), Request{
		Latitude:  40.4,
		Longitude: -3.7,
		Start:     civil.Date{Year: 2024, Month: 3, Day: 1},
		End:       civil.Date{Year: 2024, Month: 3, Day: 2},
	})
	require.NoError(t, err)

	assert.Equal(t, "2024-03-01", gotQuery["start_date"][0])
	assert.Equal(t, "2024-03-02", gotQuery["end_date"][0])
	assert.Equal(t, "auto", gotQuery["timezone"][0])
	assert.Equal(t, strings.Join(models.HourlyVariables, ","), gotQuery["hourly"][0])

	require.Len(t, frame.Records, 48)
	assert.Equal(t, models.HourlyVariables, frame.Variables)

	first := frame.Records[0].Time
	assert.Equal(t, 0, first.Hour(), "timestamps stay in local time")
	assert.Equal(t, "2024-03-01", civil.DateOf(first).String())

	tempIdx := frame.VariableIndex(models.VarTemperature)
	assert.True(t, models.IsMissing(frame.Records[30].Values[tempIdx]), "null decodes as missing")
	assert.Equal(t, 0.5, frame.Records[1].Values[tempIdx])
}

func TestClient_FetchHourly_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		integrity bool
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{}`},
		{name: "api error payload", status: http.StatusOK, body: `{"error":true,"reason":"Parameter 'start_date' is out of range"}`},
		{name: "garbage", status: http.StatusOK, body: `not json`},
		{
			name:      "length mismatch",
			status:    http.StatusOK,
			body:      `{"hourly":{"time":["2024-01-01T00:00","2024-01-01T01:00"],"temperature_2m":[1]}}`,
			integrity: true,
		},
		{
			name:      "missing variable",
			status:    http.StatusOK,
			body:      `{"hourly":{"time":["2024-01-01T00:00"]}}`,
			integrity: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).FetchHourly(context.Background(), Request{
				Start:     civil.Date{Year: 2024, Month: 1, Day: 1},
				End:       civil.Date{Year: 2024, Month: 1, Day: 1},
				Variables: []string{models.VarTemperature},
			})
			require.Error(t, err)
			assert.Equal(t, tt.integrity, models.IsDataIntegrity(err), "err = %v", err)
		})
	}
}

func TestClient_RejectsInvertedWindow(t *testing.T) {
	_, err := newTestClient("http://unused").FetchHourly(context.Background(), Request{
		Start: civil.Date{Year: 2024, Month: 2, Day: 1},
		End:   civil.Date{Year: 2024, Month: 1, Day: 1},
	})
	assert.True(t, models.IsConfiguration(err))
}

func TestWindow(t *testing.T) {
	start, end := Window(civil.Date{Year: 2024, Month: 3, Day: 10}, 7, 2)
	assert.Equal(t, civil.Date{Year: 2024, Month: 3, Day: 8}, end)
	assert.Equal(t, civil.Date{Year: 2024, Month: 3, Day: 1}, start)
}

func TestDecodeArchive_UnknownZoneKeepsOffset(t *testing.T) {
	body := `{"utc_offset_seconds":-18000,"timezone":"Not/AZone","hourly":{"time":["2024-01-01T23:00"],"precipitation":[null]}}`

	frame, err := DecodeArchive(strings.NewReader(body), []string{models.VarPrecipitation})
	require.NoError(t, err)

	_, offset := frame.Records[0].Time.Zone()
	assert.Equal(t, -18000, offset)
	assert.Equal(t, "2024-01-01", civil.DateOf(frame.Records[0].Time).String())
	assert.True(t, models.IsMissing(frame.Records[0].Values[0]))
}

func TestDecodeArchive_SpringForwardDay(t *testing.T) {
	var times, temps []string
	for h := 0; h < 24; h++ {
		times = append(times, fmt.Sprintf("%q", fmt.Sprintf("2024-03-31T%02d:00", h)))
		temps = append(temps, fmt.Sprintf("%d", h))
	}
	body := fmt.Sprintf(`{"utc_offset_seconds":3600,"timezone":"Europe/Madrid","hourly":{"time":[%s],"temperature_2m":[%s]}}`,
		strings.Join(times, ","), strings.Join(temps, ","))

	frame, err := DecodeArchive(strings.NewReader(body), []string{models.VarTemperature})
	require.NoError(t, err)
	require.Len(t, frame.Records, 24)

	for h, rec := range frame.Records {
		assert.Equal(t, h, rec.Time.Hour(), "wall clock kept for record %d", h)
		assert.Equal(t, "2024-03-31", civil.DateOf(rec.Time).String())
	}
	assert.Equal(t, "Europe/Madrid", frame.Timezone)

	table, err := etl.FlattenDaily(frame)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, 24, table.Rows[0].SampleCount())
	v, ok := table.Rows[0].Value(models.VarTemperature, 3)
	assert.True(t, ok)
	assert.Equal(t, 2.0, v)
}
