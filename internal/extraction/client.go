// Package extraction fetches hourly observations from the Open-Meteo archive API.
package extraction

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"rain-platform/internal/models"
	"rain-platform/pkg/logging"
	"rain-platform/pkg/metrics"
)

const (
	// DefaultBaseURL is the public archive host
	DefaultBaseURL = "https://archive-api.open-meteo.com"
	archivePath    = "/v1/archive"
	userAgent      = "rain-platform/1.0"
)

// Request describes one extraction window for a single location
type Request struct {
	Latitude  float64
	Longitude float64
	Start     civil.Date
	End       civil.Date
	Variables []string
}

// Window returns the inclusive date range end-startOffset .. today-endOffset
func Window(today civil.Date, startOffsetDays, endOffsetDays int) (civil.Date, civil.Date) {
	end := today.AddDays(-endOffsetDays)
	return end.AddDays(-startOffsetDays), end
}

// Client talks to the archive API
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.StructuredLogger
	metrics    *metrics.Collector
}

// NewClient creates a client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    metricsCollector,
	}
}

// FetchHourly downloads the hourly variables for req
func (c *Client) FetchHourly(ctx context.Context, req Request) (*models.HourlyFrame, error) {
	if req.End.Before(req.Start) {
		return nil, &models.ConfigurationError{
			Parameter: "extraction window",
			Value:     fmt.Sprintf("%s..%s", req.Start, req.End),
			Message:   "end date precedes start date",
		}
	}
	variables := req.Variables
	if len(variables) == 0 {
		variables = models.HourlyVariables
	}

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(req.Latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(req.Longitude, 'f', -1, 64))
	params.Set("start_date", req.Start.String())
	params.Set("end_date", req.End.String())
	params.Set("hourly", strings.Join(variables, ","))
	params.Set("timezone", "auto")

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, archivePath, params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Info(ctx, "[EXTRACT_REQUEST] Requesting hourly archive", logging.Fields{
		"latitude":   req.Latitude,
		"longitude":  req.Longitude,
		"start_date": req.Start.String(),
		"end_date":   req.End.String(),
	})

	timer := c.metrics.NewTimer(c.metrics.ExtractionTime)
	resp, err := c.httpClient.Do(httpReq)
	duration := timer.ObserveDuration()
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("archive API returned status %d", resp.StatusCode)
	}

	frame, err := DecodeArchive(resp.Body, variables)
	if err != nil {
		return nil, err
	}

	c.logger.Info(ctx, "[EXTRACT_COMPLETE] Hourly archive received", logging.Fields{
		"records":     len(frame.Records),
		"timezone":    frame.Timezone,
		"duration_ms": duration.Milliseconds(),
	})
	return frame, nil
}
