package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gorilla/mux"

	"rain-platform/internal/models"
	"rain-platform/internal/repository"
	"rain-platform/internal/services"
	"rain-platform/pkg/logging"
	"rain-platform/pkg/metrics"
)

// WeatherHandler handles the daily weather and prediction endpoints
type WeatherHandler struct {
	weatherService    *services.WeatherService
	predictionService *services.PredictionService
	logger            *logging.StructuredLogger
	metrics           *metrics.Collector
}

// NewWeatherHandler creates a new weather handler. weatherService may be nil
// when no database is configured; the daily endpoint then answers 503.
func NewWeatherHandler(
	weatherService *services.WeatherService,
	predictionService *services.PredictionService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *WeatherHandler {
	return &WeatherHandler{
		weatherService:    weatherService,
		predictionService: predictionService,
		logger:            logger,
		metrics:           metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Code    int      `json:"code"`
	Missing []string `json:"missing,omitempty"`
	Extra   []string `json:"extra,omitempty"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// GetDailyWeather handles GET /api/weather/daily
func (h *WeatherHandler) GetDailyWeather(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/api/weather/daily").Observe(duration.Seconds())
	}()

	if h.weatherService == nil {
		h.sendError(w, r, "no database configured", http.StatusServiceUnavailable)
		return
	}

	// Parse query parameters
	startDateStr := r.URL.Query().Get("start_date")
	endDateStr := r.URL.Query().Get("end_date")
	pageStr := r.URL.Query().Get("page")
	limitStr := r.URL.Query().Get("limit")

	// Default pagination
	page := 1
	limit := 100

	if pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	filter := repository.DailyFilter{
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	if startDateStr != "" {
		startDate, err := civil.ParseDate(startDateStr)
		if err != nil {
			h.sendError(w, r, "invalid start_date format, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		filter.StartDate = &startDate
	}

	if endDateStr != "" {
		endDate, err := civil.ParseDate(endDateStr)
		if err != nil {
			h.sendError(w, r, "invalid end_date format, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		filter.EndDate = &endDate
	}

	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		h.sendError(w, r, "end_date must not be before start_date", http.StatusBadRequest)
		return
	}

	days, total, err := h.weatherService.GetDailyFeatures(ctx, filter)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_DAILY_ERROR] Failed to get daily weather", logging.Fields{
			"start_date": startDateStr,
			"end_date":   endDateStr,
			"page":       page,
		}, err)
		h.metrics.RecordAPIError(models.FaultKind(err), "/api/weather/daily")
		h.sendError(w, r, "failed to retrieve daily weather", http.StatusInternalServerError)
		return
	}

	response := PaginatedResponse{
		Data:       days,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}

	h.metrics.RecordAPIRequest("/api/weather/daily", "GET", "200")
	h.sendJSON(w, response, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *WeatherHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"model":     "loaded",
		"database":  "disabled",
	}
	code := http.StatusOK

	if _, err := h.predictionService.Info(); err != nil {
		status["model"] = "not_loaded"
	}

	if h.weatherService != nil {
		if err := h.weatherService.HealthCheck(ctx); err != nil {
			h.logger.Warn(ctx, "[HEALTH_CHECK_DB] Database unhealthy", logging.Fields{"error": err.Error()})
			status["status"] = "degraded"
			status["database"] = "unreachable"
			code = http.StatusServiceUnavailable
		} else {
			status["database"] = "ok"
		}
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, code)
}

// sendJSON sends a JSON response
func (h *WeatherHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *WeatherHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.sendErrorResponse(w, r, ErrorResponse{Message: message}, statusCode)
}

func (h *WeatherHandler) sendErrorResponse(w http.ResponseWriter, r *http.Request, response ErrorResponse, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	response.Error = http.StatusText(statusCode)
	response.Code = statusCode
	h.sendJSON(w, response, statusCode)
}

// sendFault maps a typed fault to a status code
func (h *WeatherHandler) sendFault(w http.ResponseWriter, r *http.Request, err error) {
	var mismatch *models.SchemaMismatchError
	var verr *models.ValidationError

	switch {
	case errors.Is(err, services.ErrModelNotLoaded):
		h.sendError(w, r, err.Error(), http.StatusServiceUnavailable)
	case errors.As(err, &mismatch):
		h.sendErrorResponse(w, r, ErrorResponse{
			Message: err.Error(),
			Missing: mismatch.Missing,
			Extra:   mismatch.Extra,
		}, http.StatusUnprocessableEntity)
	case models.IsDataIntegrity(err):
		h.sendError(w, r, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &verr):
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
	default:
		h.sendError(w, r, "internal error", http.StatusInternalServerError)
	}
}

// RegisterRoutes registers all API routes
func (h *WeatherHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/weather/daily", h.GetDailyWeather).Methods("GET")
	router.HandleFunc("/api/predict", h.Predict).Methods("POST")
	router.HandleFunc("/api/model", h.GetModel).Methods("GET")
	router.HandleFunc("/api/model/reload", h.ReloadModel).Methods("POST")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc(docsPath, SwaggerUI(apiTitle, openAPIPath)).Methods("GET")
	router.HandleFunc(openAPIPath, OpenAPISpec).Methods("GET")
}
