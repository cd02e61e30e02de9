package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"rain-platform/internal/models"
	"rain-platform/internal/services"
	"rain-platform/pkg/logging"
)

// PredictRequest carries either an already-transformed row (Columns + Values)
// or one day of raw aggregates keyed by column name
type PredictRequest struct {
	Columns []string           `json:"columns,omitempty"`
	Values  []float64          `json:"values,omitempty"`
	Raw     map[string]float64 `json:"raw,omitempty"`
}

// Predict handles POST /api/predict
func (h *WeatherHandler) Predict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/predict").Observe(time.Since(startTime).Seconds())
	}()

	var req PredictRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		h.sendError(w, r, "invalid JSON body", http.StatusBadRequest)
		return
	}

	hasRaw := len(req.Raw) > 0
	hasRow := len(req.Columns) > 0 || len(req.Values) > 0
	if hasRaw == hasRow {
		h.sendError(w, r, `provide either "raw" or "columns" with "values"`, http.StatusBadRequest)
		return
	}

	var (
		pred *services.Prediction
		err  error
	)
	if hasRaw {
		pred, err = h.predictionService.PredictRaw(ctx, req.Raw)
	} else {
		pred, err = h.predictionService.PredictTransformed(ctx, req.Columns, req.Values)
	}
	if err != nil {
		h.logger.Warn(ctx, "[API_PREDICT_REJECTED] Prediction request rejected", logging.Fields{
			"fault": models.FaultKind(err),
			"error": err.Error(),
		})
		h.metrics.RecordAPIError(models.FaultKind(err), "/api/predict")
		h.sendFault(w, r, err)
		return
	}

	h.metrics.RecordAPIRequest("/api/predict", "POST", strconv.Itoa(http.StatusOK))
	h.sendJSON(w, pred, http.StatusOK)
}

// GetModel handles GET /api/model
func (h *WeatherHandler) GetModel(w http.ResponseWriter, r *http.Request) {
	info, err := h.predictionService.Info()
	if err != nil {
		h.sendFault(w, r, err)
		return
	}

	h.metrics.RecordAPIRequest("/api/model", "GET", "200")
	h.sendJSON(w, info, http.StatusOK)
}

// ReloadModel handles POST /api/model/reload
func (h *WeatherHandler) ReloadModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.predictionService.Reload(ctx); err != nil {
		h.logger.Error(ctx, "[API_MODEL_RELOAD_ERROR] Failed to reload model bundle", logging.Fields{}, err)
		h.metrics.RecordAPIError(models.FaultKind(err), "/api/model/reload")
		h.sendErrorResponse(w, r, ErrorResponse{Message: err.Error()}, http.StatusConflict)
		return
	}

	info, _ := h.predictionService.Info()
	h.logger.Info(ctx, "[API_MODEL_RELOADED] Model bundle reloaded", logging.Fields{
		"run_id": info.RunID,
	})
	h.metrics.RecordAPIRequest("/api/model/reload", "POST", "200")
	h.sendJSON(w, info, http.StatusOK)
}
