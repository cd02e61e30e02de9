package handlers

import (
	"encoding/json"
	"net/http"

	"rain-platform/internal/models"
)

func jsonContent(schema interface{}) map[string]interface{} {
	return map[string]interface{}{
		"application/json": map[string]interface{}{"schema": schema},
	}
}

func queryParam(name, description string, schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    false,
		"schema":      schema,
	}
}

var errorSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"error":   map[string]string{"type": "string"},
		"message": map[string]string{"type": "string"},
		"code":    map[string]string{"type": "integer"},
		"missing": map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
		"extra":   map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
	},
}

// OpenAPISpec returns the OpenAPI 3.0 specification for the Rain Platform API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	featureNames := make([]string, len(models.PredictorSchema))
	copy(featureNames, models.PredictorSchema)

	rawProperties := map[string]interface{}{}
	for _, col := range models.AggregateSchema {
		rawProperties[col] = map[string]string{"type": "number"}
	}

	doc := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       apiTitle,
			"description": "Next-day rain classifier serving and stored daily weather",
			"version":     "1.0.0",
			"contact": map[string]string{
				"name": "Rain Platform Team",
			},
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/api/predict": map[string]interface{}{
				"post": map[string]interface{}{
					"summary": "Predict rain for one day",
					"description": "Send either an already-transformed row whose columns match the persisted feature order exactly, " +
						"or raw daily aggregates that are transformed with the persisted scaler",
					"requestBody": map[string]interface{}{
						"required": true,
						"content": jsonContent(map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"columns": map[string]interface{}{
									"type":    "array",
									"items":   map[string]string{"type": "string"},
									"example": featureNames,
								},
								"values": map[string]interface{}{"type": "array", "items": map[string]string{"type": "number"}},
								"raw":    map[string]interface{}{"type": "object", "properties": rawProperties},
							},
						}),
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Prediction",
							"content": jsonContent(map[string]interface{}{
								"type": "object",
								"properties": map[string]interface{}{
									"rain":        map[string]string{"type": "integer"},
									"probability": map[string]string{"type": "number"},
									"mode":        map[string]string{"type": "string"},
									"features":    map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
									"values":      map[string]interface{}{"type": "array", "items": map[string]string{"type": "number"}},
								},
							}),
						},
						"400": map[string]interface{}{"description": "Malformed request", "content": jsonContent(errorSchema)},
						"422": map[string]interface{}{"description": "Columns do not match the persisted feature order", "content": jsonContent(errorSchema)},
						"503": map[string]interface{}{"description": "No model bundle loaded", "content": jsonContent(errorSchema)},
					},
				},
			},
			"/api/model": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Describe the loaded model",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Feature order, recipe version and held-out scores",
							"content": jsonContent(map[string]interface{}{
								"type": "object",
								"properties": map[string]interface{}{
									"features":       map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
									"recipe_version": map[string]string{"type": "string"},
									"run_id":         map[string]string{"type": "string"},
									"threshold":      map[string]string{"type": "number"},
									"scores":         map[string]interface{}{"type": "object", "additionalProperties": map[string]string{"type": "number"}},
								},
							}),
						},
						"503": map[string]interface{}{"description": "No model bundle loaded", "content": jsonContent(errorSchema)},
					},
				},
			},
			"/api/model/reload": map[string]interface{}{
				"post": map[string]interface{}{
					"summary": "Reload the model bundle from the artifacts directory",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{"description": "Bundle reloaded"},
						"409": map[string]interface{}{"description": "Bundle missing or inconsistent", "content": jsonContent(errorSchema)},
					},
				},
			},
			"/api/weather/daily": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Get stored daily weather",
					"description": "Stored days as pre-transform daily aggregates with the rain label",
					"parameters": []map[string]interface{}{
						queryParam("start_date", "Filter by start date (YYYY-MM-DD)", map[string]interface{}{"type": "string", "format": "date"}),
						queryParam("end_date", "Filter by end date (YYYY-MM-DD)", map[string]interface{}{"type": "string", "format": "date"}),
						queryParam("page", "Page number (default: 1)", map[string]interface{}{"type": "integer", "default": 1}),
						queryParam("limit", "Records per page (default: 100)", map[string]interface{}{"type": "integer", "default": 100}),
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Successful response",
							"content": jsonContent(map[string]interface{}{
								"type": "object",
								"properties": map[string]interface{}{
									"data": map[string]interface{}{
										"type": "array",
										"items": map[string]interface{}{
											"type": "object",
											"properties": map[string]interface{}{
												"date":     map[string]string{"type": "string", "format": "date"},
												"features": map[string]interface{}{"type": "object", "properties": rawProperties},
												"rain":     map[string]string{"type": "integer"},
											},
										},
									},
									"total":       map[string]string{"type": "integer"},
									"page":        map[string]string{"type": "integer"},
									"limit":       map[string]string{"type": "integer"},
									"total_pages": map[string]string{"type": "integer"},
								},
							}),
						},
						"400": map[string]interface{}{"description": "Invalid date filter", "content": jsonContent(errorSchema)},
						"503": map[string]interface{}{"description": "No database configured", "content": jsonContent(errorSchema)},
					},
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Health check",
					"description": "Reports model and database state",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "API is healthy",
							"content": jsonContent(map[string]interface{}{
								"type": "object",
								"properties": map[string]interface{}{
									"status":   map[string]string{"type": "string"},
									"model":    map[string]string{"type": "string"},
									"database": map[string]string{"type": "string"},
								},
							}),
						},
						"503": map[string]interface{}{"description": "Database unreachable"},
					},
				},
			},
			"/metrics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Prometheus metrics",
					"description": "Prometheus metrics endpoint for monitoring",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Prometheus metrics in text format",
							"content": map[string]interface{}{
								"text/plain": map[string]interface{}{
									"schema": map[string]string{"type": "string"},
								},
							},
						},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}
