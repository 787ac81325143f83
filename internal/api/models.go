package api

import (
	"encoding/json"
)

// API Request/Response Types

// SuccessResponse wraps every successful reply
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

// ErrorResponse wraps every failed reply
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// Envelope is the client-side view of either reply
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

func OK(data interface{}) SuccessResponse {
	return SuccessResponse{Success: true, Data: data}
}

func Fail(message string, details interface{}) ErrorResponse {
	return ErrorResponse{Success: false, Error: message, Details: details}
}

// HistoryQuery holds the query parameters of the history endpoint
type HistoryQuery struct {
	JobID string `form:"jobId"`
	Limit int    `form:"limit" binding:"min=0"`
}

// DispatchInfo describes the configured dispatch backends
type DispatchInfo struct {
	Backends map[string]string `json:"backends"`
	Queues   []string          `json:"queues"`
}

// SchedulersResponse lists the running scheduler instances
type SchedulersResponse struct {
	Default    string   `json:"default"`
	Schedulers []string `json:"schedulers"`
}

// HealthResponse represents the response for health check
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
	Store     string `json:"store"`
}
