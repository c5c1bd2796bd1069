// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

// Package models defines the JSON shapes of the HTTP API: the response
// envelope shared by every endpoint and the request and response bodies of
// the model-serving endpoints.
package models

import (
	"time"
)

// Response status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// APIResponse wraps every JSON response.
//
//	{
//	  "status": "success",
//	  "data": {"predictions": [1], ...},
//	  "metadata": {"timestamp": "2026-05-01T12:00:00Z", "query_time_ms": 12}
//	}
//
// On failure Status is "error", Data is null and Error is set.
type APIResponse struct {
	Status   string    `json:"status"`
	Data     any       `json:"data"`
	Metadata Metadata  `json:"metadata"`
	Error    *APIError `json:"error,omitempty"`
}

// Metadata carries response timing.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
}

// APIError is the error half of the envelope. Code is machine readable,
// for example MODEL_NOT_FOUND or VALIDATION_ERROR.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *APIError) Error() string { return e.Code + ": " + e.Message }

// NewSuccess builds a success envelope.
func NewSuccess(data any, started time.Time) APIResponse {
	now := time.Now().UTC()
	return APIResponse{
		Status:   StatusSuccess,
		Data:     data,
		Metadata: Metadata{Timestamp: now, QueryTimeMS: queryTime(started, now)},
	}
}

// NewError builds an error envelope.
func NewError(code, message string, details map[string]any) APIResponse {
	return APIResponse{
		Status:   StatusError,
		Metadata: Metadata{Timestamp: time.Now().UTC()},
		Error:    &APIError{Code: code, Message: message, Details: details},
	}
}

func queryTime(started, now time.Time) int64 {
	if started.IsZero() {
		return 0
	}
	return now.Sub(started).Milliseconds()
}
