// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomtom215/fusionserve/internal/features"
	"github.com/tomtom215/fusionserve/internal/jobs"
	"github.com/tomtom215/fusionserve/internal/ml"
	"github.com/tomtom215/fusionserve/internal/models"
)

// Error codes returned in the envelope.
const (
	CodeInvalidJSON        = "INVALID_JSON"
	CodeRequestTooLarge    = "REQUEST_TOO_LARGE"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeBatchTooLarge      = "BATCH_TOO_LARGE"
	CodeModelNotFound      = "MODEL_NOT_FOUND"
	CodeModelNotTrained    = "MODEL_NOT_TRAINED"
	CodeExtractionError    = "EXTRACTION_ERROR"
	CodePredictionError    = "PREDICTION_ERROR"
	CodeTrainingError      = "TRAINING_ERROR"
	CodeValidationFailed   = "MODEL_VALIDATION_ERROR"
	CodeJobNotFound        = "JOB_NOT_FOUND"
	CodeQueueFull          = "TRAINING_QUEUE_FULL"
	CodeTimeout            = "TIMEOUT"
	CodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// errorStatus maps a domain error to a status and code. fallback is the
// code for errors no rule matches; they are reported as 500.
//
// Sentinels are checked before the struct errors that wrap them, so a
// PredictionError caused by ErrNotTrained is still a 409.
func errorStatus(err error, fallback string) (int, string) {
	var extractErr *features.ExtractionError
	switch {
	case errors.Is(err, ml.ErrNotFound):
		return http.StatusNotFound, CodeModelNotFound
	case errors.Is(err, ml.ErrNotTrained):
		return http.StatusConflict, CodeModelNotTrained
	case errors.Is(err, ml.ErrInvalidInput), errors.Is(err, models.ErrNoInput), errors.Is(err, models.ErrAmbiguousInput):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, jobs.ErrJobNotFound):
		return http.StatusNotFound, CodeJobNotFound
	case errors.Is(err, jobs.ErrQueueFull):
		return http.StatusServiceUnavailable, CodeQueueFull
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, CodeServiceUnavailable
	case errors.As(err, &extractErr):
		return http.StatusUnprocessableEntity, CodeExtractionError
	default:
		return http.StatusInternalServerError, fallback
	}
}

// respondDomainError writes err using errorStatus. Client errors expose
// the message; server errors are logged and replaced with a generic one.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status, code := errorStatus(err, fallback)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable && status != http.StatusGatewayTimeout {
		respondError(w, r, status, code, "internal error while processing the request", err)
		return
	}
	respondError(w, r, status, code, err.Error(), err)
}
