// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package ml

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match them with errors.Is through the typed
// errors below.
var (
	ErrNotFound     = errors.New("model not found")
	ErrNotTrained   = errors.New("model is not trained")
	ErrInvalidInput = errors.New("invalid input")
)

// TrainingError wraps a failure during Train. The model keeps its prior
// fitted state when one is returned.
type TrainingError struct {
	Model string
	Err   error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("training model %q: %v", e.Model, e.Err)
}

func (e *TrainingError) Unwrap() error { return e.Err }

// PredictionError wraps a failure during Predict.
type PredictionError struct {
	Model string
	Err   error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction with model %q: %v", e.Model, e.Err)
}

func (e *PredictionError) Unwrap() error { return e.Err }

// ValidationError wraps a failure during Validate.
type ValidationError struct {
	Model string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validating model %q: %v", e.Model, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// invalid formats an ErrInvalidInput with detail.
func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
