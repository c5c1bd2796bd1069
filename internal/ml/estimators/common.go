// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package estimators

import (
	"context"
	"errors"
	"fmt"
	"runtime"
)

var (
	// ErrEmptyInput is returned when there are no rows or no columns.
	ErrEmptyInput = errors.New("empty input")

	// ErrNotFitted is returned when scoring before Fit.
	ErrNotFitted = errors.New("estimator is not fitted")
)

// DimensionError reports a row whose width differs from the fitted width.
type DimensionError struct {
	Row  int
	Got  int
	Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("row %d has %d features, want %d", e.Row, e.Got, e.Want)
}

// ContextCancelled reports whether ctx is done without blocking.
func ContextCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// checkMatrix verifies x is non-empty and rectangular and returns its width.
func checkMatrix(x [][]float64) (int, error) {
	if len(x) == 0 || len(x[0]) == 0 {
		return 0, ErrEmptyInput
	}
	width := len(x[0])
	for i, row := range x {
		if len(row) != width {
			return 0, &DimensionError{Row: i, Got: len(row), Want: width}
		}
	}
	return width, nil
}

// checkWidth verifies every row has the fitted width.
func checkWidth(x [][]float64, want int) error {
	for i, row := range x {
		if len(row) != want {
			return &DimensionError{Row: i, Got: len(row), Want: want}
		}
	}
	return nil
}

// workers is the number of goroutines used to grow trees.
func workers(jobs int, limit int) int {
	n := limit
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if n > jobs {
		n = jobs
	}
	if n < 1 {
		n = 1
	}
	return n
}
