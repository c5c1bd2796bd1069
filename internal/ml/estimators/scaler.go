// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package estimators

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers each column on its mean and divides by its
// population standard deviation. Constant columns keep a scale of 1 so
// they map to zero instead of NaN.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// Fit learns the column statistics of x.
func (s *StandardScaler) Fit(x [][]float64) error {
	width, err := checkMatrix(x)
	if err != nil {
		return err
	}

	mean := make([]float64, width)
	scale := make([]float64, width)
	col := make([]float64, len(x))
	for j := range width {
		for i, row := range x {
			col[i] = row[j]
		}
		m, variance := stat.PopMeanVariance(col, nil)
		mean[j] = m
		// rounding can leave a tiny negative variance
		scale[j] = math.Sqrt(max(variance, 0))
		if scale[j] == 0 || math.IsNaN(scale[j]) {
			scale[j] = 1
		}
	}

	s.Mean, s.Scale = mean, scale
	return nil
}

// Width returns the number of fitted columns.
func (s *StandardScaler) Width() int { return len(s.Mean) }

// Transform returns a scaled copy of x; x is not modified.
func (s *StandardScaler) Transform(x [][]float64) ([][]float64, error) {
	if s.Mean == nil {
		return nil, ErrNotFitted
	}
	if err := checkWidth(x, len(s.Mean)); err != nil {
		return nil, err
	}
	out := make([][]float64, len(x))
	for i, row := range x {
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = scaled
	}
	return out, nil
}
