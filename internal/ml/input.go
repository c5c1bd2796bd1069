// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package ml

import "math"

// CheckRows verifies rows is non-empty, rectangular and finite. When width
// is positive every row must have exactly that many columns. It returns
// the row width.
func CheckRows(rows [][]float64, width int) (int, error) {
	if len(rows) == 0 {
		return 0, invalid("no rows")
	}
	if width <= 0 {
		width = len(rows[0])
		if width == 0 {
			return 0, invalid("row 0 is empty")
		}
	}
	for i, row := range rows {
		if len(row) != width {
			return 0, invalid("row %d has %d features, want %d", i, len(row), width)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, invalid("row %d column %d is not finite", i, j)
			}
		}
	}
	return width, nil
}

// CheckLabelled verifies rows as CheckRows does and that there is one label
// per row.
func CheckLabelled(rows [][]float64, labels []int, width int) (int, error) {
	if len(rows) != len(labels) {
		return 0, invalid("%d rows but %d labels", len(rows), len(labels))
	}
	return CheckRows(rows, width)
}
