// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package features

import "fmt"

// ExtractionError reports a structural failure of feature extraction, such
// as an invalid configuration. Per-image load or decode failures are never
// returned as ExtractionError; they are logged and skipped.
type ExtractionError struct {
	Field string
	Err   error
}

func (e *ExtractionError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("feature extraction failed: %v", e.Err)
	}
	return fmt.Sprintf("feature extraction failed (%s): %v", e.Field, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
