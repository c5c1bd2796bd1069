// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

// Package ml defines the model lifecycle contract shared by every servable
// model, the typed errors it reports and the registry that maps names to
// model instances.
//
// # Lifecycle
//
// A model starts untrained. Predict and Validate report ErrNotTrained until
// the first successful Train. Train replaces the fitted state atomically:
// concurrent readers see either the old or the new state, never a mix, and
// a failed Train leaves the old state in place. Metadata never fails.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. The Registry is safe for
// concurrent use and is constructed by the caller; there is no package
// level instance.
package ml

import (
	"context"
	"time"

	"github.com/tomtom215/fusionserve/internal/features"
)

// Model is the lifecycle contract every servable model implements.
type Model interface {
	// Predict scores each row. The result arrays have one entry per row.
	Predict(ctx context.Context, features [][]float64) (*Prediction, error)

	// Train fits the model on rows and integer class labels.
	Train(ctx context.Context, features [][]float64, labels []int) error

	// Validate scores labelled rows without changing the model.
	Validate(ctx context.Context, features [][]float64, labels []int) (*ValidationMetrics, error)

	// Metadata describes the model. It never fails.
	Metadata() Metadata
}

// ContentModel is a Model that owns its feature extractor, so callers can
// serve raw content instead of prepared rows.
type ContentModel interface {
	Model

	// Extract runs the model's extractor on content.
	Extract(ctx context.Context, content features.Content) (features.Bundle, error)

	// Row flattens a bundle into the model's feature layout.
	Row(b features.Bundle) ([]float64, error)
}

// Prediction holds four parallel arrays, one entry per input row.
type Prediction struct {
	Predictions      []int     `json:"predictions"`
	ConfidenceScores []float64 `json:"confidence_scores"`
	AnomalyScores    []float64 `json:"anomaly_scores"`
	IsAnomaly        []bool    `json:"is_anomaly"`
}

// Len returns the number of scored rows.
func (p *Prediction) Len() int { return len(p.Predictions) }

// AnomalyCount returns how many rows were flagged.
func (p *Prediction) AnomalyCount() int {
	n := 0
	for _, a := range p.IsAnomaly {
		if a {
			n++
		}
	}
	return n
}

// ValidationMetrics summarizes a Validate call.
type ValidationMetrics struct {
	Accuracy       float64 `json:"accuracy"`
	MeanConfidence float64 `json:"mean_confidence"`
	MinConfidence  float64 `json:"min_confidence"`
	AnomalyRatio   float64 `json:"anomaly_ratio"`
	Samples        int     `json:"samples"`
}

// PipelineStep names one stage of a model pipeline as [name, estimator].
type PipelineStep [2]string

// Metadata describes a model for listing and inspection.
type Metadata struct {
	ModelType             string          `json:"model_type"`
	IsTrained             bool            `json:"is_trained"`
	FeatureConfig         features.Config `json:"feature_config"`
	PipelineSteps         []PipelineStep  `json:"pipeline_steps"`
	ClassifierParams      map[string]any  `json:"classifier_params"`
	AnomalyDetectorParams map[string]any  `json:"anomaly_detector_params"`
	ConfidenceThreshold   float64         `json:"confidence_threshold"`
	Version               int             `json:"version"`
	LastTrainedAt         *time.Time      `json:"last_trained_at,omitempty"`
	NFeatures             int             `json:"n_features"`
	Classes               []int           `json:"classes,omitempty"`
}
