// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package models

import (
	"errors"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fusionserve/internal/features"
	"github.com/tomtom215/fusionserve/internal/jobs"
	"github.com/tomtom215/fusionserve/internal/ml"
)

// Input shape errors, reported before tag validation runs.
var (
	ErrNoInput        = errors.New("one of content, contents or features is required")
	ErrAmbiguousInput = errors.New("content, contents and features are mutually exclusive")
)

// PredictRequest is the body of POST /predict. Exactly one of Content,
// Contents and Features is set; Content is the single-item form.
type PredictRequest struct {
	Content   *features.Content  `json:"content,omitempty"`
	Contents  []features.Content `json:"contents,omitempty"`
	Features  [][]float64        `json:"features,omitempty" validate:"omitempty,dive,min=1,dive,finite"`
	ModelName string             `json:"model_name" validate:"omitempty,modelname"`
}

// CheckInput enforces that exactly one input form is present.
func (r *PredictRequest) CheckInput() error {
	return exactlyOne(r.Content != nil, r.Contents != nil, r.Features != nil)
}

// Model returns the requested model name or the default.
func (r *PredictRequest) Model() string { return modelOrDefault(r.ModelName) }

// PredictResponse is returned by POST /predict.
type PredictResponse struct {
	ModelName        string    `json:"model_name"`
	ModelVersion     int       `json:"model_version"`
	Predictions      []int     `json:"predictions"`
	ConfidenceScores []float64 `json:"confidence_scores"`
	AnomalyScores    []float64 `json:"anomaly_scores"`
	IsAnomaly        []bool    `json:"is_anomaly"`
}

// NewPredictResponse copies a prediction into the response shape.
func NewPredictResponse(model string, version int, p *ml.Prediction) PredictResponse {
	return PredictResponse{
		ModelName:        model,
		ModelVersion:     version,
		Predictions:      p.Predictions,
		ConfidenceScores: p.ConfidenceScores,
		AnomalyScores:    p.AnomalyScores,
		IsAnomaly:        p.IsAnomaly,
	}
}

// TrainRequest is the body of POST /train. Rows come either as numeric
// Features or as Contents run through the model's extractor.
type TrainRequest struct {
	Features  [][]float64        `json:"features,omitempty" validate:"omitempty,dive,min=1,dive,finite"`
	Contents  []features.Content `json:"contents,omitempty"`
	Labels    []int              `json:"labels" validate:"required,min=1"`
	ModelName string             `json:"model_name" validate:"omitempty,modelname"`
}

// CheckInput enforces that exactly one of Features and Contents is present.
func (r *TrainRequest) CheckInput() error {
	if r.Features == nil && r.Contents == nil {
		return errors.New("one of features or contents is required")
	}
	if r.Features != nil && r.Contents != nil {
		return errors.New("features and contents are mutually exclusive")
	}
	return nil
}

// Model returns the requested model name or the default.
func (r *TrainRequest) Model() string { return modelOrDefault(r.ModelName) }

// TrainResponse is returned with 202 by POST /train.
type TrainResponse struct {
	Message string    `json:"message"`
	Job     *jobs.Job `json:"job"`
}

// ExtractRequest is the body of POST /extract-features. Config is merged
// over the default feature configuration, so partial objects are fine.
type ExtractRequest struct {
	Content features.Content `json:"content"`
	Config  json.RawMessage  `json:"config,omitempty"`
}

// FeatureConfig returns the default configuration overlaid with Config.
func (r *ExtractRequest) FeatureConfig() (features.Config, error) {
	cfg := features.DefaultConfig()
	if len(r.Config) == 0 || string(r.Config) == "null" {
		return cfg, nil
	}
	if err := json.Unmarshal(r.Config, &cfg); err != nil {
		return cfg, &features.ExtractionError{Field: "config", Err: err}
	}
	return cfg, nil
}

// ExtractResponse is returned by POST /extract-features.
type ExtractResponse struct {
	Features features.Bundle `json:"features"`
	Layout   features.Layout `json:"layout"`
}

// ValidateRequest is the body of POST /models/{name}/validate.
type ValidateRequest struct {
	Features [][]float64 `json:"features" validate:"required,min=1,dive,min=1,dive,finite"`
	Labels   []int       `json:"labels" validate:"required,min=1"`
}

// InfoResponse is returned by GET /info.
type InfoResponse struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	AvailableModels []string          `json:"available_models"`
	MLComponents    map[string]string `json:"ml_components"`
	ModelPath       string            `json:"model_path,omitempty"`

	// Integrations names upstream services, e.g. the content scraper.
	Integrations map[string]string `json:"integrations,omitempty"`
}

// ModelSummary is one entry of GET /models.
type ModelSummary struct {
	Name     string      `json:"name"`
	Metadata ml.Metadata `json:"metadata"`
}

// JobList is returned by GET /train/jobs.
type JobList struct {
	Jobs    []*jobs.Job `json:"jobs"`
	Pending int         `json:"pending"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func modelOrDefault(name string) string {
	if name == "" {
		return ml.DefaultModelName
	}
	return name
}

func exactlyOne(flags ...bool) error {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	switch n {
	case 0:
		return ErrNoInput
	case 1:
		return nil
	default:
		return ErrAmbiguousInput
	}
}
