// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package ml

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/fusionserve/internal/features"
)

// Model configuration defaults.
const (
	DefaultModelType           = "fusion_pipeline"
	DefaultConfidenceThreshold = 0.85
	DefaultMinSamples          = 100
	DefaultTrainingInterval    = time.Hour
)

// Config configures one model instance.
type Config struct {
	ModelType string `json:"model_type"`

	// ConfidenceThreshold is the normality below which a row is flagged
	// as anomalous.
	ConfidenceThreshold float64 `json:"confidence_threshold"`

	// MinSamples is the smallest accepted training set.
	MinSamples int `json:"min_samples"`

	// TrainingInterval is how often the retrain service resubmits the last
	// dataset. The model itself never schedules training.
	TrainingInterval time.Duration `json:"training_interval"`

	Features features.Config `json:"features"`
}

// DefaultConfig returns the configuration of the default model.
func DefaultConfig() Config {
	return Config{
		ModelType:           DefaultModelType,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		MinSamples:          DefaultMinSamples,
		TrainingInterval:    DefaultTrainingInterval,
		Features:            features.DefaultConfig(),
	}
}

// Validate checks ranges. Feature configuration errors are reported as
// returned by features.Config.Validate.
func (c Config) Validate() error {
	var errs []error
	if c.ModelType == "" {
		errs = append(errs, errors.New("model_type is required"))
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("confidence_threshold must be within [0,1], got %v", c.ConfidenceThreshold))
	}
	if c.MinSamples < 1 {
		errs = append(errs, fmt.Errorf("min_samples must be positive, got %d", c.MinSamples))
	}
	if c.TrainingInterval < 0 {
		errs = append(errs, fmt.Errorf("training_interval must not be negative, got %s", c.TrainingInterval))
	}
	if err := c.Features.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
