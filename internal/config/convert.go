// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package config

import (
	"github.com/tomtom215/fusionserve/internal/events"
	"github.com/tomtom215/fusionserve/internal/features"
	"github.com/tomtom215/fusionserve/internal/jobs"
	"github.com/tomtom215/fusionserve/internal/logging"
	"github.com/tomtom215/fusionserve/internal/ml"
	"github.com/tomtom215/fusionserve/internal/ml/estimators"
)

// LoggingConfig converts the logging section for logging.Init. Debug mode
// lowers the level to debug unless a more verbose level is set.
func (c *Config) LoggingConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = c.Logging.Level
	if c.Server.Debug && (lc.Level == "info" || lc.Level == "warn" || lc.Level == "error") {
		lc.Level = "debug"
	}
	lc.Format = c.Logging.Format
	lc.Caller = c.Logging.Caller
	lc.File = c.Logging.File
	lc.MaxSizeMB = c.Logging.MaxSizeMB
	lc.MaxBackups = c.Logging.MaxBackups
	lc.MaxAgeDays = c.Logging.MaxAgeDays
	lc.Compress = c.Logging.Compress
	return lc
}

// FeatureConfig converts and validates the features section.
func (c *Config) FeatureConfig() (features.Config, error) {
	fc := features.Config{
		UseNLP:        c.Features.UseNLP,
		UseVision:     c.Features.UseVision,
		TextModel:     c.Features.TextModel,
		VisionModel:   c.Features.VisionModel,
		EmbeddingDim:  c.Features.EmbeddingDim,
		MaxTextLength: c.Features.MaxTextLength,
		ImageSize:     features.ImageSize{c.Features.ImageWidth, c.Features.ImageHeight},
	}
	return fc, fc.Validate()
}

// ModelConfig converts the model and features sections into the
// configuration every registered model shares.
func (c *Config) ModelConfig() (ml.Config, error) {
	fc, err := c.FeatureConfig()
	if err != nil {
		return ml.Config{}, err
	}
	mc := ml.Config{
		ModelType:           ml.DefaultModelType,
		ConfidenceThreshold: c.Model.ConfidenceThreshold,
		MinSamples:          c.Model.MinSamples,
		TrainingInterval:    c.Model.TrainingInterval,
		Features:            fc,
	}
	return mc, mc.Validate()
}

// ForestConfig returns the classifier settings.
func (c *Config) ForestConfig() estimators.ForestConfig {
	fc := estimators.DefaultForestConfig()
	fc.NTrees = c.Model.NTrees
	fc.MaxDepth = c.Model.MaxDepth
	fc.Seed = c.Model.Seed
	return fc
}

// IsolationConfig returns the anomaly scorer settings.
func (c *Config) IsolationConfig() estimators.IsolationConfig {
	ic := estimators.DefaultIsolationConfig()
	ic.NTrees = c.Model.NTrees
	ic.Seed = c.Model.Seed
	ic.Contamination = c.Model.Contamination
	if c.Model.MaxSamples > 0 {
		ic.MaxSamples = c.Model.MaxSamples
	}
	return ic
}

// FetcherConfig returns the remote image fetcher settings.
func (c *Config) FetcherConfig() features.FetcherConfig {
	fc := features.DefaultFetcherConfig()
	fc.Timeout = c.Features.FetchTimeout
	fc.MaxBytes = c.Features.FetchMaxBytes
	fc.RateLimit = c.Features.FetchRateLimit
	fc.AllowedHosts = c.Features.FetchAllowedHosts
	fc.AllowPrivate = c.Features.FetchAllowPrivate
	return fc
}

// LoaderConfig returns the image loader settings. The fetcher is wired by
// the caller.
func (c *Config) LoaderConfig() features.LoaderConfig {
	return features.LoaderConfig{
		AllowFiles:  c.Features.FetchAllowFiles,
		AllowRemote: c.Features.FetchAllowRemote,
		MaxBytes:    c.Features.FetchMaxBytes,
	}
}

// RunnerConfig returns the training runner settings.
func (c *Config) RunnerConfig() jobs.RunnerConfig {
	rc := jobs.DefaultRunnerConfig()
	rc.QueueSize = c.Training.QueueSize
	rc.Timeout = c.Training.Timeout
	rc.DedupWindow = c.Training.DedupWindow
	return rc
}

// EventsConfig returns the event publisher settings.
func (c *Config) EventsConfig() events.Config {
	ec := events.DefaultConfig()
	ec.Backend = c.Events.Backend
	ec.NATSURL = c.Events.NATSURL
	ec.TopicPrefix = c.Events.TopicPrefix
	ec.NATSEmbedded = c.Events.NATSEmbedded
	ec.EmbeddedPort = c.Events.EmbeddedPort
	return ec
}
