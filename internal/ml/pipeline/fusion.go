// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

// Package pipeline implements the fusion pipeline model: a feature
// extractor feeding a scaled random forest classifier, with an isolation
// forest scoring every row for normality alongside.
//
// The anomaly flag is informational. It never suppresses or alters the
// classification of a row.
package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/fusionserve/internal/features"
	"github.com/tomtom215/fusionserve/internal/logging"
	"github.com/tomtom215/fusionserve/internal/metrics"
	"github.com/tomtom215/fusionserve/internal/ml"
	"github.com/tomtom215/fusionserve/internal/ml/estimators"
)

// Pipeline step names reported in metadata.
var pipelineSteps = []ml.PipelineStep{
	{"scaler", "StandardScaler"},
	{"classifier", "RandomForestClassifier"},
}

// Option customizes New.
type Option func(*options)

type options struct {
	forest    estimators.ForestConfig
	isolation estimators.IsolationConfig
	extractor []features.Option
	logger    *zerolog.Logger
}

// WithForestConfig overrides the classifier hyperparameters.
func WithForestConfig(cfg estimators.ForestConfig) Option {
	return func(o *options) { o.forest = cfg }
}

// WithIsolationConfig overrides the anomaly scorer hyperparameters.
func WithIsolationConfig(cfg estimators.IsolationConfig) Option {
	return func(o *options) { o.isolation = cfg }
}

// WithExtractorOptions passes options through to features.NewExtractor.
func WithExtractorOptions(opts ...features.Option) Option {
	return func(o *options) { o.extractor = append(o.extractor, opts...) }
}

// WithLogger sets the model logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// fitted is one complete trained state. It is immutable once built.
type fitted struct {
	scaler     *estimators.StandardScaler
	classifier *estimators.RandomForestClassifier
	detector   *estimators.IsolationForest
	classes    []int
	width      int
}

// FusionModel implements ml.ContentModel.
type FusionModel struct {
	name      string
	cfg       ml.Config
	forest    estimators.ForestConfig
	isolation estimators.IsolationConfig
	extractor *features.Extractor
	logger    zerolog.Logger

	// trainMu serializes Train calls; mu guards the fields below it.
	trainMu       sync.Mutex
	mu            sync.RWMutex
	state         *fitted
	version       int
	lastTrainedAt time.Time
}

var _ ml.ContentModel = (*FusionModel)(nil)

// New builds an untrained model. The configuration is validated and the
// extractor is constructed eagerly.
func New(name string, cfg ml.Config, opts ...Option) (*FusionModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("model %q: %w", name, err)
	}

	o := options{
		forest:    estimators.DefaultForestConfig(),
		isolation: estimators.DefaultIsolationConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := logging.WithComponent("model")
	if o.logger != nil {
		logger = *o.logger
	}
	logger = logger.With().Str("model", name).Logger()

	extractor, err := features.NewExtractor(cfg.Features, append([]features.Option{features.WithLogger(logger)}, o.extractor...)...)
	if err != nil {
		return nil, err
	}

	m := &FusionModel{
		name:      name,
		cfg:       cfg,
		forest:    o.forest,
		isolation: o.isolation,
		extractor: extractor,
		logger:    logger,
	}
	metrics.SetModelTrained(name, false)
	return m, nil
}

// Name returns the name the model was built with.
func (m *FusionModel) Name() string { return m.name }

// Config returns the model configuration.
func (m *FusionModel) Config() ml.Config { return m.cfg }

// Extractor returns the model's feature extractor.
func (m *FusionModel) Extractor() *features.Extractor { return m.extractor }

// Extract implements ml.ContentModel.
func (m *FusionModel) Extract(ctx context.Context, content features.Content) (features.Bundle, error) {
	return m.extractor.Extract(ctx, content)
}

// Row implements ml.ContentModel. Absent groups are zero-filled.
func (m *FusionModel) Row(b features.Bundle) ([]float64, error) {
	row, err := m.extractor.Layout().Row(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ml.ErrInvalidInput, err)
	}
	return row, nil
}

func (m *FusionModel) current() *fitted {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Train fits a fresh scaler, classifier and anomaly scorer and swaps them
// in together. Predictions keep using the previous state while fitting
// runs. On failure the previous state is kept.
func (m *FusionModel) Train(ctx context.Context, rows [][]float64, labels []int) error {
	m.trainMu.Lock()
	defer m.trainMu.Unlock()

	start := time.Now()
	logger := logging.Enrich(ctx, m.logger)

	next, err := m.fit(ctx, rows, labels)
	duration := time.Since(start)
	metrics.RecordTraining(m.name, duration, err)
	if err != nil {
		logger.Error().Err(err).Int("rows", len(rows)).Msg("model training failed")
		return &ml.TrainingError{Model: m.name, Err: err}
	}

	m.mu.Lock()
	m.state = next
	m.version++
	m.lastTrainedAt = time.Now().UTC()
	version := m.version
	m.mu.Unlock()

	metrics.SetModelTrained(m.name, true)
	logger.Info().
		Int("rows", len(rows)).
		Int("features", next.width).
		Ints("classes", next.classes).
		Int("version", version).
		Dur("duration", duration).
		Msg("model trained")
	return nil
}

func (m *FusionModel) fit(ctx context.Context, rows [][]float64, labels []int) (*fitted, error) {
	width, err := ml.CheckLabelled(rows, labels, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) < m.cfg.MinSamples {
		return nil, fmt.Errorf("%w: %d samples, need at least %d", ml.ErrInvalidInput, len(rows), m.cfg.MinSamples)
	}

	detector := estimators.NewIsolationForest(m.isolation)
	if err := detector.Fit(ctx, rows); err != nil {
		return nil, fmt.Errorf("anomaly detector: %w", err)
	}

	scaler := &estimators.StandardScaler{}
	if err := scaler.Fit(rows); err != nil {
		return nil, fmt.Errorf("scaler: %w", err)
	}
	scaled, err := scaler.Transform(rows)
	if err != nil {
		return nil, fmt.Errorf("scaler: %w", err)
	}

	classifier := estimators.NewRandomForestClassifier(m.forest)
	if err := classifier.Fit(ctx, scaled, labels); err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}

	return &fitted{
		scaler:     scaler,
		classifier: classifier,
		detector:   detector,
		classes:    classifier.Classes(),
		width:      width,
	}, nil
}

// score runs both branches over rows against one consistent state.
func (s *fitted) score(rows [][]float64, threshold float64) (*ml.Prediction, error) {
	normality, err := s.detector.Score(rows)
	if err != nil {
		return nil, fmt.Errorf("anomaly detector: %w", err)
	}
	scaled, err := s.scaler.Transform(rows)
	if err != nil {
		return nil, fmt.Errorf("scaler: %w", err)
	}
	proba, err := s.classifier.PredictProba(scaled)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}

	p := &ml.Prediction{
		Predictions:      make([]int, len(rows)),
		ConfidenceScores: make([]float64, len(rows)),
		AnomalyScores:    normality,
		IsAnomaly:        make([]bool, len(rows)),
	}
	for i, probs := range proba {
		best := 0
		for c := 1; c < len(probs); c++ {
			if probs[c] > probs[best] {
				best = c
			}
		}
		p.Predictions[i] = s.classes[best]
		p.ConfidenceScores[i] = probs[best]
		p.IsAnomaly[i] = normality[i] < threshold
	}
	return p, nil
}

// Predict classifies rows and scores their normality.
func (m *FusionModel) Predict(ctx context.Context, rows [][]float64) (*ml.Prediction, error) {
	start := time.Now()
	p, err := m.predict(rows)
	anomalies := 0
	if p != nil {
		anomalies = p.AnomalyCount()
	}
	metrics.RecordPrediction(m.name, len(rows), anomalies, time.Since(start), err)
	if err != nil {
		return nil, &ml.PredictionError{Model: m.name, Err: err}
	}
	if anomalies > 0 {
		logging.Enrich(ctx, m.logger).Debug().Int("rows", len(rows)).Int("anomalies", anomalies).Msg("anomalous rows flagged")
	}
	return p, nil
}

func (m *FusionModel) predict(rows [][]float64) (*ml.Prediction, error) {
	state := m.current()
	if state == nil {
		return nil, ml.ErrNotTrained
	}
	if _, err := ml.CheckRows(rows, state.width); err != nil {
		return nil, err
	}
	return state.score(rows, m.cfg.ConfidenceThreshold)
}

// Validate scores labelled rows against the current state. It does not
// change the model and returns identical results for identical input.
func (m *FusionModel) Validate(_ context.Context, rows [][]float64, labels []int) (*ml.ValidationMetrics, error) {
	vm, err := m.validate(rows, labels)
	if err != nil {
		return nil, &ml.ValidationError{Model: m.name, Err: err}
	}
	return vm, nil
}

func (m *FusionModel) validate(rows [][]float64, labels []int) (*ml.ValidationMetrics, error) {
	state := m.current()
	if state == nil {
		return nil, ml.ErrNotTrained
	}
	if _, err := ml.CheckLabelled(rows, labels, state.width); err != nil {
		return nil, err
	}
	p, err := state.score(rows, m.cfg.ConfidenceThreshold)
	if err != nil {
		return nil, err
	}

	n := float64(len(rows))
	vm := &ml.ValidationMetrics{MinConfidence: 1, Samples: len(rows)}
	var correct, confidence float64
	for i := range rows {
		if p.Predictions[i] == labels[i] {
			correct++
		}
		confidence += p.ConfidenceScores[i]
		vm.MinConfidence = min(vm.MinConfidence, p.ConfidenceScores[i])
	}
	vm.Accuracy = correct / n
	vm.MeanConfidence = confidence / n
	vm.AnomalyRatio = float64(p.AnomalyCount()) / n
	return vm, nil
}

// Metadata implements ml.Model.
func (m *FusionModel) Metadata() ml.Metadata {
	m.mu.RLock()
	state, version, trainedAt := m.state, m.version, m.lastTrainedAt
	m.mu.RUnlock()

	md := ml.Metadata{
		ModelType:           m.cfg.ModelType,
		IsTrained:           state != nil,
		FeatureConfig:       m.extractor.Config(),
		PipelineSteps:       slices.Clone(pipelineSteps),
		ConfidenceThreshold: m.cfg.ConfidenceThreshold,
		Version:             version,
		NFeatures:           m.extractor.Layout().Width(),
	}
	if state != nil {
		md.ClassifierParams = state.classifier.Params()
		md.AnomalyDetectorParams = state.detector.Params()
		md.NFeatures = state.width
		md.Classes = slices.Clone(state.classes)
		md.LastTrainedAt = &trainedAt
	} else {
		md.ClassifierParams = estimators.NewRandomForestClassifier(m.forest).Params()
		md.AnomalyDetectorParams = estimators.NewIsolationForest(m.isolation).Params()
	}
	return md
}
