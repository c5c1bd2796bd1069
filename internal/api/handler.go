// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/fusionserve/internal/features"
	"github.com/tomtom215/fusionserve/internal/jobs"
	"github.com/tomtom215/fusionserve/internal/ml"
)

// Trainer queues and reports training jobs. *jobs.Runner implements it.
type Trainer interface {
	Submit(ctx context.Context, req jobs.Request) (*jobs.Job, error)
	Get(ctx context.Context, id string) (*jobs.Job, error)
	List(ctx context.Context, limit int) ([]*jobs.Job, error)
	Pending() int
}

// AnomalyPublisher is told about predictions. *events.Publisher
// implements it.
type AnomalyPublisher interface {
	AnomaliesDetected(ctx context.Context, model string, pred *ml.Prediction, threshold float64) bool
}

// ServiceInfo is reported by GET /info.
type ServiceInfo struct {
	Name              string
	Version           string
	ModelPath         string
	ScraperServiceURL string
}

// HandlerConfig holds the handler dependencies. Registry and Trainer are
// required.
type HandlerConfig struct {
	Registry *ml.Registry
	Trainer  Trainer
	Events   AnomalyPublisher

	// ExtractorOptions configure extractors built for /extract-features,
	// normally the same image loader and cache the models use.
	ExtractorOptions []features.Option

	Info         ServiceInfo
	MaxBatchSize int
	Logger       zerolog.Logger
}

// Handler implements the HTTP endpoints.
type Handler struct {
	registry  *ml.Registry
	trainer   Trainer
	events    AnomalyPublisher
	opts      []features.Option
	extractor *features.Extractor
	info      ServiceInfo
	maxBatch  int
	logger    zerolog.Logger
}

// extractConcurrency bounds concurrent content extraction in one request.
const extractConcurrency = 4

// NewHandler builds a Handler. The default-configuration extractor used by
// /extract-features is built eagerly.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Registry == nil || cfg.Trainer == nil {
		return nil, errors.New("api: registry and trainer are required")
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 100
	}
	h := &Handler{
		registry: cfg.Registry,
		trainer:  cfg.Trainer,
		events:   cfg.Events,
		opts:     cfg.ExtractorOptions,
		info:     cfg.Info,
		maxBatch: cfg.MaxBatchSize,
		logger:   cfg.Logger.With().Str("component", "api").Logger(),
	}
	ext, err := h.newExtractor(features.DefaultConfig())
	if err != nil {
		return nil, err
	}
	h.extractor = ext
	return h, nil
}

func (h *Handler) newExtractor(cfg features.Config) (*features.Extractor, error) {
	opts := append([]features.Option{features.WithLogger(h.logger)}, h.opts...)
	return features.NewExtractor(cfg, opts...)
}

// extractorFor returns the shared extractor for the default configuration
// and a fresh one otherwise.
func (h *Handler) extractorFor(cfg features.Config) (*features.Extractor, error) {
	if cfg == h.extractor.Config() {
		return h.extractor, nil
	}
	return h.newExtractor(cfg)
}

// contentRows extracts and flattens contents with the model's own
// extractor, preserving order.
func contentRows(ctx context.Context, model ml.Model, name string, contents []features.Content) ([][]float64, error) {
	cm, ok := model.(ml.ContentModel)
	if !ok {
		return nil, fmt.Errorf("%w: model %q accepts feature rows only", ml.ErrInvalidInput, name)
	}
	rows := make([][]float64, len(contents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(extractConcurrency)
	for i := range contents {
		g.Go(func() error {
			b, err := cm.Extract(gctx, contents[i])
			if err != nil {
				return fmt.Errorf("contents[%d]: %w", i, err)
			}
			row, err := cm.Row(b)
			if err != nil {
				return fmt.Errorf("contents[%d]: %w", i, err)
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}
