// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/fusionserve/internal/jobs"
)

// Retrainer queues the last successful dataset of every model again.
// *jobs.Runner implements it.
type Retrainer interface {
	Resubmit(ctx context.Context) ([]*jobs.Job, error)
}

// RetrainServiceConfig configures RetrainService.
type RetrainServiceConfig struct {
	// Interval between retrain rounds. Defaults to one hour.
	Interval time.Duration

	// Timeout bounds one round of submissions. Defaults to one minute.
	Timeout time.Duration
}

// RetrainService periodically retrains every model on the data it was last
// trained on. Rounds only queue jobs; training itself happens in the runner.
type RetrainService struct {
	retrainer Retrainer
	config    RetrainServiceConfig
	logger    zerolog.Logger
	name      string
}

// NewRetrainService creates the periodic retrain service.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewRetrainService(retrainer Retrainer, cfg RetrainServiceConfig, logger zerolog.Logger) *RetrainService {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	return &RetrainService{
		retrainer: retrainer,
		config:    cfg,
		logger:    logger.With().Str("service", "retrain").Logger(),
		name:      "retrain-scheduler",
	}
}

// Serve implements suture.Service.
func (s *RetrainService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.config.Interval).Msg("retrain scheduler running")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.retrain(ctx)
		}
	}
}

func (s *RetrainService) retrain(ctx context.Context) {
	roundCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	queued, err := s.retrainer.Resubmit(roundCtx)
	if err != nil {
		// partial failures still queue the other models
		s.logger.Warn().Err(err).Int("queued", len(queued)).Msg("scheduled retrain incomplete")
		return
	}
	if len(queued) == 0 {
		s.logger.Debug().Msg("no trained models to retrain")
		return
	}
	ids := make([]string, len(queued))
	for i, j := range queued {
		ids[i] = j.ID
	}
	s.logger.Info().Strs("job_ids", ids).Msg("scheduled retrain queued")
}

// String names the service in supervisor events.
func (s *RetrainService) String() string {
	return s.name
}
