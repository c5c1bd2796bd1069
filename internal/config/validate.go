// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/tomtom215/fusionserve/internal/auth"
	"github.com/tomtom215/fusionserve/internal/events"
	"github.com/tomtom215/fusionserve/internal/logging"
	"github.com/tomtom215/fusionserve/internal/validation"
)

// Validate checks every section and joins the failures.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	add(c.Server.validate())
	add(c.Security.validate())
	add(c.Logging.validate())
	add(c.Model.validate())
	add(c.Training.validate())
	if _, err := c.FeatureConfig(); err != nil {
		add(fmt.Errorf("features: %w", err))
	}
	if c.Events.Enabled {
		ev := c.EventsConfig()
		add(ev.Validate())
	}
	if c.Supervisor.FailureThreshold <= 0 {
		add(errors.New("supervisor.failure_threshold must be positive"))
	}
	return errors.Join(errs...)
}

func (s *ServerConfig) validate() error {
	switch {
	case s.Port < 1 || s.Port > 65535:
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", s.Port)
	case !strings.HasPrefix(s.APIPrefix, "/"):
		return fmt.Errorf("server.api_prefix must start with /, got %q", s.APIPrefix)
	case s.MaxBatchSize <= 0:
		return errors.New("server.max_batch_size must be positive")
	case s.MaxBodyBytes <= 0:
		return errors.New("server.max_body_bytes must be positive")
	}
	if s.ScraperServiceURL != "" {
		if u, err := url.Parse(s.ScraperServiceURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("server.scraper_service_url is not an absolute URL: %q", s.ScraperServiceURL)
		}
	}
	return nil
}

func (s *SecurityConfig) validate() error {
	if !s.RateLimitDisabled && (s.RateLimitRequests <= 0 || s.RateLimitPeriod <= 0) {
		return errors.New("security.rate_limit_requests and rate_limit_period must be positive")
	}
	switch s.AuthMode {
	case auth.ModeNone:
	case auth.ModeJWT:
		if len(s.JWTSecret) < auth.MinSecretLength {
			return fmt.Errorf("security.jwt_secret must be at least %d characters in jwt mode", auth.MinSecretLength)
		}
		if s.TokenTTL <= 0 {
			return errors.New("security.token_ttl must be positive")
		}
	default:
		return fmt.Errorf("security.auth_mode must be none or jwt, got %q", s.AuthMode)
	}
	return nil
}

func (l *LoggingConfig) validate() error {
	if !logging.ValidLevel(l.Level) {
		return fmt.Errorf("logging.level %q is not a valid level", l.Level)
	}
	if l.Format != "json" && l.Format != "console" {
		return fmt.Errorf("logging.format must be json or console, got %q", l.Format)
	}
	return nil
}

func (m *ModelConfig) validate() error {
	switch {
	case m.ConfidenceThreshold < 0 || m.ConfidenceThreshold > 1:
		return fmt.Errorf("model.confidence_threshold must be in [0,1], got %v", m.ConfidenceThreshold)
	case m.MinSamples < 1:
		return errors.New("model.min_samples must be at least 1")
	case m.TrainingInterval <= 0:
		return errors.New("model.training_interval must be positive")
	case len(m.Names) == 0:
		return errors.New("model.names must list at least one model")
	case m.NTrees < 1:
		return errors.New("model.n_trees must be at least 1")
	case m.Contamination <= 0 || m.Contamination > 0.5:
		return fmt.Errorf("model.contamination must be in (0,0.5], got %v", m.Contamination)
	}
	for _, name := range m.Names {
		if !validation.ValidModelName(name) {
			return fmt.Errorf("model.names: invalid model name %q", name)
		}
	}
	return nil
}

func (t *TrainingConfig) validate() error {
	switch {
	case t.QueueSize < 1:
		return errors.New("training.queue_size must be at least 1")
	case t.Timeout <= 0:
		return errors.New("training.timeout must be positive")
	case t.DedupWindow < 0:
		return errors.New("training.dedup_window must not be negative")
	}
	return nil
}
