// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

// Package main is the entry point of the Fusionserve model-serving API.
//
// Startup order:
//
//  1. Configuration: koanf layers of defaults, config.yaml and environment
//  2. Logging: zerolog, optionally rotated to a file
//  3. Models: one fusion pipeline per configured name, sharing the feature
//     extractor dependencies (lexicon, image loader, embedding cache)
//  4. Training: BadgerDB job store and the background runner
//  5. Events: watermill publisher for training and anomaly events, and the
//     websocket hub that streams them to clients
//  6. HTTP: chi router with CORS, rate limiting and optional JWT auth
//  7. Supervisor tree: suture runs the runner and the retrain ticker in the
//     training layer, and the HTTP server and event stream in the API layer,
//     until SIGINT or SIGTERM
//
// Environment examples:
//
//	PORT=8000 LOG_LEVEL=debug ./fusionserve
//	AUTH_MODE=jwt JWT_SECRET=$(openssl rand -base64 32) ./fusionserve
//	EVENTS_BACKEND=nats NATS_URL=nats://nats:4222 ./fusionserve   # -tags nats
//	EVENTS_BACKEND=nats NATS_EMBEDDED=true ./fusionserve          # -tags nats
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/fusionserve/internal/api"
	"github.com/tomtom215/fusionserve/internal/config"
	"github.com/tomtom215/fusionserve/internal/events"
	"github.com/tomtom215/fusionserve/internal/jobs"
	"github.com/tomtom215/fusionserve/internal/logging"
	"github.com/tomtom215/fusionserve/internal/supervisor"
	"github.com/tomtom215/fusionserve/internal/supervisor/services"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "1.0.0"

//nolint:gocyclo // sequential startup
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.LoggingConfig())

	logging.Info().
		Str("version", version).
		Str("addr", cfg.Server.Addr()).
		Str("auth_mode", cfg.Security.AuthMode).
		Strs("models", cfg.Model.Names).
		Msg("Starting Fusionserve")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	extractorOpts, err := extractorOptions(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to set up feature extraction")
	}
	registry, err := buildRegistry(cfg, extractorOpts)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build models")
	}

	store, err := jobs.OpenBadgerStore(cfg.Training.JobStorePath, cfg.Training.JobHistory)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open job store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing job store")
		}
	}()

	mw := chiMiddlewareConfig(cfg)

	var (
		notifier  jobs.Notifier
		anomalies api.AnomalyPublisher
		stream    *eventStream
	)
	if cfg.Events.Enabled {
		publisher, err := events.NewPublisher(cfg.EventsConfig(), logging.WithComponent("events"))
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to start event publisher")
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing event publisher")
			}
		}()
		notifier, anomalies = publisher, publisher
		stream = newEventStream(cfg, publisher, mw.CORSAllowedOrigins)
	} else {
		logging.Info().Msg("Event publishing disabled (EVENTS_ENABLED=false)")
	}

	runner := jobs.NewRunner(registry, store, notifier, cfg.RunnerConfig(), logging.WithComponent("jobs"))

	handler, err := api.NewHandler(api.HandlerConfig{
		Registry:         registry,
		Trainer:          runner,
		Events:           anomalies,
		ExtractorOptions: extractorOpts,
		Info: api.ServiceInfo{
			Name:              cfg.Server.Name,
			Version:           version,
			ModelPath:         cfg.Model.ModelPath,
			ScraperServiceURL: cfg.Server.ScraperServiceURL,
		},
		MaxBatchSize: cfg.Server.MaxBatchSize,
		Logger:       logging.WithComponent("api"),
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create API handler")
	}

	authenticate, err := authMiddleware(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to set up authentication")
	}

	routerCfg := api.RouterConfig{
		APIPrefix:    cfg.Server.APIPrefix,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Middleware:   mw,
		Authenticate: authenticate,
		Logger:       logging.WithComponent("http"),
	}
	if stream != nil {
		routerCfg.EventStream = stream.hub
	}
	router := api.NewRouter(handler, routerCfg)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: cfg.Supervisor.FailureThreshold,
		FailureDecay:     cfg.Supervisor.FailureDecay,
		FailureBackoff:   cfg.Supervisor.FailureBackoff,
		ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddTrainingService(runner)
	if cfg.Training.RetrainEnabled {
		tree.AddTrainingService(services.NewRetrainService(runner, services.RetrainServiceConfig{
			Interval: cfg.Model.TrainingInterval,
		}, logging.WithComponent("retrain")))
		logging.Info().Dur("interval", cfg.Model.TrainingInterval).Msg("Periodic retraining enabled")
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	if stream != nil {
		tree.AddAPIService(stream.hub)
		tree.AddAPIService(stream.bridge)
	}

	watchConfig(config.FilePath())

	layers := tree.Services()
	logging.Info().
		Str("addr", server.Addr).
		Str("api_prefix", cfg.Server.APIPrefix).
		Strs(supervisor.LayerTraining, layers[supervisor.LayerTraining]).
		Strs(supervisor.LayerAPI, layers[supervisor.LayerAPI]).
		Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	if err := waitForTree(ctx, errCh, shutdownGrace(cfg)); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}
	logging.Info().Msg("Fusionserve stopped")
}

var errShutdownTimeout = errors.New("supervisor tree did not stop in time")

// shutdownGrace bounds the wait for the tree after a signal. The HTTP
// server drains within its own timeout before suture gives up on it.
func shutdownGrace(cfg *config.Config) time.Duration {
	return cfg.Supervisor.ShutdownTimeout + cfg.Server.ShutdownTimeout + time.Second
}

// waitForTree returns the tree's result. suture sends exactly one value on
// errCh and never closes it, so after a cancel the wait is bounded by grace.
func waitForTree(ctx context.Context, errCh <-chan error, grace time.Duration) error {
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logging.Info().Msg("Shutdown signal received, waiting for services to stop")

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case err := <-errCh:
		return err
	case <-timer.C:
		return errShutdownTimeout
	}
}
