// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package main

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/tomtom215/fusionserve/internal/api"
	"github.com/tomtom215/fusionserve/internal/auth"
	"github.com/tomtom215/fusionserve/internal/config"
	"github.com/tomtom215/fusionserve/internal/events"
	"github.com/tomtom215/fusionserve/internal/features"
	"github.com/tomtom215/fusionserve/internal/logging"
	"github.com/tomtom215/fusionserve/internal/ml"
	"github.com/tomtom215/fusionserve/internal/ml/pipeline"
	"github.com/tomtom215/fusionserve/internal/websocket"
)

// extractorOptions builds the dependencies shared by every extractor: the
// lexicon, the image loader and the embedding cache.
func extractorOptions(cfg *config.Config) ([]features.Option, error) {
	lexicon := features.DefaultLexicon()
	if cfg.Features.LexiconPath != "" {
		lex, err := features.LoadLexicon(cfg.Features.LexiconPath)
		if err != nil {
			return nil, err
		}
		lexicon = lex
		logging.Info().Str("path", cfg.Features.LexiconPath).Msg("Loaded custom lexicon")
	}

	loaderCfg := cfg.LoaderConfig()
	if loaderCfg.AllowRemote {
		loaderCfg.Fetcher = features.NewHTTPFetcher(cfg.FetcherConfig(), nil)
		logging.Info().Strs("allowed_hosts", cfg.Features.FetchAllowedHosts).
			Bool("allow_private", cfg.Features.FetchAllowPrivate).
			Msg("Remote image references enabled")
	}
	loader := features.NewSourceLoader(loaderCfg)

	return []features.Option{
		features.WithLexicon(lexicon),
		features.WithImageLoader(loader),
		features.WithEmbeddingCache(features.NewEmbeddingCache(cfg.Features.ImageCacheSize, cfg.Features.ImageCacheTTL)),
		features.WithLogger(logging.WithComponent("features")),
	}, nil
}

// buildRegistry registers one fusion pipeline per configured model name.
// The default model is always present.
func buildRegistry(cfg *config.Config, extractorOpts []features.Option) (*ml.Registry, error) {
	modelCfg, err := cfg.ModelConfig()
	if err != nil {
		return nil, err
	}

	names := slices.Clone(cfg.Model.Names)
	if !slices.Contains(names, ml.DefaultModelName) {
		names = append(names, ml.DefaultModelName)
	}

	registry := ml.NewRegistry(logging.WithComponent("registry"))
	for _, name := range names {
		model, err := pipeline.New(name, modelCfg,
			pipeline.WithForestConfig(cfg.ForestConfig()),
			pipeline.WithIsolationConfig(cfg.IsolationConfig()),
			pipeline.WithExtractorOptions(extractorOpts...),
			pipeline.WithLogger(logging.WithComponent("pipeline")),
		)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", name, err)
		}
		registry.Register(name, model)
	}
	return registry, nil
}

// authMiddleware returns nil when authentication is off.
func authMiddleware(cfg *config.Config) (func(http.Handler) http.Handler, error) {
	if cfg.Security.AuthMode != auth.ModeJWT {
		logging.Warn().Msg("Authentication is DISABLED (AUTH_MODE=none); every endpoint is public")
		return nil, nil
	}
	tokens, err := auth.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.TokenTTL)
	if err != nil {
		return nil, err
	}
	authz, err := auth.NewAuthorizer()
	if err != nil {
		return nil, err
	}
	mw, err := auth.NewMiddleware(auth.ModeJWT, tokens, authz, cfg.Server.APIPrefix, logging.WithComponent("auth"))
	if err != nil {
		return nil, err
	}
	logging.Info().Str("issuer", cfg.Security.JWTIssuer).Msg("JWT authentication enabled")
	return mw.Handler, nil
}

// chiMiddlewareConfig maps the security settings onto CORS and rate
// limiting. The scraper service is always an allowed origin.
func chiMiddlewareConfig(cfg *config.Config) *api.ChiMiddlewareConfig {
	mw := api.DefaultChiMiddlewareConfig()
	origins := slices.Clone(cfg.Security.CORSOrigins)
	if u := cfg.Server.ScraperServiceURL; u != "" && !slices.Contains(origins, u) {
		origins = append(origins, u)
	}
	mw.CORSAllowedOrigins = origins
	mw.RateLimitRequests = cfg.Security.RateLimitRequests
	mw.RateLimitWindow = cfg.Security.RateLimitPeriod
	mw.RateLimitDisabled = cfg.Security.RateLimitDisabled
	if mw.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}
	return mw
}

// eventStream is the websocket hub and the bridge feeding it.
type eventStream struct {
	hub    *websocket.Hub
	bridge *websocket.Bridge
}

// newEventStream returns nil when streaming is off or the backend cannot
// deliver events in process.
func newEventStream(cfg *config.Config, sub websocket.Subscriber, origins []string) *eventStream {
	if !cfg.Events.StreamEnabled {
		return nil
	}
	if cfg.Events.Backend != events.BackendGoChannel {
		logging.Warn().Str("backend", cfg.Events.Backend).
			Msg("Event stream needs the gochannel backend; subscribe to the broker instead")
		return nil
	}
	hub := websocket.NewHub(websocket.HubConfig{AllowedOrigins: origins}, logging.WithComponent("stream"))
	return &eventStream{
		hub:    hub,
		bridge: websocket.NewBridge(sub, hub, logging.WithComponent("stream")),
	}
}

// watchConfig reloads the log level when the config file changes. Other
// settings need a restart.
func watchConfig(path string) {
	if path == "" {
		return
	}
	err := config.WatchConfigFile(path, func() {
		cfg, err := config.LoadFile(path)
		if err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Ignoring invalid config change")
			return
		}
		level := cfg.LoggingConfig().Level
		logging.SetLevelString(level)
		logging.Info().Str("level", level).Msg("Config file changed, log level reloaded")
	})
	if err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("Config file watch unavailable")
	}
}
