// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tomtom215/fusionserve/internal/middleware"
)

// RouterConfig configures the middleware around the handlers.
type RouterConfig struct {
	// APIPrefix mounts the model endpoints, "/api/v1" by default.
	APIPrefix    string
	MaxBodyBytes int64
	Middleware   *ChiMiddlewareConfig

	// Authenticate guards the prefixed routes; nil leaves them open.
	Authenticate func(http.Handler) http.Handler

	// EventStream serves GET {prefix}/events/ws when set.
	EventStream http.Handler

	Logger zerolog.Logger
}

// Router wires the Handler into a chi router.
type Router struct {
	handler       *Handler
	config        RouterConfig
	chiMiddleware *ChiMiddleware
}

// NewRouter returns a router for h.
//
//nolint:gocritic // RouterConfig is built once at startup
func NewRouter(h *Handler, config RouterConfig) *Router {
	if config.APIPrefix == "" {
		config.APIPrefix = "/api/v1"
	}
	config.APIPrefix = "/" + strings.Trim(config.APIPrefix, "/")
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 8 << 20
	}
	return &Router{
		handler:       h,
		config:        config,
		chiMiddleware: NewChiMiddleware(config.Middleware),
	}
}

// SetupChi builds the route tree.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.AccessLog(router.config.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "no route for "+r.Method+" "+r.URL.Path, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method "+r.Method+" not allowed", nil)
	})

	h := router.handler
	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route(router.config.APIPrefix, func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(middleware.Metrics)
		r.Use(middleware.BodyLimit(router.config.MaxBodyBytes))
		r.Use(chimiddleware.Compress(5, "application/json"))
		if router.config.Authenticate != nil {
			r.Use(router.config.Authenticate)
		}

		r.Get("/info", h.Info)
		r.Post("/predict", h.Predict)
		r.Post("/extract-features", h.ExtractFeatures)

		r.Route("/train", func(r chi.Router) {
			r.Post("/", h.Train)
			r.Get("/jobs", h.ListJobs)
			r.Get("/jobs/{id}", h.GetJob)
		})

		r.Route("/models", func(r chi.Router) {
			r.Get("/", h.ListModels)
			r.Get("/{name}/metadata", h.ModelMetadata)
			r.Post("/{name}/validate", h.ValidateModel)
		})

		if router.config.EventStream != nil {
			r.Method(http.MethodGet, "/events/ws", router.config.EventStream)
		}
	})

	return r
}
