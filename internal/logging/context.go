// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	modelKey     contextKey = "model"
	jobIDKey     contextKey = "job_id"
)

// GenerateRequestID returns a new random UUID string.
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithRequestID returns ctx carrying id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextWithNewRequestID returns ctx carrying a fresh request ID.
func ContextWithNewRequestID(ctx context.Context) context.Context {
	return ContextWithRequestID(ctx, GenerateRequestID())
}

// RequestIDFromContext returns the request ID or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithModel tags ctx with the model name being served or trained.
func ContextWithModel(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, modelKey, name)
}

// ModelFromContext returns the model name or "".
func ModelFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(modelKey).(string); ok {
		return name
	}
	return ""
}

// ContextWithJobID tags ctx with a training job ID.
func ContextWithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext returns the training job ID or "".
func JobIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(jobIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns the global logger enriched with request_id, model and job_id
// when ctx carries them.
//
//	logging.Ctx(ctx).Warn().Err(err).Msg("image skipped")
func Ctx(ctx context.Context) *zerolog.Logger {
	l := CtxWith(ctx).Logger()
	return &l
}

// CtxWith is like Ctx but returns the builder so callers can add fields.
func CtxWith(ctx context.Context) zerolog.Context {
	return withContextFields(ctx, With())
}

// Enrich attaches the context fields to a component logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func Enrich(ctx context.Context, l zerolog.Logger) *zerolog.Logger {
	out := withContextFields(ctx, l.With()).Logger()
	return &out
}

func withContextFields(ctx context.Context, zctx zerolog.Context) zerolog.Context {
	if id := RequestIDFromContext(ctx); id != "" {
		zctx = zctx.Str("request_id", id)
	}
	if name := ModelFromContext(ctx); name != "" {
		zctx = zctx.Str("model", name)
	}
	if id := JobIDFromContext(ctx); id != "" {
		zctx = zctx.Str("job_id", id)
	}
	return zctx
}
