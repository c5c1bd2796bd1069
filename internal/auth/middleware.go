// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/fusionserve/internal/logging"
	"github.com/tomtom215/fusionserve/internal/metrics"
	"github.com/tomtom215/fusionserve/internal/models"
)

// Auth modes.
const (
	ModeNone = "none"
	ModeJWT  = "jwt"
)

type contextKey struct{}

// ContextWithClaims attaches verified claims to ctx.
func ContextWithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// ClaimsFromContext returns the claims of an authenticated request.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(contextKey{}).(*Claims)
	return c, ok
}

// Middleware authenticates bearer tokens and authorizes the caller's role
// against the requested endpoint.
type Middleware struct {
	mode   string
	tokens *TokenManager
	authz  *Authorizer
	prefix string
	logger zerolog.Logger
}

// NewMiddleware builds the middleware. In ModeNone tokens and authz may be
// nil. prefix is stripped from request paths before authorization.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewMiddleware(mode string, tokens *TokenManager, authz *Authorizer, prefix string, logger zerolog.Logger) (*Middleware, error) {
	switch mode {
	case ModeNone:
	case ModeJWT:
		if tokens == nil || authz == nil {
			return nil, fmt.Errorf("auth mode %q needs a token manager and an authorizer", mode)
		}
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}
	return &Middleware{
		mode:   mode,
		tokens: tokens,
		authz:  authz,
		prefix: strings.TrimSuffix(prefix, "/"),
		logger: logger.With().Str("component", "auth").Logger(),
	}, nil
}

// Handler wraps next.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	if m.mode == ModeNone {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			metrics.RecordAuthDecision("unauthenticated")
			w.Header().Set("WWW-Authenticate", `Bearer realm="fusionserve"`)
			writeError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "missing bearer token")
			return
		}
		claims, err := m.tokens.Verify(token)
		if err != nil {
			metrics.RecordAuthDecision("unauthenticated")
			logging.Enrich(r.Context(), m.logger).Debug().Err(err).Msg("token rejected")
			w.Header().Set("WWW-Authenticate", `Bearer realm="fusionserve", error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "invalid token")
			return
		}

		path := strings.TrimPrefix(r.URL.Path, m.prefix)
		allowed, err := m.authz.Allowed(claims.Role, path, r.Method)
		if err != nil {
			logging.Enrich(r.Context(), m.logger).Error().Err(err).Msg("authorization check failed")
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "authorization check failed")
			return
		}
		if !allowed {
			metrics.RecordAuthDecision("denied")
			logging.Enrich(r.Context(), m.logger).Info().
				Str("subject", claims.Subject).
				Str("role", claims.Role).
				Str("path", path).
				Str("method", r.Method).
				Msg("request denied")
			writeError(w, http.StatusForbidden, "AUTHORIZATION_ERROR", "insufficient permissions")
			return
		}

		metrics.RecordAuthDecision("allowed")
		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.NewError(code, message, nil)) //nolint:errcheck // client went away
}
