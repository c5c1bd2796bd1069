// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package ml

import (
	"slices"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultModelName is the model requests use when they name none.
const DefaultModelName = "default"

// Registry maps names to models. Register replaces any model already
// registered under the same name.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Model
	logger zerolog.Logger
}

// NewRegistry creates an empty registry.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		models: make(map[string]Model),
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// Register adds or replaces the model stored under name.
func (r *Registry) Register(name string, m Model) {
	r.mu.Lock()
	_, replaced := r.models[name]
	r.models[name] = m
	r.mu.Unlock()

	r.logger.Info().
		Str("model", name).
		Str("model_type", m.Metadata().ModelType).
		Bool("replaced", replaced).
		Msg("registered model")
}

// Resolve returns the model stored under name.
func (r *Registry) Resolve(name string) (Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// Lookup returns the named model or an error wrapping ErrNotFound.
func (r *Registry) Lookup(name string) (Model, error) {
	m, ok := r.Resolve(name)
	if !ok {
		return nil, &notFoundError{name: name}
	}
	return m, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// MetadataFor returns the metadata of the named model.
func (r *Registry) MetadataFor(name string) (Metadata, bool) {
	m, ok := r.Resolve(name)
	if !ok {
		return Metadata{}, false
	}
	return m.Metadata(), true
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

type notFoundError struct {
	name string
}

func (e *notFoundError) Error() string { return "model " + e.name + " not found" }
func (e *notFoundError) Unwrap() error { return ErrNotFound }
