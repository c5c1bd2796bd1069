// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/fusionserve/internal/logging"
	"github.com/tomtom215/fusionserve/internal/models"
	"github.com/tomtom215/fusionserve/internal/validation"
)

// modelParam returns the {name} path parameter, writing a 400 when it is
// not a valid model name.
func modelParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "name")
	if !validation.ValidModelName(name) {
		respondError(w, r, http.StatusBadRequest, CodeInvalidInput, "invalid model name", nil)
		return "", false
	}
	return name, true
}

// ListModels handles GET /models.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	names := h.registry.Names()
	out := make([]models.ModelSummary, 0, len(names))
	for _, name := range names {
		if md, ok := h.registry.MetadataFor(name); ok {
			out = append(out, models.ModelSummary{Name: name, Metadata: md})
		}
	}
	respondJSON(w, r, http.StatusOK, out, started)
}

// ModelMetadata handles GET /models/{name}/metadata.
func (h *Handler) ModelMetadata(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	name, ok := modelParam(w, r)
	if !ok {
		return
	}
	md, ok := h.registry.MetadataFor(name)
	if !ok {
		respondError(w, r, http.StatusNotFound, CodeModelNotFound, "model "+name+" not found", nil)
		return
	}
	respondJSON(w, r, http.StatusOK, md, started)
}

// ValidateModel handles POST /models/{name}/validate. The model is not
// changed.
func (h *Handler) ValidateModel(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	name, ok := modelParam(w, r)
	if !ok {
		return
	}
	var req models.ValidateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	model, err := h.registry.Lookup(name)
	if err != nil {
		respondDomainError(w, r, err, CodeValidationFailed)
		return
	}
	vm, err := model.Validate(logging.ContextWithModel(r.Context(), name), req.Features, req.Labels)
	if err != nil {
		respondDomainError(w, r, err, CodeValidationFailed)
		return
	}
	respondJSON(w, r, http.StatusOK, vm, started)
}
