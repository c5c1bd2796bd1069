// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/fusionserve/internal/features"
	"github.com/tomtom215/fusionserve/internal/logging"
	"github.com/tomtom215/fusionserve/internal/models"
)

// Predict handles POST /predict.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req models.PredictRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.CheckInput(); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidInput, err.Error(), nil)
		return
	}
	if n := max(len(req.Contents), len(req.Features)); n > h.maxBatch {
		respondError(w, r, http.StatusBadRequest, CodeBatchTooLarge,
			fmt.Sprintf("batch of %d rows exceeds the limit of %d", n, h.maxBatch), nil)
		return
	}

	name := req.Model()
	ctx := logging.ContextWithModel(r.Context(), name)
	model, err := h.registry.Lookup(name)
	if err != nil {
		respondDomainError(w, r, err, CodePredictionError)
		return
	}

	rows := req.Features
	switch {
	case req.Content != nil:
		rows, err = contentRows(ctx, model, name, []features.Content{*req.Content})
	case req.Contents != nil:
		rows, err = contentRows(ctx, model, name, req.Contents)
	}
	if err != nil {
		respondDomainError(w, r, err, CodePredictionError)
		return
	}

	pred, err := model.Predict(ctx, rows)
	if err != nil {
		respondDomainError(w, r, err, CodePredictionError)
		return
	}
	md := model.Metadata()
	if h.events != nil {
		h.events.AnomaliesDetected(ctx, name, pred, md.ConfidenceThreshold)
	}
	respondJSON(w, r, http.StatusOK, models.NewPredictResponse(name, md.Version, pred), started)
}

// ExtractFeatures handles POST /extract-features. The optional config is
// overlaid on the defaults and must be valid.
func (h *Handler) ExtractFeatures(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req models.ExtractRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cfg, err := req.FeatureConfig()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		respondError(w, r, http.StatusUnprocessableEntity, CodeExtractionError, err.Error(), nil)
		return
	}

	ext, err := h.extractorFor(cfg)
	if err != nil {
		respondDomainError(w, r, err, CodeExtractionError)
		return
	}
	bundle, err := ext.Extract(r.Context(), req.Content)
	if err != nil {
		respondDomainError(w, r, err, CodeExtractionError)
		return
	}
	respondJSON(w, r, http.StatusOK, models.ExtractResponse{Features: bundle, Layout: ext.Layout()}, started)
}
