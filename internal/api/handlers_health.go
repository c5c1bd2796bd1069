// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/fusionserve/internal/ml"
	"github.com/tomtom215/fusionserve/internal/models"
)

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, models.HealthResponse{Status: "healthy"}, time.Now())
}

// Info handles GET /info.
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	resp := models.InfoResponse{
		Name:            h.info.Name,
		Version:         h.info.Version,
		AvailableModels: h.registry.Names(),
		MLComponents:    h.components(),
		ModelPath:       h.info.ModelPath,
	}
	if h.info.ScraperServiceURL != "" {
		resp.Integrations = map[string]string{"scraper_service": h.info.ScraperServiceURL}
	}
	respondJSON(w, r, http.StatusOK, resp, started)
}

// components describes the default model's pipeline, or the default
// extractor when no default model is registered.
func (h *Handler) components() map[string]string {
	fc := h.extractor.Config()
	out := map[string]string{
		"classification":    "random_forest",
		"anomaly_detection": "isolation_forest",
	}
	if md, ok := h.registry.MetadataFor(ml.DefaultModelName); ok {
		fc = md.FeatureConfig
		for _, step := range md.PipelineSteps {
			if step[0] == "classifier" {
				out["classification"] = step[1]
			}
		}
	}
	out["nlp"] = modality(fc.UseNLP, fc.TextModel)
	out["vision"] = modality(fc.UseVision, fc.VisionModel)
	return out
}

func modality(enabled bool, model string) string {
	if !enabled {
		return "disabled"
	}
	return model
}
