// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/fusionserve/internal/jobs"
	"github.com/tomtom215/fusionserve/internal/logging"
	"github.com/tomtom215/fusionserve/internal/models"
)

const (
	defaultJobLimit = 50
	maxJobLimit     = 500
)

// Train handles POST /train. Training runs in the background; the
// response carries the queued job.
func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req models.TrainRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.CheckInput(); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidInput, err.Error(), nil)
		return
	}

	name := req.Model()
	ctx := logging.ContextWithModel(r.Context(), name)
	model, err := h.registry.Lookup(name)
	if err != nil {
		respondDomainError(w, r, err, CodeTrainingError)
		return
	}

	rows, source := req.Features, jobs.SourceFeatures
	if req.Contents != nil {
		source = jobs.SourceContents
		if rows, err = contentRows(ctx, model, name, req.Contents); err != nil {
			respondDomainError(w, r, err, CodeTrainingError)
			return
		}
	}

	job, err := h.trainer.Submit(ctx, jobs.Request{
		ModelName: name,
		Rows:      rows,
		Labels:    req.Labels,
		Source:    source,
	})
	if err != nil {
		respondDomainError(w, r, err, CodeTrainingError)
		return
	}

	msg := "Training scheduled"
	if job.Deduplicated {
		msg = "Training already scheduled"
	}
	respondJSON(w, r, http.StatusAccepted, models.TrainResponse{Message: msg, Job: job}, started)
}

// ListJobs handles GET /train/jobs?limit=N.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	limit := defaultJobLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxJobLimit {
			respondError(w, r, http.StatusBadRequest, CodeInvalidInput, "limit must be an integer between 1 and 500", nil)
			return
		}
		limit = n
	}
	list, err := h.trainer.List(r.Context(), limit)
	if err != nil {
		respondDomainError(w, r, err, CodeInternal)
		return
	}
	if list == nil {
		list = []*jobs.Job{}
	}
	respondJSON(w, r, http.StatusOK, models.JobList{Jobs: list, Pending: h.trainer.Pending()}, started)
}

// GetJob handles GET /train/jobs/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	job, err := h.trainer.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, r, err, CodeInternal)
		return
	}
	respondJSON(w, r, http.StatusOK, job, started)
}
