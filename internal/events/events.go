// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

// Package events publishes model lifecycle events.
//
// Events are JSON payloads carried in watermill messages. The default
// backend is an in-process gochannel pub/sub, which keeps the server free of
// external brokers; building with -tags=nats adds a NATS backend. Every
// publish goes through a circuit breaker so a broken broker cannot slow
// down training or prediction.
//
// Topics:
//
//	model.trained           a training job succeeded
//	model.training_failed   a training job failed
//	prediction.anomaly      a prediction flagged at least one row
package events

import (
	"time"
)

// Topic names, before the configured prefix is applied.
const (
	TopicModelTrained      = "model.trained"
	TopicTrainingFailed    = "model.training_failed"
	TopicPredictionAnomaly = "prediction.anomaly"
)

// Topics returns every lifecycle topic.
func Topics() []string {
	return []string{TopicModelTrained, TopicTrainingFailed, TopicPredictionAnomaly}
}

// MetadataEventType is the watermill metadata key holding the topic name.
const MetadataEventType = "event_type"

// ModelTrained is published when a training job succeeds.
type ModelTrained struct {
	JobID      string    `json:"job_id"`
	Model      string    `json:"model"`
	Version    int       `json:"version"`
	Source     string    `json:"source"`
	Rows       int       `json:"rows"`
	Classes    []int     `json:"classes"`
	NFeatures  int       `json:"n_features"`
	DurationMS int64     `json:"duration_ms"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TrainingFailed is published when a training job fails.
type TrainingFailed struct {
	JobID      string    `json:"job_id"`
	Model      string    `json:"model"`
	Source     string    `json:"source"`
	Rows       int       `json:"rows"`
	Error      string    `json:"error"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PredictionAnomaly is published when a prediction flags rows.
type PredictionAnomaly struct {
	Model      string `json:"model"`
	RequestID  string `json:"request_id,omitempty"`
	Rows       int    `json:"rows"`
	Anomalies  int    `json:"anomalies"`
	RowIndices []int  `json:"row_indices"`

	// MinScore is the lowest normality among flagged rows.
	MinScore   float64   `json:"min_score"`
	Threshold  float64   `json:"threshold"`
	OccurredAt time.Time `json:"occurred_at"`
}
