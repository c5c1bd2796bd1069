// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

// Package metrics holds the Prometheus collectors for Fusionserve. Every
// collector is registered on the default registry through promauto and
// exposed at /metrics; callers use the Record* helpers rather than touching
// the vectors directly.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fusionserve"

var (
	// Model serving
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Prediction calls by model and outcome",
		},
		[]string{"model", "status"}, // status: "success", "error"
	)

	PredictionRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_rows_total",
			Help:      "Rows scored by model",
		},
		[]string{"model"},
	)

	PredictionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Prediction latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"model"},
	)

	AnomaliesFlagged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_flagged_total",
			Help:      "Rows flagged anomalous by model",
		},
		[]string{"model"},
	)

	// Training
	TrainingRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_runs_total",
			Help:      "Training runs by model and outcome",
		},
		[]string{"model", "status"},
	)

	TrainingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "training_duration_seconds",
			Help:      "Training duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 1800},
		},
		[]string{"model"},
	)

	ModelTrained = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_trained",
			Help:      "1 when the model has been trained, 0 otherwise",
		},
		[]string{"model"},
	)

	TrainingQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "training_queue_depth",
			Help:      "Training jobs waiting for the worker",
		},
	)

	TrainingJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_jobs_total",
			Help:      "Training job submissions by result",
		},
		[]string{"result"}, // "queued", "deduplicated", "rejected"
	)

	// Feature extraction
	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Feature extraction time per modality",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"modality"}, // "text", "vision"
	)

	ImagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_processed_total",
			Help:      "Images by outcome",
		},
		[]string{"result"}, // "encoded", "cached", "failed"
	)

	ImageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_failures_total",
			Help:      "Images skipped during extraction by failure stage",
		},
		[]string{"stage"}, // "load", "decode", "encode"
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_requests_total",
			Help:      "Requests through a circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state_transitions_total",
			Help:      "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Events
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Lifecycle events published by topic and outcome",
		},
		[]string{"topic", "status"},
	)

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "API request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "api_active_requests",
			Help:      "Current number of in-flight API requests",
		},
	)

	AuthDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_decisions_total",
			Help:      "Authorization decisions by result",
		},
		[]string{"result"}, // "allowed", "denied", "unauthenticated"
	)

	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Current number of event stream websocket clients",
		},
	)

	StreamMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_messages_total",
			Help:      "Event stream messages by result",
		},
		[]string{"result"}, // "sent", "dropped"
	)
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordPrediction records one Predict call.
func RecordPrediction(model string, rows, anomalies int, duration time.Duration, err error) {
	PredictionsTotal.WithLabelValues(model, status(err)).Inc()
	PredictionDuration.WithLabelValues(model).Observe(duration.Seconds())
	if err != nil {
		return
	}
	PredictionRows.WithLabelValues(model).Add(float64(rows))
	if anomalies > 0 {
		AnomaliesFlagged.WithLabelValues(model).Add(float64(anomalies))
	}
}

// RecordTraining records one Train call and updates the trained gauge on success.
func RecordTraining(model string, duration time.Duration, err error) {
	TrainingRunsTotal.WithLabelValues(model, status(err)).Inc()
	TrainingDuration.WithLabelValues(model).Observe(duration.Seconds())
	if err == nil {
		ModelTrained.WithLabelValues(model).Set(1)
	}
}

// SetModelTrained initializes the trained gauge for a registered model.
func SetModelTrained(model string, trained bool) {
	v := 0.0
	if trained {
		v = 1
	}
	ModelTrained.WithLabelValues(model).Set(v)
}

// RecordTrainingJob records a submission result.
func RecordTrainingJob(result string) {
	TrainingJobsTotal.WithLabelValues(result).Inc()
}

// SetTrainingQueueDepth updates the queue gauge.
func SetTrainingQueueDepth(n int) {
	TrainingQueueDepth.Set(float64(n))
}

// RecordExtraction records time spent in one modality branch.
func RecordExtraction(modality string, duration time.Duration) {
	ExtractionDuration.WithLabelValues(modality).Observe(duration.Seconds())
}

// RecordImage records an image outcome: "encoded", "cached" or "failed".
func RecordImage(result string) {
	ImagesProcessed.WithLabelValues(result).Inc()
}

// RecordImageFailure records a skipped image and the stage that failed.
func RecordImageFailure(stage string) {
	ImagesProcessed.WithLabelValues("failed").Inc()
	ImageFailures.WithLabelValues(stage).Inc()
}

// RecordEventPublish records a publish attempt.
func RecordEventPublish(topic string, err error) {
	EventsPublished.WithLabelValues(topic, status(err)).Inc()
}

// RecordCircuitBreakerRequest records a request result: "success", "failure" or "rejected".
func RecordCircuitBreakerRequest(name, result string) {
	CircuitBreakerRequests.WithLabelValues(name, result).Inc()
}

// RecordCircuitBreakerTransition updates state metrics on a transition.
func RecordCircuitBreakerTransition(name, from, to string, toValue float64) {
	CircuitBreakerState.WithLabelValues(name).Set(toValue)
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordAuthDecision records an authorization outcome.
func RecordAuthDecision(result string) {
	AuthDecisions.WithLabelValues(result).Inc()
}

// SetStreamClients updates the connected stream client gauge.
func SetStreamClients(n int) {
	StreamClients.Set(float64(n))
}

// RecordStreamMessage records a stream delivery: "sent" or "dropped".
func RecordStreamMessage(result string) {
	StreamMessages.WithLabelValues(result).Inc()
}
