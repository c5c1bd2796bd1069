// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordPrediction(t *testing.T) {
	tests := []struct {
		name          string
		model         string
		rows          int
		anomalies     int
		err           error
		wantStatus    string
		wantRows      float64
		wantAnomalies float64
	}{
		{"success with anomalies", "pred-a", 10, 2, nil, "success", 10, 2},
		{"success without anomalies", "pred-b", 4, 0, nil, "success", 4, 0},
		{"failure records nothing else", "pred-c", 4, 1, errors.New("boom"), "error", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordPrediction(tt.model, tt.rows, tt.anomalies, 5*time.Millisecond, tt.err)

			if got := testutil.ToFloat64(PredictionsTotal.WithLabelValues(tt.model, tt.wantStatus)); got != 1 {
				t.Errorf("predictions_total{%s,%s} = %v, want 1", tt.model, tt.wantStatus, got)
			}
			if got := testutil.ToFloat64(PredictionRows.WithLabelValues(tt.model)); got != tt.wantRows {
				t.Errorf("prediction_rows_total = %v, want %v", got, tt.wantRows)
			}
			if got := testutil.ToFloat64(AnomaliesFlagged.WithLabelValues(tt.model)); got != tt.wantAnomalies {
				t.Errorf("anomalies_flagged_total = %v, want %v", got, tt.wantAnomalies)
			}
		})
	}
}

func TestRecordTrainingSetsGauge(t *testing.T) {
	SetModelTrained("train-a", false)
	RecordTraining("train-a", time.Second, errors.New("bad data"))
	if got := testutil.ToFloat64(ModelTrained.WithLabelValues("train-a")); got != 0 {
		t.Errorf("model_trained after failure = %v, want 0", got)
	}

	RecordTraining("train-a", time.Second, nil)
	if got := testutil.ToFloat64(ModelTrained.WithLabelValues("train-a")); got != 1 {
		t.Errorf("model_trained after success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(TrainingRunsTotal.WithLabelValues("train-a", "error")); got != 1 {
		t.Errorf("training_runs_total{error} = %v, want 1", got)
	}
}

func TestRecordImageFailure(t *testing.T) {
	before := testutil.ToFloat64(ImagesProcessed.WithLabelValues("failed"))
	RecordImageFailure("decode")
	if got := testutil.ToFloat64(ImagesProcessed.WithLabelValues("failed")); got != before+1 {
		t.Errorf("images_processed_total{failed} = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(ImageFailures.WithLabelValues("decode")); got < 1 {
		t.Errorf("image_failures_total{decode} = %v, want >= 1", got)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	start := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	TrackActiveRequest(true)
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != start+1 {
		t.Errorf("api_active_requests = %v, want %v", got, start+1)
	}
	TrackActiveRequest(false)
}

func TestRecordAPIRequest(t *testing.T) {
	RecordAPIRequest("POST", "/api/v1/predict", 200, 20*time.Millisecond)
	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("POST", "/api/v1/predict", "200")); got < 1 {
		t.Errorf("api_requests_total = %v, want >= 1", got)
	}
}

func TestRecordCircuitBreakerTransition(t *testing.T) {
	RecordCircuitBreakerTransition("image-fetch-test", "closed", "open", 2)
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("image-fetch-test")); got != 2 {
		t.Errorf("circuit_breaker_state = %v, want 2", got)
	}
	if got := testutil.ToFloat64(CircuitBreakerTransitions.WithLabelValues("image-fetch-test", "closed", "open")); got != 1 {
		t.Errorf("transitions = %v, want 1", got)
	}
}

func TestStreamMetrics(t *testing.T) {
	SetStreamClients(3)
	if got := testutil.ToFloat64(StreamClients); got != 3 {
		t.Errorf("stream_clients = %v, want 3", got)
	}
	before := testutil.ToFloat64(StreamMessages.WithLabelValues("dropped"))
	RecordStreamMessage("dropped")
	if got := testutil.ToFloat64(StreamMessages.WithLabelValues("dropped")); got != before+1 {
		t.Errorf("stream_messages_total{dropped} = %v, want %v", got, before+1)
	}
}
