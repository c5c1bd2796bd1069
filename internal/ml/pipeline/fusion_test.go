// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/tomtom215/fusionserve/internal/features"
	"github.com/tomtom215/fusionserve/internal/logging"
	"github.com/tomtom215/fusionserve/internal/ml"
	"github.com/tomtom215/fusionserve/internal/ml/estimators"
)

func testConfig() ml.Config {
	cfg := ml.DefaultConfig()
	cfg.MinSamples = 10
	cfg.Features.UseVision = false
	return cfg
}

func newTestModel(t *testing.T) *FusionModel {
	t.Helper()
	m, err := New("test", testConfig(),
		WithForestConfig(estimators.ForestConfig{NTrees: 20}),
		WithIsolationConfig(estimators.IsolationConfig{NTrees: 100}),
		WithLogger(logging.NewTestLogger(nil)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

// gaussian returns n two-dimensional rows around (cx, cy) with unit spread.
func gaussian(rng *rand.Rand, n int, cx, cy float64) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = []float64{cx + rng.NormFloat64(), cy + rng.NormFloat64()}
	}
	return rows
}

// twoClasses returns rows around two centers labelled a and b.
func twoClasses(seed int64, n int, a, b int, offset float64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	rows := append(gaussian(rng, n, offset, offset), gaussian(rng, n, offset+8, offset+8)...)
	labels := make([]int, 2*n)
	for i := range labels {
		if i < n {
			labels[i] = a
		} else {
			labels[i] = b
		}
	}
	return rows, labels
}

func TestUntrainedModel(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	rows := [][]float64{{1, 2}}

	_, err := m.Predict(context.Background(), rows)
	var pe *ml.PredictionError
	if !errors.Is(err, ml.ErrNotTrained) || !errors.As(err, &pe) {
		t.Errorf("Predict() = %v, want PredictionError wrapping ErrNotTrained", err)
	}
	if _, err := m.Validate(context.Background(), rows, []int{1}); !errors.Is(err, ml.ErrNotTrained) {
		t.Errorf("Validate() = %v, want ErrNotTrained", err)
	}

	md := m.Metadata()
	if md.IsTrained || md.Version != 0 || md.LastTrainedAt != nil {
		t.Errorf("untrained metadata = %+v", md)
	}
	if md.ModelType != ml.DefaultModelType {
		t.Errorf("ModelType = %q, want %q", md.ModelType, ml.DefaultModelType)
	}
	if len(md.PipelineSteps) != 2 || md.PipelineSteps[0] != (ml.PipelineStep{"scaler", "StandardScaler"}) ||
		md.PipelineSteps[1] != (ml.PipelineStep{"classifier", "RandomForestClassifier"}) {
		t.Errorf("PipelineSteps = %v", md.PipelineSteps)
	}
	if md.ClassifierParams["n_estimators"] != 20 {
		t.Errorf("classifier n_estimators = %v, want 20", md.ClassifierParams["n_estimators"])
	}
}

func TestTrainPredictShapes(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	rows, labels := twoClasses(1, 40, 0, 1, 0)
	if err := m.Train(context.Background(), rows, labels); err != nil {
		t.Fatalf("Train: %v", err)
	}

	for _, n := range []int{1, 5, 80} {
		p, err := m.Predict(context.Background(), rows[:n])
		if err != nil {
			t.Fatalf("Predict: %v", err)
		}
		if len(p.Predictions) != n || len(p.ConfidenceScores) != n || len(p.AnomalyScores) != n || len(p.IsAnomaly) != n {
			t.Errorf("Predict(%d rows) lengths = %d/%d/%d/%d", n,
				len(p.Predictions), len(p.ConfidenceScores), len(p.AnomalyScores), len(p.IsAnomaly))
		}
		for i := range p.AnomalyScores {
			if p.AnomalyScores[i] < 0 || p.AnomalyScores[i] > 1 {
				t.Errorf("anomaly score %v outside [0,1]", p.AnomalyScores[i])
			}
			if p.IsAnomaly[i] != (p.AnomalyScores[i] < m.Config().ConfidenceThreshold) {
				t.Errorf("row %d flag %v disagrees with score %v", i, p.IsAnomaly[i], p.AnomalyScores[i])
			}
		}
	}

	md := m.Metadata()
	if !md.IsTrained || md.Version != 1 || md.LastTrainedAt == nil || md.NFeatures != 2 {
		t.Errorf("trained metadata = %+v", md)
	}
	if len(md.Classes) != 2 || md.Classes[0] != 0 || md.Classes[1] != 1 {
		t.Errorf("Classes = %v, want [0 1]", md.Classes)
	}
	if _, ok := md.AnomalyDetectorParams["offset"]; !ok {
		t.Error("anomaly detector params missing offset")
	}
}

func TestRetrainChangesPredictions(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	probe := [][]float64{{0, 0}, {8, 8}, {50, 50}, {58, 58}}

	rows, labels := twoClasses(2, 40, 0, 1, 0)
	if err := m.Train(context.Background(), rows, labels); err != nil {
		t.Fatalf("Train: %v", err)
	}
	before, err := m.Predict(context.Background(), probe)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	rows, labels = twoClasses(3, 40, 7, 9, 50)
	if err := m.Train(context.Background(), rows, labels); err != nil {
		t.Fatalf("retrain: %v", err)
	}
	after, err := m.Predict(context.Background(), probe)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	for i := range probe {
		if before.Predictions[i] != 0 && before.Predictions[i] != 1 {
			t.Errorf("before[%d] = %d, want a label from the first dataset", i, before.Predictions[i])
		}
		if after.Predictions[i] != 7 && after.Predictions[i] != 9 {
			t.Errorf("after[%d] = %d, want a label from the second dataset", i, after.Predictions[i])
		}
	}
	if m.Metadata().Version != 2 {
		t.Errorf("Version = %d, want 2", m.Metadata().Version)
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	rows, labels := twoClasses(4, 30, 0, 1, 0)
	if err := m.Train(context.Background(), rows, labels); err != nil {
		t.Fatalf("Train: %v", err)
	}
	holdout, holdoutLabels := twoClasses(5, 10, 0, 1, 0)

	first, err := m.Validate(context.Background(), holdout, holdoutLabels)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := m.Validate(context.Background(), holdout, holdoutLabels)
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if *again != *first {
			t.Fatalf("Validate() = %+v, want %+v", *again, *first)
		}
	}
	if first.Accuracy < 0.9 {
		t.Errorf("Accuracy = %v, want >= 0.9 on separable data", first.Accuracy)
	}
	if first.MinConfidence > first.MeanConfidence {
		t.Errorf("MinConfidence %v > MeanConfidence %v", first.MinConfidence, first.MeanConfidence)
	}
	if first.Samples != 20 {
		t.Errorf("Samples = %d, want 20", first.Samples)
	}
	if m.Metadata().Version != 1 {
		t.Error("Validate changed the model version")
	}
}

func TestOutlierIsFlagged(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	rng := rand.New(rand.NewSource(6))
	rows := gaussian(rng, 200, 0, 0)
	labels := make([]int, len(rows))
	for i, r := range rows {
		if r[0] > 0 {
			labels[i] = 1
		}
	}
	if err := m.Train(context.Background(), rows, labels); err != nil {
		t.Fatalf("Train: %v", err)
	}

	p, err := m.Predict(context.Background(), [][]float64{{10, 10}})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if !p.IsAnomaly[0] {
		t.Errorf("10 sigma outlier not flagged (score %v)", p.AnomalyScores[0])
	}
	if len(p.Predictions) != 1 || p.ConfidenceScores[0] <= 0 {
		t.Error("flagged row should still be classified")
	}
}

func TestInvalidInput(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	rows, labels := twoClasses(7, 10, 0, 1, 0)

	tests := []struct {
		name string
		run  func() error
	}{
		{"label count mismatch", func() error { return m.Train(context.Background(), rows, labels[:5]) }},
		{"below min samples", func() error { return m.Train(context.Background(), rows[:5], labels[:5]) }},
		{"empty training set", func() error { return m.Train(context.Background(), nil, nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			var te *ml.TrainingError
			if !errors.As(err, &te) || !errors.Is(err, ml.ErrInvalidInput) {
				t.Errorf("error = %v, want TrainingError wrapping ErrInvalidInput", err)
			}
		})
	}

	if err := m.Train(context.Background(), rows, labels); err != nil {
		t.Fatalf("Train: %v", err)
	}
	if _, err := m.Predict(context.Background(), [][]float64{{1, 2, 3}}); !errors.Is(err, ml.ErrInvalidInput) {
		t.Errorf("Predict(wrong width) = %v, want ErrInvalidInput", err)
	}
	if _, err := m.Predict(context.Background(), nil); !errors.Is(err, ml.ErrInvalidInput) {
		t.Errorf("Predict(no rows) = %v, want ErrInvalidInput", err)
	}
	if _, err := m.Validate(context.Background(), rows, labels[:3]); !errors.Is(err, ml.ErrInvalidInput) {
		t.Errorf("Validate(mismatch) = %v, want ErrInvalidInput", err)
	}
}

func TestFailedTrainKeepsState(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	rows, labels := twoClasses(8, 20, 3, 4, 0)
	if err := m.Train(context.Background(), rows, labels); err != nil {
		t.Fatalf("Train: %v", err)
	}
	before, _ := m.Predict(context.Background(), rows[:4])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	other, otherLabels := twoClasses(9, 20, 5, 6, 30)
	err := m.Train(ctx, other, otherLabels)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Train(canceled) = %v, want context.Canceled", err)
	}

	after, err := m.Predict(context.Background(), rows[:4])
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	for i := range after.Predictions {
		if after.Predictions[i] != before.Predictions[i] {
			t.Fatalf("prediction %d changed after failed training", i)
		}
	}
	if m.Metadata().Version != 1 {
		t.Errorf("Version = %d, want 1", m.Metadata().Version)
	}
}

func TestConcurrentTrainAndPredict(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	rows, labels := twoClasses(10, 20, 0, 1, 0)
	if err := m.Train(context.Background(), rows, labels); err != nil {
		t.Fatalf("Train: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := m.Train(context.Background(), rows, labels); err != nil {
				t.Errorf("Train: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			p, err := m.Predict(context.Background(), rows)
			if err != nil {
				t.Errorf("Predict: %v", err)
				return
			}
			if p.Len() != len(rows) {
				t.Errorf("Len() = %d, want %d", p.Len(), len(rows))
			}
		}()
	}
	wg.Wait()
	if v := m.Metadata().Version; v != 5 {
		t.Errorf("Version = %d, want 5", v)
	}
}

func TestContentRows(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	ctx := context.Background()

	b, err := m.Extract(ctx, features.TextContent("The market rallied in New York on Monday."))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	row, err := m.Row(b)
	if err != nil {
		t.Fatalf("Row: %v", err)
	}
	if want := m.Metadata().NFeatures; len(row) != want {
		t.Errorf("len(row) = %d, want %d", len(row), want)
	}

	empty, err := m.Row(features.Bundle{})
	if err != nil {
		t.Fatalf("Row(empty): %v", err)
	}
	if len(empty) != len(row) {
		t.Errorf("empty bundle row width = %d, want %d", len(empty), len(row))
	}

	if _, err := m.Row(features.Bundle{features.GroupTextStats: {1}}); !errors.Is(err, ml.ErrInvalidInput) {
		t.Errorf("Row(bad width) = %v, want ErrInvalidInput", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ConfidenceThreshold = 2
	if _, err := New("bad", cfg); err == nil {
		t.Error("New with threshold 2 should fail")
	}
}
