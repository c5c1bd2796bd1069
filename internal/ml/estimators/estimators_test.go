// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package estimators

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
)

// blobs returns n rows per class around well separated centers.
func blobs(n int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	centers := [][]float64{{0, 0, 0}, {6, 6, 6}}
	var x [][]float64
	var y []int
	for c, center := range centers {
		for i := 0; i < n; i++ {
			row := make([]float64, len(center))
			for j := range row {
				row[j] = center[j] + rng.NormFloat64()
			}
			x = append(x, row)
			y = append(y, c*10+1)
		}
	}
	return x, y
}

func TestStandardScaler(t *testing.T) {
	t.Parallel()

	var s StandardScaler
	x := [][]float64{{1, 5}, {3, 5}, {5, 5}}
	if err := s.Fit(x); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if s.Mean[0] != 3 || s.Mean[1] != 5 {
		t.Errorf("Mean = %v, want [3 5]", s.Mean)
	}
	if s.Scale[1] != 1 {
		t.Errorf("Scale of constant column = %v, want 1", s.Scale[1])
	}

	out, err := s.Transform(x)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	want := math.Sqrt(1.5)
	if math.Abs(out[0][0]+want) > 1e-12 || out[1][0] != 0 || math.Abs(out[2][0]-want) > 1e-12 {
		t.Errorf("column 0 = %v %v %v, want -%v 0 %v", out[0][0], out[1][0], out[2][0], want, want)
	}
	if out[0][1] != 0 {
		t.Errorf("constant column = %v, want 0", out[0][1])
	}
	if x[0][0] != 1 {
		t.Error("Transform modified its input")
	}
}

func TestStandardScalerErrors(t *testing.T) {
	t.Parallel()

	var s StandardScaler
	if _, err := s.Transform([][]float64{{1}}); !errors.Is(err, ErrNotFitted) {
		t.Errorf("Transform before Fit = %v, want ErrNotFitted", err)
	}
	if err := s.Fit(nil); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Fit(nil) = %v, want ErrEmptyInput", err)
	}
	var de *DimensionError
	if err := s.Fit([][]float64{{1, 2}, {3}}); !errors.As(err, &de) {
		t.Errorf("Fit(ragged) = %v, want *DimensionError", err)
	}
	_ = s.Fit([][]float64{{1, 2}})
	if _, err := s.Transform([][]float64{{1}}); !errors.As(err, &de) {
		t.Errorf("Transform(narrow) = %v, want *DimensionError", err)
	}
}

func TestRandomForestSeparatesBlobs(t *testing.T) {
	t.Parallel()

	x, y := blobs(60, 1)
	f := NewRandomForestClassifier(ForestConfig{NTrees: 25})
	if err := f.Fit(context.Background(), x, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if got := f.Classes(); len(got) != 2 || got[0] != 1 || got[1] != 11 {
		t.Fatalf("Classes() = %v, want [1 11]", got)
	}

	proba, err := f.PredictProba([][]float64{{0, 0, 0}, {6, 6, 6}})
	if err != nil {
		t.Fatalf("PredictProba: %v", err)
	}
	for i, p := range proba {
		if math.Abs(p[0]+p[1]-1) > 1e-9 {
			t.Errorf("row %d probabilities sum to %v, want 1", i, p[0]+p[1])
		}
	}
	if proba[0][0] < 0.9 {
		t.Errorf("P(class 1 | center 0) = %v, want >= 0.9", proba[0][0])
	}
	if proba[1][1] < 0.9 {
		t.Errorf("P(class 11 | center 1) = %v, want >= 0.9", proba[1][1])
	}
}

func TestRandomForestDeterministic(t *testing.T) {
	t.Parallel()

	x, y := blobs(30, 2)
	probe := [][]float64{{3, 3, 3}, {2.5, 3.5, 3}}

	var first [][]float64
	for _, workers := range []int{1, 4} {
		f := NewRandomForestClassifier(ForestConfig{NTrees: 10, Workers: workers})
		if err := f.Fit(context.Background(), x, y); err != nil {
			t.Fatalf("Fit: %v", err)
		}
		got, err := f.PredictProba(probe)
		if err != nil {
			t.Fatalf("PredictProba: %v", err)
		}
		if first == nil {
			first = got
			continue
		}
		for i := range got {
			for j := range got[i] {
				if got[i][j] != first[i][j] {
					t.Fatalf("proba[%d][%d] = %v with %d workers, want %v", i, j, got[i][j], workers, first[i][j])
				}
			}
		}
	}
}

func TestRandomForestSingleClass(t *testing.T) {
	t.Parallel()

	f := NewRandomForestClassifier(ForestConfig{NTrees: 3})
	if err := f.Fit(context.Background(), [][]float64{{1}, {2}, {3}}, []int{7, 7, 7}); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	p, err := f.PredictProba([][]float64{{100}})
	if err != nil {
		t.Fatalf("PredictProba: %v", err)
	}
	if len(p[0]) != 1 || p[0][0] != 1 {
		t.Errorf("proba = %v, want [1]", p[0])
	}
}

func TestRandomForestErrors(t *testing.T) {
	t.Parallel()

	f := NewRandomForestClassifier(DefaultForestConfig())
	if _, err := f.PredictProba([][]float64{{1}}); !errors.Is(err, ErrNotFitted) {
		t.Errorf("PredictProba before Fit = %v, want ErrNotFitted", err)
	}
	if err := f.Fit(context.Background(), [][]float64{{1}}, []int{1, 2}); err == nil {
		t.Error("Fit with mismatched labels should fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	x, y := blobs(5, 3)
	if err := f.Fit(ctx, x, y); !errors.Is(err, context.Canceled) {
		t.Errorf("Fit with canceled context = %v, want context.Canceled", err)
	}
}

func TestIsolationForestFlagsOutlier(t *testing.T) {
	t.Parallel()

	x, _ := blobs(150, 4)
	inliers := x[:150]
	f := NewIsolationForest(IsolationConfig{NTrees: 100})
	if err := f.Fit(context.Background(), inliers); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	scores, err := f.Score([][]float64{{0, 0, 0}, {10, 10, 10}})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	for i, s := range scores {
		if s < 0 || s > 1 {
			t.Errorf("score[%d] = %v, want within [0,1]", i, s)
		}
	}
	if scores[1] >= scores[0] {
		t.Errorf("outlier score %v should be below center score %v", scores[1], scores[0])
	}
	if scores[1] >= 0.85 {
		t.Errorf("outlier score = %v, want < 0.85", scores[1])
	}
	if f.Offset() <= 0 {
		t.Errorf("Offset() = %v, want > 0", f.Offset())
	}
}

func TestIsolationOffsetTracksContamination(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	x := make([][]float64, 400)
	for i := range x {
		x[i] = []float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
	}
	f := NewIsolationForest(IsolationConfig{Contamination: 0.1})
	if err := f.Fit(context.Background(), x); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	ratios, err := f.ratios(x)
	if err != nil {
		t.Fatalf("ratios: %v", err)
	}
	below := 0
	for _, r := range ratios {
		if r < f.Offset() {
			below++
		}
	}
	// the offset sits at the 10% quantile even where clamped scores saturate
	if frac := float64(below) / float64(len(x)); frac < 0.05 || frac > 0.15 {
		t.Errorf("%.3f of training rows below Offset() %v, want about 0.1", frac, f.Offset())
	}

	scores, err := f.Score(x)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	for i := range scores {
		if want := min(max(ratios[i], 0), 1); scores[i] != want {
			t.Fatalf("score[%d] = %v, want clamped ratio %v", i, scores[i], want)
		}
	}
}

func TestIsolationForestConstantData(t *testing.T) {
	t.Parallel()

	f := NewIsolationForest(IsolationConfig{NTrees: 5})
	x := [][]float64{{1, 1}, {1, 1}, {1, 1}, {1, 1}}
	if err := f.Fit(context.Background(), x); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	scores, err := f.Score(x)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	for i, s := range scores {
		if math.Abs(s-1) > 1e-12 {
			t.Errorf("score[%d] = %v, want 1 for indistinguishable rows", i, s)
		}
	}
}

func TestAveragePathLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int
		want float64
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{256, 2*(math.Log(255)+eulerGamma) - 2*255.0/256.0},
	}
	for _, tt := range tests {
		if got := averagePathLength(tt.n); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("averagePathLength(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestQuantile(t *testing.T) {
	t.Parallel()

	v := []float64{4, 1, 3, 2, 5}
	if got := quantile(v, 0); got != 1 {
		t.Errorf("quantile(0) = %v, want 1", got)
	}
	if got := quantile(v, 0.5); math.Abs(got-2.5) > 1e-12 {
		t.Errorf("quantile(0.5) = %v, want 2.5", got)
	}
	if got := quantile(v, 0.3); math.Abs(got-1.5) > 1e-12 {
		t.Errorf("quantile(0.3) = %v, want 1.5", got)
	}
	if got := quantile(v, 1); got != 5 {
		t.Errorf("quantile(1) = %v, want 5", got)
	}
	if got := quantile(nil, 0.5); got != 0 {
		t.Errorf("quantile(nil) = %v, want 0", got)
	}
	if v[0] != 4 {
		t.Error("quantile sorted its input")
	}
}
