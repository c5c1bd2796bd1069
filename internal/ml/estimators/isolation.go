// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package estimators

import (
	"context"
	"math"
	"math/rand"
	"slices"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

const eulerGamma = 0.5772156649015329

// IsolationConfig holds isolation forest hyperparameters.
type IsolationConfig struct {
	NTrees int

	// MaxSamples is the per-tree subsample size (psi), capped at the row count.
	MaxSamples int

	// Contamination is the expected outlier fraction. It only sets the
	// reported Offset; it never changes scores.
	Contamination float64

	Seed    int64
	Workers int
}

// DefaultIsolationConfig returns the defaults used by the pipeline.
func DefaultIsolationConfig() IsolationConfig {
	return IsolationConfig{
		NTrees:        100,
		MaxSamples:    256,
		Contamination: 0.1,
		Seed:          42,
	}
}

// IsolationForest scores rows by how hard they are to isolate with random
// axis-aligned cuts. Score returns a normality in [0,1]: the mean path
// length divided by the expected path length c(psi), clamped. Points that
// isolate quickly score near 0. Ordinary rows often reach E[h] >= c(psi)
// and saturate at 1.
type IsolationForest struct {
	config IsolationConfig
	width  int
	psi    int
	trees  []isoTree
	offset float64
}

// NewIsolationForest creates an unfitted forest.
func NewIsolationForest(cfg IsolationConfig) *IsolationForest {
	if cfg.NTrees <= 0 {
		cfg.NTrees = 100
	}
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = 256
	}
	if cfg.Contamination <= 0 || cfg.Contamination > 0.5 {
		cfg.Contamination = 0.1
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	return &IsolationForest{config: cfg}
}

type isoNode struct {
	feature   int
	threshold float64
	left      int
	right     int
	size      int
}

type isoTree struct {
	nodes []isoNode
}

func (t *isoTree) pathLength(row []float64) float64 {
	n := &t.nodes[0]
	depth := 0
	for n.feature >= 0 {
		if row[n.feature] < n.threshold {
			n = &t.nodes[n.left]
		} else {
			n = &t.nodes[n.right]
		}
		depth++
	}
	return float64(depth) + averagePathLength(n.size)
}

// averagePathLength is c(n), the mean unsuccessful search length in a
// binary search tree of n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}

// Fit grows the forest on x.
func (f *IsolationForest) Fit(ctx context.Context, x [][]float64) error {
	width, err := checkMatrix(x)
	if err != nil {
		return err
	}
	psi := min(f.config.MaxSamples, len(x))
	limit := int(math.Ceil(math.Log2(float64(psi))))

	//nolint:gosec // G404: math/rand is acceptable for ML sampling (not security)
	rng := rand.New(rand.NewSource(f.config.Seed))
	seeds := make([]int64, f.config.NTrees)
	for i := range seeds {
		seeds[i] = rng.Int63()
	}

	trees := make([]isoTree, f.config.NTrees)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(len(trees), f.config.Workers))
	for i := range trees {
		if ContextCancelled(gctx) {
			break
		}
		g.Go(func() error {
			if ContextCancelled(gctx) {
				return gctx.Err()
			}
			grower := &isoGrower{
				x:     x,
				width: width,
				limit: limit,
				//nolint:gosec // G404: see above
				rng: rand.New(rand.NewSource(seeds[i])),
			}
			grower.grow(grower.rng.Perm(len(x))[:psi], 0)
			trees[i] = isoTree{nodes: grower.nodes}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.width, f.psi, f.trees = width, psi, trees

	ratios, err := f.ratios(x)
	if err != nil {
		return err
	}
	f.offset = quantile(ratios, f.config.Contamination)
	return nil
}

// Score returns the normality of each row, higher meaning more normal.
func (f *IsolationForest) Score(x [][]float64) ([]float64, error) {
	out, err := f.ratios(x)
	if err != nil {
		return nil, err
	}
	for i, r := range out {
		out[i] = min(max(r, 0), 1)
	}
	return out, nil
}

// ratios returns E[h]/c(psi) per row, unclamped.
func (f *IsolationForest) ratios(x [][]float64) ([]float64, error) {
	if f.trees == nil {
		return nil, ErrNotFitted
	}
	if err := checkWidth(x, f.width); err != nil {
		return nil, err
	}
	norm := averagePathLength(f.psi)
	out := make([]float64, len(x))
	for i, row := range x {
		if norm == 0 {
			out[i] = 1
			continue
		}
		var total float64
		for t := range f.trees {
			total += f.trees[t].pathLength(row)
		}
		out[i] = total / float64(len(f.trees)) / norm
	}
	return out, nil
}

// Offset is the contamination quantile of the training rows on the
// unclamped E[h]/c(psi) scale, so it stays informative when most scores
// saturate. Values above 1 mean fewer than Contamination of the training
// rows score below 1.
func (f *IsolationForest) Offset() float64 { return f.offset }

// Params describes the hyperparameters for model metadata.
func (f *IsolationForest) Params() map[string]any {
	return map[string]any{
		"n_estimators":  f.config.NTrees,
		"max_samples":   f.config.MaxSamples,
		"contamination": f.config.Contamination,
		"random_state":  f.config.Seed,
		"offset":        f.offset,
	}
}

type isoGrower struct {
	x     [][]float64
	width int
	limit int
	rng   *rand.Rand
	nodes []isoNode
}

func (g *isoGrower) grow(idx []int, depth int) int {
	node := len(g.nodes)
	g.nodes = append(g.nodes, isoNode{feature: -1, size: len(idx)})
	if depth >= g.limit || len(idx) <= 1 {
		return node
	}

	feature, lo, hi := -1, 0.0, 0.0
	for _, f := range g.rng.Perm(g.width) {
		lo, hi = g.x[idx[0]][f], g.x[idx[0]][f]
		for _, i := range idx[1:] {
			v := g.x[i][f]
			lo, hi = min(lo, v), max(hi, v)
		}
		if hi > lo {
			feature = f
			break
		}
	}
	if feature < 0 {
		return node
	}

	threshold := lo + g.rng.Float64()*(hi-lo)
	var left, right []int
	for _, i := range idx {
		if g.x[i][feature] < threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := g.grow(left, depth+1)
	r := g.grow(right, depth+1)
	g.nodes[node] = isoNode{feature: feature, threshold: threshold, left: l, right: r, size: len(idx)}
	return node
}

// quantile returns the q-quantile of v, interpolating the empirical CDF.
func quantile(v []float64, q float64) float64 {
	if len(v) == 0 {
		return 0
	}
	s := slices.Clone(v)
	slices.Sort(s)
	return stat.Quantile(q, stat.LinInterp, s, nil)
}
