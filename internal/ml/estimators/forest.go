// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package estimators

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"math/rand"
	"slices"

	"golang.org/x/sync/errgroup"
)

// ForestConfig holds random forest hyperparameters.
type ForestConfig struct {
	// NTrees is the number of trees in the ensemble.
	NTrees int

	// MaxFeatures is the number of features tried per split; 0 means sqrt(width).
	MaxFeatures int

	// MaxDepth limits tree depth; 0 grows until leaves are pure.
	MaxDepth int

	// MinSamplesSplit is the smallest node that may be split.
	MinSamplesSplit int

	Seed int64

	// Workers bounds tree-growing goroutines; 0 uses GOMAXPROCS.
	Workers int
}

// DefaultForestConfig returns the defaults used by the pipeline.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		NTrees:          100,
		MinSamplesSplit: 2,
		Seed:            42,
	}
}

// RandomForestClassifier is a bagged ensemble of gini decision trees.
// Class probabilities are the mean of the leaf class distributions.
type RandomForestClassifier struct {
	config  ForestConfig
	classes []int
	width   int
	trees   []classTree
}

// NewRandomForestClassifier creates an unfitted classifier.
func NewRandomForestClassifier(cfg ForestConfig) *RandomForestClassifier {
	if cfg.NTrees <= 0 {
		cfg.NTrees = 100
	}
	if cfg.MinSamplesSplit < 2 {
		cfg.MinSamplesSplit = 2
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	return &RandomForestClassifier{config: cfg}
}

// classNode is a split when feature >= 0, otherwise a leaf carrying dist.
type classNode struct {
	feature   int
	threshold float64
	left      int
	right     int
	dist      []float64
}

type classTree struct {
	nodes []classNode
}

func (t *classTree) leaf(row []float64) []float64 {
	n := &t.nodes[0]
	for n.feature >= 0 {
		if row[n.feature] <= n.threshold {
			n = &t.nodes[n.left]
		} else {
			n = &t.nodes[n.right]
		}
	}
	return n.dist
}

// Fit grows the forest on x with integer class labels y.
func (f *RandomForestClassifier) Fit(ctx context.Context, x [][]float64, y []int) error {
	width, err := checkMatrix(x)
	if err != nil {
		return err
	}
	if len(y) != len(x) {
		return fmt.Errorf("%d labels for %d rows", len(y), len(x))
	}

	classes := slices.Clone(y)
	slices.Sort(classes)
	classes = slices.Compact(classes)
	index := make(map[int]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	encoded := make([]int, len(y))
	for i, c := range y {
		encoded[i] = index[c]
	}

	maxFeatures := f.config.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Sqrt(float64(width)))
	}
	maxFeatures = min(max(maxFeatures, 1), width)

	//nolint:gosec // G404: math/rand is acceptable for ML sampling (not security)
	rng := rand.New(rand.NewSource(f.config.Seed))
	seeds := make([]int64, f.config.NTrees)
	for i := range seeds {
		seeds[i] = rng.Int63()
	}

	trees := make([]classTree, f.config.NTrees)
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
			grower := &treeGrower{
				x:           x,
				y:           encoded,
				nClasses:    len(classes),
				maxFeatures: maxFeatures,
				maxDepth:    f.config.MaxDepth,
				minSplit:    f.config.MinSamplesSplit,
				//nolint:gosec // G404: see above
				rng: rand.New(rand.NewSource(seeds[i])),
			}
			sample := make([]int, len(x))
			for j := range sample {
				sample[j] = grower.rng.Intn(len(x))
			}
			grower.grow(sample, 0)
			trees[i] = classTree{nodes: grower.nodes}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.classes = classes
	f.width = width
	f.trees = trees
	return nil
}

// Classes returns the sorted class labels seen during Fit.
func (f *RandomForestClassifier) Classes() []int { return slices.Clone(f.classes) }

// PredictProba returns one probability row per input row, with columns in
// Classes order.
func (f *RandomForestClassifier) PredictProba(x [][]float64) ([][]float64, error) {
	if f.trees == nil {
		return nil, ErrNotFitted
	}
	if err := checkWidth(x, f.width); err != nil {
		return nil, err
	}
	out := make([][]float64, len(x))
	n := float64(len(f.trees))
	for i, row := range x {
		p := make([]float64, len(f.classes))
		for t := range f.trees {
			for c, v := range f.trees[t].leaf(row) {
				p[c] += v
			}
		}
		for c := range p {
			p[c] /= n
		}
		out[i] = p
	}
	return out, nil
}

// Params describes the hyperparameters for model metadata.
func (f *RandomForestClassifier) Params() map[string]any {
	var maxDepth any
	if f.config.MaxDepth > 0 {
		maxDepth = f.config.MaxDepth
	}
	maxFeatures := any("sqrt")
	if f.config.MaxFeatures > 0 {
		maxFeatures = f.config.MaxFeatures
	}
	return map[string]any{
		"n_estimators":      f.config.NTrees,
		"criterion":         "gini",
		"max_features":      maxFeatures,
		"max_depth":         maxDepth,
		"min_samples_split": f.config.MinSamplesSplit,
		"bootstrap":         true,
		"random_state":      f.config.Seed,
	}
}

// treeGrower builds one tree depth-first into a flat node slice.
type treeGrower struct {
	x           [][]float64
	y           []int
	nClasses    int
	maxFeatures int
	maxDepth    int
	minSplit    int
	rng         *rand.Rand
	nodes       []classNode
}

func (g *treeGrower) grow(idx []int, depth int) int {
	counts := make([]int, g.nClasses)
	for _, i := range idx {
		counts[g.y[i]]++
	}

	node := len(g.nodes)
	g.nodes = append(g.nodes, classNode{feature: -1, dist: distribution(counts, len(idx))})

	if len(idx) < g.minSplit || isPure(counts) || (g.maxDepth > 0 && depth >= g.maxDepth) {
		return node
	}
	feature, threshold, ok := g.bestSplit(idx, counts)
	if !ok {
		return node
	}

	var left, right []int
	for _, i := range idx {
		if g.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := g.grow(left, depth+1)
	r := g.grow(right, depth+1)

	// g.nodes may have been reallocated by the recursive calls
	g.nodes[node] = classNode{feature: feature, threshold: threshold, left: l, right: r}
	return node
}

// bestSplit searches maxFeatures random features, continuing past that
// budget only while no valid split has been found (constant features).
func (g *treeGrower) bestSplit(idx []int, counts []int) (int, float64, bool) {
	width := len(g.x[idx[0]])
	bestFeature, bestThreshold := -1, 0.0
	bestImpurity := math.Inf(1)

	sorted := slices.Clone(idx)
	leftCounts := make([]int, g.nClasses)
	rightCounts := make([]int, g.nClasses)
	n := len(idx)

	for k, feature := range g.rng.Perm(width) {
		if k >= g.maxFeatures && bestFeature >= 0 {
			break
		}
		slices.SortStableFunc(sorted, func(a, b int) int {
			return cmp.Compare(g.x[a][feature], g.x[b][feature])
		})
		clear(leftCounts)
		copy(rightCounts, counts)

		for p := 0; p < n-1; p++ {
			c := g.y[sorted[p]]
			leftCounts[c]++
			rightCounts[c]--

			v, next := g.x[sorted[p]][feature], g.x[sorted[p+1]][feature]
			if v == next {
				continue
			}
			nl, nr := p+1, n-p-1
			impurity := (float64(nl)*gini(leftCounts, nl) + float64(nr)*gini(rightCounts, nr)) / float64(n)
			if impurity < bestImpurity {
				threshold := v + (next-v)/2
				if threshold >= next {
					threshold = v
				}
				bestImpurity, bestFeature, bestThreshold = impurity, feature, threshold
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		sum += p * p
	}
	return 1 - sum
}

func isPure(counts []int) bool {
	seen := 0
	for _, c := range counts {
		if c > 0 {
			seen++
		}
	}
	return seen <= 1
}

func distribution(counts []int, n int) []float64 {
	d := make([]float64, len(counts))
	if n == 0 {
		return d
	}
	for i, c := range counts {
		d[i] = float64(c) / float64(n)
	}
	return d
}
