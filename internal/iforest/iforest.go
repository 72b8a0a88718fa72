// Package iforest implements isolation forest scoring for unsupervised
// anomaly detection.
//
// An isolation tree recursively partitions a subsample with random
// axis-aligned splits; anomalous points isolate near the root. The forest
// averages path lengths across trees and converts them to the standard
// anomaly score s(x) = 2^(-E[h(x)]/c(n)). ScoreSamples follows the negated
// convention: returned scores are in (-1, 0) and more negative means more
// isolated.
package iforest

import (
	"errors"
	"math"
	"math/rand"
)

// DefaultSampleSize is the per-tree subsample size when none is configured.
const DefaultSampleSize = 256

var (
	// ErrNotFitted is returned when scoring before Fit.
	ErrNotFitted = errors.New("iforest: forest not fitted")

	// ErrNoData is returned when Fit receives an empty matrix.
	ErrNoData = errors.New("iforest: no training data")

	// ErrDimensionMismatch is returned when a sample's width disagrees with
	// the training data.
	ErrDimensionMismatch = errors.New("iforest: feature dimension mismatch")
)

// Node is one node of an isolation tree. Leaves have Feature == -1 and carry
// the number of training points that ended there. Nodes are kept in a flat
// slice so a fitted forest serializes directly.
type Node struct {
	Feature int     `json:"feature"`
	Split   float64 `json:"split"`
	Left    int     `json:"left"`
	Right   int     `json:"right"`
	Size    int     `json:"size"`
}

// Tree is a single isolation tree as a flat node array rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Forest is a fitted isolation forest.
type Forest struct {
	Trees      []Tree `json:"trees"`
	SampleSize int    `json:"sample_size"`
	NumTrees   int    `json:"num_trees"`
	Dimensions int    `json:"dimensions"`
	Seed       int64  `json:"seed"`
}

// Option configures a Forest before fitting.
type Option func(*Forest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *Forest) { f.NumTrees = n }
}

// WithSampleSize sets the per-tree subsample size.
func WithSampleSize(n int) Option {
	return func(f *Forest) { f.SampleSize = n }
}

// WithSeed fixes the random source for reproducible forests.
func WithSeed(seed int64) Option {
	return func(f *Forest) { f.Seed = seed }
}

// New creates an unfitted forest.
func New(opts ...Option) *Forest {
	f := &Forest{
		NumTrees:   100,
		SampleSize: 0, // resolved at Fit time
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fitted reports whether the forest has been trained.
func (f *Forest) Fitted() bool {
	return len(f.Trees) > 0
}

// Fit trains the forest on data, one row per sample.
func (f *Forest) Fit(data [][]float64) error {
	if len(data) == 0 {
		return ErrNoData
	}
	dims := len(data[0])
	if dims == 0 {
		return ErrNoData
	}
	for _, row := range data {
		if len(row) != dims {
			return ErrDimensionMismatch
		}
	}

	sampleSize := f.SampleSize
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	if sampleSize > len(data) {
		sampleSize = len(data)
	}

	f.SampleSize = sampleSize

	rng := rand.New(rand.NewSource(f.Seed))
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize))))
	if maxDepth < 1 {
		maxDepth = 1
	}

	f.Dimensions = dims
	f.Trees = make([]Tree, f.NumTrees)
	for t := range f.Trees {
		sample := subsample(rng, data, sampleSize)
		b := &treeBuilder{rng: rng, dims: dims, maxDepth: maxDepth}
		b.grow(sample, 0)
		f.Trees[t] = Tree{Nodes: b.nodes}
	}

	return nil
}

// ScoreSamples returns one raw anomaly score per row, in (-1, 0). More
// negative scores mark more isolated points (sklearn score_samples
// convention).
func (f *Forest) ScoreSamples(data [][]float64) ([]float64, error) {
	if !f.Fitted() {
		return nil, ErrNotFitted
	}

	norm := avgPathLength(f.SampleSize)
	scores := make([]float64, len(data))
	for i, row := range data {
		if len(row) != f.Dimensions {
			return nil, ErrDimensionMismatch
		}

		// c(n) is 0 for a subsample of one point, so the exponent is
		// undefined. Nothing can be isolated; every sample gets the
		// indifferent score -2^-1.
		if norm == 0 {
			scores[i] = -0.5
			continue
		}

		var total float64
		for _, tree := range f.Trees {
			total += tree.pathLength(row)
		}
		mean := total / float64(len(f.Trees))
		scores[i] = -math.Exp2(-mean / norm)
	}

	return scores, nil
}

// pathLength walks a sample down the tree, adding the usual c(size)
// adjustment at non-singleton leaves.
func (t Tree) pathLength(row []float64) float64 {
	depth := 0.0
	idx := 0
	for {
		n := t.Nodes[idx]
		if n.Feature < 0 {
			return depth + avgPathLength(n.Size)
		}
		depth++
		if row[n.Feature] < n.Split {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
}

// avgPathLength is c(n), the average path length of an unsuccessful BST
// search over n points.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649015329
	return 2*h - 2*float64(n-1)/float64(n)
}

type treeBuilder struct {
	rng      *rand.Rand
	dims     int
	maxDepth int
	nodes    []Node
}

// grow builds the subtree for points and returns its node index.
func (b *treeBuilder) grow(points [][]float64, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Size: len(points)})

	if depth >= b.maxDepth || len(points) <= 1 {
		return idx
	}

	feature, split, ok := b.pickSplit(points)
	if !ok {
		// All remaining points are identical across every feature.
		return idx
	}

	var left, right [][]float64
	for _, p := range points {
		if p[feature] < split {
			left = append(left, p)
		} else {
			right = append(right, p)
		}
	}

	leftIdx := b.grow(left, depth+1)
	rightIdx := b.grow(right, depth+1)

	b.nodes[idx] = Node{
		Feature: feature,
		Split:   split,
		Left:    leftIdx,
		Right:   rightIdx,
		Size:    len(points),
	}
	return idx
}

// pickSplit chooses a random splittable feature and a uniform split point
// strictly inside that feature's range.
func (b *treeBuilder) pickSplit(points [][]float64) (int, float64, bool) {
	order := b.rng.Perm(b.dims)
	for _, feature := range order {
		lo, hi := points[0][feature], points[0][feature]
		for _, p := range points[1:] {
			if p[feature] < lo {
				lo = p[feature]
			}
			if p[feature] > hi {
				hi = p[feature]
			}
		}
		if hi <= lo {
			continue
		}
		split := lo + b.rng.Float64()*(hi-lo)
		if split <= lo {
			// Guard against a degenerate draw leaving one side empty.
			split = math.Nextafter(lo, hi)
		}
		return feature, split, true
	}
	return 0, 0, false
}

// subsample draws k distinct rows from data.
func subsample(rng *rand.Rand, data [][]float64, k int) [][]float64 {
	if k >= len(data) {
		return data
	}
	idx := rng.Perm(len(data))[:k]
	out := make([][]float64, k)
	for i, j := range idx {
		out[i] = data[j]
	}
	return out
}
