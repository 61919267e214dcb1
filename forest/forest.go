// Package forest implements a random forest of binary-split classification
// trees. A fitted Forest is immutable and safe for concurrent Predict calls.
package forest

import (
	"context"
	"math/rand"
	"sort"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
	"gorgonia.org/tensor"
)

// ErrNotFitted is returned when a forest without trees is used.
var ErrNotFitted = errors.New("forest is not fitted")

// Node is a tree node. Leaves have Feature == -1 and carry class probabilities.
type Node struct {
	Feature   int
	Threshold float32 // samples with x[Feature] <= Threshold go left
	Left      int32
	Right     int32
	Samples   int
	Prob      []float32
}

// Tree is a flattened decision tree, Nodes[0] is the root.
type Tree struct {
	Nodes []Node
}

func (t *Tree) leaf(x []float32) *Node {
	i := int32(0)
	for {
		n := &t.Nodes[i]
		if n.Feature < 0 {
			return n
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the depth of the deepest leaf.
func (t *Tree) Depth() int {
	var walk func(i int32) int
	walk = func(i int32) int {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return 0
		}
		l, r := walk(n.Left), walk(n.Right)
		if l > r {
			return l + 1
		}
		return r + 1
	}
	if len(t.Nodes) == 0 {
		return 0
	}
	return walk(0)
}

// Forest is an ensemble of trees voting with averaged leaf probabilities.
type Forest struct {
	Conf     Config
	Features int
	Classes  []float32 // distinct labels seen by Fit, ascending
	Trees    []Tree
}

// New returns an unfitted forest.
func New(conf Config) *Forest {
	return &Forest{Conf: conf}
}

// Fit trains the forest on the rows of X (samples × features) labelled by y.
func (f *Forest) Fit(ctx context.Context, X *tensor.Dense, y []float32) error {
	if !f.Conf.IsValid() {
		return errors.Errorf("invalid forest config %+v", f.Conf)
	}
	shape := X.Shape()
	if len(shape) != 2 {
		return errors.Errorf("expected a matrix, got shape %v", shape)
	}
	rows, cols := shape[0], shape[1]
	if rows == 0 || cols == 0 {
		return errors.New("no samples to fit")
	}
	if rows != len(y) {
		return errors.Errorf("%d rows but %d labels", rows, len(y))
	}
	features, err := Columns(X)
	if err != nil {
		return err
	}

	classes := append([]float32(nil), y...)
	slices.Sort(classes)
	classes = slices.Compact(classes)
	labels := make([]int, rows)
	for i, v := range y {
		labels[i] = sort.Search(len(classes), func(j int) bool { return classes[j] >= v })
	}

	mtry := f.Conf.MaxFeatures
	if mtry == 0 {
		mtry = int(math32.Sqrt(float32(cols)))
	}
	if mtry < 1 {
		mtry = 1
	}
	if mtry > cols {
		mtry = cols
	}

	trees := make([]Tree, f.Conf.Estimators)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.Conf.Workers)
	for i := range trees {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b := &builder{
				cols:     features,
				y:        labels,
				nclasses: len(classes),
				mtry:     mtry,
				conf:     f.Conf,
				rng:      rand.New(rand.NewSource(f.Conf.Seed + int64(i))),
			}
			trees[i] = b.build(rows)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "fit forest")
	}

	f.Features = cols
	f.Classes = classes
	f.Trees = trees
	return f.validate()
}

// Columns returns the columns of the samples × features matrix X, each one
// contiguous. X itself is left untouched.
func Columns(X *tensor.Dense) ([][]float32, error) {
	shape := X.Shape()
	if len(shape) != 2 {
		return nil, errors.Errorf("expected a matrix, got shape %v", shape)
	}
	rows, cols := shape[0], shape[1]
	if _, ok := X.Data().([]float32); !ok {
		return nil, errors.Errorf("expected float32 backing, got %T", X.Data())
	}

	t := X.Clone().(*tensor.Dense)
	if err := t.T(); err != nil {
		return nil, errors.Wrap(err, "transpose samples")
	}
	if err := t.Transpose(); err != nil {
		return nil, errors.Wrap(err, "transpose samples")
	}
	data := t.Data().([]float32)
	out := make([][]float32, cols)
	for j := range out {
		out[j] = data[j*rows : (j+1)*rows : (j+1)*rows]
	}
	return out, nil
}

// Predict returns the class probabilities for x, one per entry of Classes.
func (f *Forest) Predict(x []float32) []float32 {
	if len(f.Trees) == 0 {
		return nil
	}
	probs := make([]float32, len(f.Classes))
	for i := range f.Trees {
		for c, p := range f.Trees[i].leaf(x).Prob {
			probs[c] += p
		}
	}
	n := float32(len(f.Trees))
	for c := range probs {
		probs[c] /= n
	}
	return probs
}

func (f *Forest) validate() error {
	if len(f.Trees) == 0 {
		return ErrNotFitted
	}
	for ti := range f.Trees {
		nodes := f.Trees[ti].Nodes
		if len(nodes) == 0 {
			return errors.Errorf("tree %d has no nodes", ti)
		}
		for ni, n := range nodes {
			if n.Feature >= f.Features {
				return errors.Errorf("tree %d node %d splits on feature %d of %d", ti, ni, n.Feature, f.Features)
			}
			// children always follow their parent, which also rules out cycles
			if n.Feature >= 0 && !(child(n.Left, ni, len(nodes)) && child(n.Right, ni, len(nodes))) {
				return errors.Errorf("tree %d node %d has children %d and %d out of range", ti, ni, n.Left, n.Right)
			}
			if n.Feature < 0 && !validProbabilities(n.Prob, len(f.Classes)) {
				return errors.Errorf("tree %d node %d has invalid probabilities %v", ti, ni, n.Prob)
			}
		}
	}
	return nil
}

// Validate checks the structure of a forest, e.g. after decoding it.
func (f *Forest) Validate() error { return f.validate() }

func child(i int32, parent, n int) bool {
	return int(i) > parent && int(i) < n
}

func validProbabilities(p []float32, n int) bool {
	if len(p) != n {
		return false
	}
	for _, v := range p {
		if math32.IsInf(v, 0) || math32.IsNaN(v) || v < 0 || v > 1 {
			return false
		}
	}
	return true
}

type builder struct {
	cols     [][]float32 // feature-major samples
	y        []int
	nclasses int
	mtry     int
	conf     Config
	rng      *rand.Rand
	nodes    []Node
}

func (b *builder) build(rows int) Tree {
	idx := make([]int, rows)
	for i := range idx {
		if b.conf.Bootstrap {
			idx[i] = b.rng.Intn(rows)
		} else {
			idx[i] = i
		}
	}
	b.grow(idx, 0)
	return Tree{Nodes: b.nodes}
}

func (b *builder) grow(idx []int, depth int) int32 {
	id := int32(len(b.nodes))
	b.nodes = append(b.nodes, Node{Feature: -1, Samples: len(idx)})

	counts := b.counts(idx)
	if depth >= b.conf.MaxDepth || len(idx) < b.conf.MinSamplesSplit || pure(counts) {
		b.nodes[id].Prob = probabilities(counts, len(idx))
		return id
	}
	feature, threshold, ok := b.split(idx, counts)
	if !ok {
		b.nodes[id].Prob = probabilities(counts, len(idx))
		return id
	}

	var left, right []int
	for _, r := range idx {
		if b.cols[feature][r] <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id].Feature = feature
	b.nodes[id].Threshold = threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

func (b *builder) counts(idx []int) []int {
	counts := make([]int, b.nclasses)
	for _, r := range idx {
		counts[b.y[r]]++
	}
	return counts
}

type sample struct {
	v     float32
	label int
}

// split finds the gini-optimal threshold over mtry randomly chosen features.
// Constant features do not count towards mtry.
func (b *builder) split(idx []int, parent []int) (feature int, threshold float32, ok bool) {
	n := len(idx)
	best := gini(parent, n)
	samples := make([]sample, n)
	left := make([]int, b.nclasses)
	right := make([]int, b.nclasses)

	tried := 0
	for _, feat := range b.rng.Perm(len(b.cols)) {
		if tried == b.mtry {
			break
		}
		for i, r := range idx {
			samples[i] = sample{v: b.cols[feat][r], label: b.y[r]}
		}
		sort.Slice(samples, func(i, j int) bool { return samples[i].v < samples[j].v })
		if samples[0].v == samples[n-1].v {
			continue
		}
		tried++

		for c := range left {
			left[c] = 0
		}
		copy(right, parent)
		for i := 0; i < n-1; i++ {
			left[samples[i].label]++
			right[samples[i].label]--
			if samples[i].v == samples[i+1].v {
				continue
			}
			nl, nr := i+1, n-i-1
			impurity := (float32(nl)*gini(left, nl) + float32(nr)*gini(right, nr)) / float32(n)
			if impurity < best-1e-7 {
				best = impurity
				feature = feat
				threshold = samples[i].v + (samples[i+1].v-samples[i].v)/2
				if threshold >= samples[i+1].v {
					threshold = samples[i].v
				}
				ok = true
			}
		}
	}
	return feature, threshold, ok
}

func gini(counts []int, n int) float32 {
	if n == 0 {
		return 0
	}
	g := float32(1)
	for _, c := range counts {
		p := float32(c) / float32(n)
		g -= p * p
	}
	return g
}

func pure(counts []int) bool {
	nonzero := 0
	for _, c := range counts {
		if c > 0 {
			nonzero++
		}
	}
	return nonzero <= 1
}

func probabilities(counts []int, n int) []float32 {
	p := make([]float32, len(counts))
	if n == 0 {
		return p
	}
	for c, k := range counts {
		p[c] = float32(k) / float32(n)
	}
	return p
}
