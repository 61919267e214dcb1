package forest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/awalterschulze/gographviz"
	"github.com/pkg/errors"
)

// Dot renders tree i as a Graphviz digraph. featureNames labels split
// features; missing names fall back to x[i].
func (f *Forest) Dot(i int, featureNames []string) (string, error) {
	if i < 0 || i >= len(f.Trees) {
		return "", errors.Errorf("tree %d out of range [0,%d)", i, len(f.Trees))
	}
	t := f.Trees[i]
	name := fmt.Sprintf("tree%d", i)

	g := gographviz.NewGraph()
	if err := g.SetName(name); err != nil {
		return "", errors.WithStack(err)
	}
	if err := g.SetDir(true); err != nil {
		return "", errors.WithStack(err)
	}

	nodeID := func(n int32) string { return fmt.Sprintf("n%d", n) }
	for ni, n := range t.Nodes {
		var label string
		if n.Feature < 0 {
			probs := make([]string, len(n.Prob))
			for c, p := range n.Prob {
				probs[c] = strconv.FormatFloat(float64(p), 'f', 3, 32)
			}
			label = fmt.Sprintf("samples=%d\\np=[%s]", n.Samples, strings.Join(probs, " "))
		} else {
			feat := fmt.Sprintf("x[%d]", n.Feature)
			if n.Feature < len(featureNames) {
				feat = featureNames[n.Feature]
			}
			label = fmt.Sprintf("%s <= %g\\nsamples=%d", feat, n.Threshold, n.Samples)
		}
		attrs := map[string]string{
			"label": `"` + label + `"`,
			"shape": "box",
		}
		if err := g.AddNode(name, nodeID(int32(ni)), attrs); err != nil {
			return "", errors.WithStack(err)
		}
	}
	for ni, n := range t.Nodes {
		if n.Feature < 0 {
			continue
		}
		if err := g.AddEdge(nodeID(int32(ni)), nodeID(n.Left), true, map[string]string{"label": `"yes"`}); err != nil {
			return "", errors.WithStack(err)
		}
		if err := g.AddEdge(nodeID(int32(ni)), nodeID(n.Right), true, map[string]string{"label": `"no"`}); err != nil {
			return "", errors.WithStack(err)
		}
	}
	return g.String(), nil
}

// Stats summarises the shape of a fitted forest.
type Stats struct {
	Trees    int
	Nodes    int
	Leaves   int
	MaxDepth int
	Classes  []float32
}

// Stats walks every tree.
func (f *Forest) Stats() Stats {
	s := Stats{Trees: len(f.Trees), Classes: f.Classes}
	for i := range f.Trees {
		t := &f.Trees[i]
		s.Nodes += len(t.Nodes)
		for _, n := range t.Nodes {
			if n.Feature < 0 {
				s.Leaves++
			}
		}
		if d := t.Depth(); d > s.MaxDepth {
			s.MaxDepth = d
		}
	}
	return s
}
