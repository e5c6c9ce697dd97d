package export

import (
	"fmt"
	"math"
)

// Eval runs the graph on one raw feature vector and returns the class
// distribution and argmax index. It is the reference semantics for
// client-side runtimes and lets tests assert the export reproduces the
// native pipeline bit for bit.
func Eval(g *Graph, features []float64) ([]float64, int, error) {
	values := map[string][]float64{}
	var classIndex int

	for _, node := range g.Nodes {
		switch node.Op {
		case "input":
			if len(features) != node.Shape[0] {
				return nil, 0, fmt.Errorf("graph eval: input length %d, want %d", len(features), node.Shape[0])
			}
			values[node.Output] = append([]float64(nil), features...)

		case "impute":
			in, ok := values[node.Input]
			if !ok {
				return nil, 0, fmt.Errorf("graph eval: %s reads undefined value %s", node.Name, node.Input)
			}
			out := make([]float64, len(in))
			for i, v := range in {
				if math.IsNaN(v) {
					v = node.Values[i]
				}
				out[i] = v
			}
			values[node.Output] = out

		case "scale":
			in, ok := values[node.Input]
			if !ok {
				return nil, 0, fmt.Errorf("graph eval: %s reads undefined value %s", node.Name, node.Input)
			}
			out := make([]float64, len(in))
			for i, v := range in {
				out[i] = v / node.Divisors[i]
			}
			values[node.Output] = out

		case "tree_ensemble":
			in, ok := values[node.Input]
			if !ok {
				return nil, 0, fmt.Errorf("graph eval: %s reads undefined value %s", node.Name, node.Input)
			}
			proba := make([]float64, node.NumClasses)
			for _, tree := range node.Trees {
				dist, err := walkTree(tree, in)
				if err != nil {
					return nil, 0, err
				}
				for c, p := range dist {
					proba[c] += p
				}
			}
			var sum float64
			for _, p := range proba {
				sum += p
			}
			if sum > 0 {
				for c := range proba {
					proba[c] /= sum
				}
			}
			values[node.Output] = proba

		case "argmax":
			in, ok := values[node.Input]
			if !ok {
				return nil, 0, fmt.Errorf("graph eval: %s reads undefined value %s", node.Name, node.Input)
			}
			best := 0
			for i := 1; i < len(in); i++ {
				if in[i] > in[best] {
					best = i
				}
			}
			classIndex = best
			values[node.Output] = []float64{float64(best)}

		default:
			return nil, 0, fmt.Errorf("graph eval: unknown op %q", node.Op)
		}
	}

	proba, ok := values["proba"]
	if !ok {
		return nil, 0, fmt.Errorf("graph eval: graph produced no proba output")
	}
	return proba, classIndex, nil
}

func walkTree(t ExportedTree, vec []float64) ([]float64, error) {
	idx := 0
	for steps := 0; steps <= len(t.IsLeaf); steps++ {
		if t.IsLeaf[idx] {
			return t.Dist[idx], nil
		}
		if vec[t.FeatureIdx[idx]] <= t.Threshold[idx] {
			idx = t.LeftChild[idx]
		} else {
			idx = t.RightChild[idx]
		}
		if idx < 0 || idx >= len(t.IsLeaf) {
			return nil, fmt.Errorf("graph eval: tree walk out of bounds at node %d", idx)
		}
	}
	return nil, fmt.Errorf("graph eval: tree walk did not terminate")
}
