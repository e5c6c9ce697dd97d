package forest

import (
	"math"
	"math/rand"
	"sort"
)

// TreeNode is one node of a decision tree stored in a flattened array.
// Leaf nodes carry the weighted class distribution of the training
// samples that reached them; internal nodes route on a single feature
// threshold (<= goes left).
type TreeNode struct {
	FeatureIdx int
	Threshold  float64
	LeftChild  int
	RightChild int
	Dist       []float64
	IsLeaf     bool
}

// Tree is a single CART tree over contract-ordered feature vectors.
type Tree struct {
	Nodes []TreeNode
}

// distribution walks the tree and returns the leaf class distribution.
func (t *Tree) distribution(vec []float64) []float64 {
	idx := 0
	for {
		node := &t.Nodes[idx]
		if node.IsLeaf {
			return node.Dist
		}
		if vec[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
}

type treeBuilder struct {
	vectors     [][]float64
	labels      []int
	weights     []float64 // per-class weight
	numClasses  int
	numFeatures int
	maxDepth    int
	minLeaf     int
	rng         *rand.Rand
	mtry        int
}

// build grows a tree from the given sample indices and returns the
// flattened node array, root first, children appended depth-first.
func (b *treeBuilder) build(indices []int) []TreeNode {
	nodes := b.grow(indices, 0)
	return nodes
}

func (b *treeBuilder) grow(indices []int, depth int) []TreeNode {
	dist := b.classDistribution(indices)
	if depth >= b.maxDepth || len(indices) < 2*b.minLeaf || isPure(dist) {
		return []TreeNode{leaf(dist)}
	}

	feature, threshold, ok := b.bestSplit(indices)
	if !ok {
		return []TreeNode{leaf(dist)}
	}

	var left, right []int
	for _, i := range indices {
		if b.vectors[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < b.minLeaf || len(right) < b.minLeaf {
		return []TreeNode{leaf(dist)}
	}

	leftNodes := b.grow(left, depth+1)
	rightNodes := b.grow(right, depth+1)

	root := TreeNode{
		FeatureIdx: feature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
	}
	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, shift(leftNodes, 1)...)
	nodes = append(nodes, shift(rightNodes, 1+len(leftNodes))...)
	return nodes
}

// shift rebases a subtree's child indices when it is appended at
// offset base of the parent's node array.
func shift(nodes []TreeNode, base int) []TreeNode {
	for i := range nodes {
		if nodes[i].IsLeaf {
			continue
		}
		nodes[i].LeftChild += base
		nodes[i].RightChild += base
	}
	return nodes
}

func leaf(dist []float64) TreeNode {
	return TreeNode{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Dist: dist, IsLeaf: true}
}

// classDistribution returns the class-weight-normalized distribution of
// the samples at a node.
func (b *treeBuilder) classDistribution(indices []int) []float64 {
	counts := make([]float64, b.numClasses)
	total := 0.0
	for _, i := range indices {
		w := b.weights[b.labels[i]]
		counts[b.labels[i]] += w
		total += w
	}
	if total > 0 {
		for c := range counts {
			counts[c] /= total
		}
	}
	return counts
}

func isPure(dist []float64) bool {
	for _, p := range dist {
		if p > 0 && p < 1 {
			return false
		}
	}
	return true
}

// bestSplit scans a random subset of features (mtry of them) and every
// midpoint between distinct consecutive sorted values, minimizing the
// class-weighted gini of the partition.
func (b *treeBuilder) bestSplit(indices []int) (int, float64, bool) {
	features := b.rng.Perm(b.numFeatures)[:b.mtry]

	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	type sample struct {
		value float64
		label int
	}
	for _, f := range features {
		samples := make([]sample, 0, len(indices))
		for _, i := range indices {
			samples = append(samples, sample{value: b.vectors[i][f], label: b.labels[i]})
		}
		sort.Slice(samples, func(i, j int) bool { return samples[i].value < samples[j].value })

		totalW := make([]float64, b.numClasses)
		for _, s := range samples {
			totalW[s.label] += b.weights[s.label]
		}
		leftW := make([]float64, b.numClasses)

		for i := 0; i < len(samples)-1; i++ {
			leftW[samples[i].label] += b.weights[samples[i].label]
			if samples[i].value == samples[i+1].value {
				continue
			}
			impurity := weightedGini(leftW, totalW)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = f
				bestThreshold = (samples[i].value + samples[i+1].value) / 2
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

// weightedGini computes the partition impurity from left-side and total
// per-class weights.
func weightedGini(leftW, totalW []float64) float64 {
	var leftSum, totalSum float64
	for c := range totalW {
		leftSum += leftW[c]
		totalSum += totalW[c]
	}
	rightSum := totalSum - leftSum
	if leftSum == 0 || rightSum == 0 {
		return math.MaxFloat64
	}

	var giniLeft, giniRight float64
	giniLeft, giniRight = 1, 1
	for c := range totalW {
		pl := leftW[c] / leftSum
		pr := (totalW[c] - leftW[c]) / rightSum
		giniLeft -= pl * pl
		giniRight -= pr * pr
	}
	return (leftSum/totalSum)*giniLeft + (rightSum/totalSum)*giniRight
}
