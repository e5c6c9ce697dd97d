// Package forest implements a random-forest disposition classifier:
// bagged CART trees with per-class weighting and seeded, reproducible
// training. Probabilities are the mean of the per-tree leaf class
// distributions. All exported state is gob-serializable so a fitted
// forest travels inside the model artifact unchanged.
package forest

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"exoclass/internal/schema"
)

// Config holds the training hyperparameters. Trees is a variance
// control, not a correctness knob; 300 is the reference value.
type Config struct {
	Trees    int
	MaxDepth int
	MinLeaf  int
	Seed     int64
}

// DefaultConfig mirrors the reference training setup.
func DefaultConfig() Config {
	return Config{Trees: 300, MaxDepth: 12, MinLeaf: 2, Seed: 42}
}

// Forest is a fitted ensemble. ClassNames is the canonical class
// ordering established at fit time; every probability array the forest
// produces is positionally indexed by it, and it must be persisted
// alongside the trees.
type Forest struct {
	ClassNames  []string
	Trees       []Tree
	NumFeatures int
	Cfg         Config
}

// Fit trains the ensemble on contract-ordered feature vectors and
// string labels. Classes are ordered lexicographically; each class's
// contribution to split quality is weighted inversely to its frequency
// so the imbalanced disposition mix does not drown the minority class.
// Two Fit calls with the same data and seed produce identical trees.
func Fit(vectors [][]float64, labels []string, cfg Config) (*Forest, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("fit: empty training set")
	}
	if len(vectors) != len(labels) {
		return nil, fmt.Errorf("fit: %d vectors but %d labels", len(vectors), len(labels))
	}
	if cfg.Trees < 1 {
		return nil, fmt.Errorf("fit: tree count must be >= 1, got %d", cfg.Trees)
	}

	classNames := uniqueSorted(labels)
	classIndex := make(map[string]int, len(classNames))
	for i, name := range classNames {
		classIndex[name] = i
	}

	y := make([]int, len(labels))
	counts := make([]float64, len(classNames))
	for i, label := range labels {
		idx, ok := classIndex[label]
		if !ok {
			return nil, fmt.Errorf("fit: unknown label %q", label)
		}
		y[i] = idx
		counts[idx]++
	}

	// Balanced class weights: n / (k * count_c).
	weights := make([]float64, len(classNames))
	n := float64(len(labels))
	k := float64(len(classNames))
	for c, count := range counts {
		weights[c] = n / (k * count)
	}

	numFeatures := len(vectors[0])
	mtry := int(math.Sqrt(float64(numFeatures)))
	if mtry < 1 {
		mtry = 1
	}

	f := &Forest{
		ClassNames:  classNames,
		Trees:       make([]Tree, cfg.Trees),
		NumFeatures: numFeatures,
		Cfg:         cfg,
	}

	// Each tree gets its own rng derived from the root seed, so the
	// worker pool below cannot perturb reproducibility.
	var wg sync.WaitGroup
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	for t := 0; t < cfg.Trees; t++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(t int) {
			defer wg.Done()
			defer func() { <-sem }()
			rng := rand.New(rand.NewSource(cfg.Seed + int64(t)))
			builder := &treeBuilder{
				vectors:     vectors,
				labels:      y,
				weights:     weights,
				numClasses:  len(classNames),
				numFeatures: numFeatures,
				maxDepth:    cfg.MaxDepth,
				minLeaf:     cfg.MinLeaf,
				rng:         rng,
				mtry:        mtry,
			}
			indices := bootstrap(rng, len(vectors))
			f.Trees[t] = Tree{Nodes: builder.build(indices)}
		}(t)
	}
	wg.Wait()

	return f, nil
}

// bootstrap draws n sample indices with replacement.
func bootstrap(rng *rand.Rand, n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = rng.Intn(n)
	}
	return indices
}

func uniqueSorted(labels []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

// Classes returns the canonical class ordering established at fit time.
func (f *Forest) Classes() []string {
	return f.ClassNames
}

// PredictProba returns the class distribution for one vector: the mean
// of the per-tree leaf distributions, normalized. Deterministic given
// the fitted trees; no randomness remains at inference time.
func (f *Forest) PredictProba(vec []float64) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, schema.ErrNotFitted
	}
	if len(vec) != f.NumFeatures {
		return nil, fmt.Errorf("predict: vector length %d, want %d", len(vec), f.NumFeatures)
	}
	proba := make([]float64, len(f.ClassNames))
	for i := range f.Trees {
		dist := f.Trees[i].distribution(vec)
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
	return proba, nil
}

// Predict returns the argmax class. Ties break toward the lowest index
// of the canonical ordering.
func (f *Forest) Predict(vec []float64) (string, error) {
	proba, err := f.PredictProba(vec)
	if err != nil {
		return "", err
	}
	return f.ClassNames[Argmax(proba)], nil
}

// Argmax returns the index of the largest value, preferring the lowest
// index on exact ties.
func Argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}
