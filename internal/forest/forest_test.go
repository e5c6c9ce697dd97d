package forest

import (
	"math"
	"math/rand"
	"testing"

	"exoclass/internal/schema"
)

// synthetic builds n rows per class in well-separated clusters.
func synthetic(nPerClass int, seed int64) ([][]float64, []string) {
	rng := rand.New(rand.NewSource(seed))
	centers := map[string][]float64{
		schema.LabelCandidate:     {10, 3, 500, 2},
		schema.LabelConfirmed:     {100, 10, 5000, 10},
		schema.LabelFalsePositive: {1, 1, 50, 0.5},
	}
	var vectors [][]float64
	var labels []string
	for _, label := range schema.Labels() {
		center := centers[label]
		for i := 0; i < nPerClass; i++ {
			vec := make([]float64, len(center))
			for f, c := range center {
				vec[f] = c * (1 + 0.05*rng.NormFloat64())
			}
			vectors = append(vectors, vec)
			labels = append(labels, label)
		}
	}
	return vectors, labels
}

func testConfig() Config {
	return Config{Trees: 25, MaxDepth: 8, MinLeaf: 1, Seed: 7}
}

func TestPredictProbaSumsToOne(t *testing.T) {
	t.Parallel()

	vectors, labels := synthetic(30, 1)
	f, err := Fit(vectors, labels, testConfig())
	if err != nil {
		t.Fatal(err)
	}

	for i, vec := range vectors {
		proba, err := f.PredictProba(vec)
		if err != nil {
			t.Fatal(err)
		}
		if len(proba) != 3 {
			t.Fatalf("expected 3 classes, got %d", len(proba))
		}
		var sum float64
		for _, p := range proba {
			if p < 0 {
				t.Fatalf("row %d: negative probability %g", i, p)
			}
			sum += p
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Fatalf("row %d: probabilities sum to %g", i, sum)
		}
	}
}

func TestTrainingDeterminism(t *testing.T) {
	t.Parallel()

	vectors, labels := synthetic(30, 2)
	cfg := testConfig()

	f1, err := Fit(vectors, labels, cfg)
	if err != nil {
		t.Fatal(err)
	}
	f2, err := Fit(vectors, labels, cfg)
	if err != nil {
		t.Fatal(err)
	}

	probe := []float64{10, 3, 500, 2}
	p1, err := f1.PredictProba(probe)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := f2.PredictProba(probe)
	if err != nil {
		t.Fatal(err)
	}
	for c := range p1 {
		if p1[c] != p2[c] {
			t.Errorf("class %d: %v vs %v across identical seeded fits", c, p1[c], p2[c])
		}
	}
}

func TestInferenceIdempotence(t *testing.T) {
	t.Parallel()

	vectors, labels := synthetic(20, 3)
	f, err := Fit(vectors, labels, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	probe := []float64{5, 2, 300, 1.5}
	p1, _ := f.PredictProba(probe)
	p2, _ := f.PredictProba(probe)
	for c := range p1 {
		if p1[c] != p2[c] {
			t.Errorf("class %d: prediction not bit-identical (%v vs %v)", c, p1[c], p2[c])
		}
	}
}

func TestClassOrderingIsSorted(t *testing.T) {
	t.Parallel()

	vectors, labels := synthetic(10, 4)
	f, err := Fit(vectors, labels, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	want := schema.Labels()
	got := f.Classes()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("class %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestSeparableClustersAreLearned(t *testing.T) {
	t.Parallel()

	vectors, labels := synthetic(40, 5)
	f, err := Fit(vectors, labels, testConfig())
	if err != nil {
		t.Fatal(err)
	}

	correct := 0
	for i, vec := range vectors {
		pred, err := f.Predict(vec)
		if err != nil {
			t.Fatal(err)
		}
		if pred == labels[i] {
			correct++
		}
	}
	accuracy := float64(correct) / float64(len(vectors))
	if accuracy < 0.95 {
		t.Errorf("training accuracy %g on separable clusters, expected >= 0.95", accuracy)
	}
}

func TestMinorityClassNotDrowned(t *testing.T) {
	t.Parallel()

	// 10:1 imbalance; class weighting should still let the minority
	// class win at its own cluster center.
	var vectors [][]float64
	var labels []string
	rng := rand.New(rand.NewSource(6))
	for i := 0; i < 200; i++ {
		vectors = append(vectors, []float64{10 * (1 + 0.05*rng.NormFloat64()), 3, 500, 2})
		labels = append(labels, schema.LabelFalsePositive)
	}
	for i := 0; i < 20; i++ {
		vectors = append(vectors, []float64{200 * (1 + 0.05*rng.NormFloat64()), 12, 8000, 11})
		labels = append(labels, schema.LabelConfirmed)
	}

	f, err := Fit(vectors, labels, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	pred, err := f.Predict([]float64{200, 12, 8000, 11})
	if err != nil {
		t.Fatal(err)
	}
	if pred != schema.LabelConfirmed {
		t.Errorf("expected minority class at its own center, got %s", pred)
	}
}

func TestArgmaxTieBreak(t *testing.T) {
	t.Parallel()

	if got := Argmax([]float64{0.4, 0.4, 0.2}); got != 0 {
		t.Errorf("tie should break to lowest index, got %d", got)
	}
	if got := Argmax([]float64{0.1, 0.2, 0.7}); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
}

func TestPredictBeforeFit(t *testing.T) {
	t.Parallel()

	var f Forest
	if _, err := f.PredictProba([]float64{1, 2, 3, 4}); err == nil {
		t.Error("expected error from unfitted forest")
	}
}

func TestFitInputValidation(t *testing.T) {
	t.Parallel()

	if _, err := Fit(nil, nil, testConfig()); err == nil {
		t.Error("expected error for empty training set")
	}
	if _, err := Fit([][]float64{{1, 2, 3, 4}}, []string{"A", "B"}, testConfig()); err == nil {
		t.Error("expected error for length mismatch")
	}
}
