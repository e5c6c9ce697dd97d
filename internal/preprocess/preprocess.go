// Package preprocess implements the two fitted transforms applied ahead
// of the classifier: median imputation of missing values and
// unit-variance scaling without centering. Both are fitted on the
// training split only and frozen afterwards; Apply never updates the
// statistics, so evaluation and inference data cannot leak into them.
package preprocess

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"exoclass/internal/schema"
)

// Transform holds the fitted per-feature statistics. The slices are
// indexed in contract feature order. Exported fields so the whole
// struct travels inside the gob model artifact.
type Transform struct {
	Medians []float64
	Scales  []float64
	Fitted  bool
}

// Fit computes the imputation medians and scale factors from the
// training vectors. NaN entries are excluded from the median; a feature
// whose training values are all missing fails the fit. A zero-variance
// feature keeps scale 1 so Apply stays a no-op for it.
func Fit(vectors [][]float64) (*Transform, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("fit: no training vectors")
	}
	n := schema.NumFeatures
	t := &Transform{
		Medians: make([]float64, n),
		Scales:  make([]float64, n),
	}
	for f := 0; f < n; f++ {
		observed := make([]float64, 0, len(vectors))
		for _, vec := range vectors {
			if !math.IsNaN(vec[f]) {
				observed = append(observed, vec[f])
			}
		}
		if len(observed) == 0 {
			return nil, fmt.Errorf("fit: feature %s has no observed values", schema.FeatureNames()[f])
		}
		med, err := stats.Median(observed)
		if err != nil {
			return nil, fmt.Errorf("fit: median of %s: %w", schema.FeatureNames()[f], err)
		}
		t.Medians[f] = med

		// Variance is computed after imputation so the scale matches
		// what Apply will actually see.
		filled := make([]float64, len(vectors))
		for i, vec := range vectors {
			if math.IsNaN(vec[f]) {
				filled[i] = med
			} else {
				filled[i] = vec[f]
			}
		}
		sd, err := stats.StandardDeviationPopulation(filled)
		if err != nil {
			return nil, fmt.Errorf("fit: stddev of %s: %w", schema.FeatureNames()[f], err)
		}
		if sd == 0 {
			sd = 1
		}
		t.Scales[f] = sd
	}
	t.Fitted = true
	return t, nil
}

// Apply imputes missing values and rescales each feature to unit
// variance. No centering: the classifier is scale-tolerant and trees
// split on thresholds, but the convention is kept so a different
// classifier can be dropped in without touching this stage. Pure given
// the fitted statistics; the input vectors are not modified.
func (t *Transform) Apply(vectors [][]float64) ([][]float64, error) {
	if t == nil || !t.Fitted {
		return nil, schema.ErrNotFitted
	}
	out := make([][]float64, len(vectors))
	for i, vec := range vectors {
		if len(vec) != schema.NumFeatures {
			return nil, fmt.Errorf("apply: vector %d has length %d, want %d", i, len(vec), schema.NumFeatures)
		}
		row := make([]float64, len(vec))
		for f, v := range vec {
			if math.IsNaN(v) {
				v = t.Medians[f]
			}
			row[f] = v / t.Scales[f]
		}
		out[i] = row
	}
	return out, nil
}

// ApplyOne transforms a single vector.
func (t *Transform) ApplyOne(vec []float64) ([]float64, error) {
	rows, err := t.Apply([][]float64{vec})
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}
