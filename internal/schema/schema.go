// Package schema defines the feature and label contract shared by
// training, the persisted model artifact, and inference. The feature
// names and their order are fixed; every consumer that indexes a
// probability array positionally depends on the orderings declared here.
package schema

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Canonical feature columns, in contract order.
const (
	FeatureOrbitalPeriod   = "orbital_period"   // days
	FeatureTransitDuration = "transit_duration" // hours
	FeatureTransitDepth    = "transit_depth"    // parts per million
	FeaturePlanetRadius    = "planet_radius"    // Earth radii
)

// Disposition labels.
const (
	LabelConfirmed     = "CONFIRMED"
	LabelCandidate     = "CANDIDATE"
	LabelFalsePositive = "FALSE POSITIVE"
)

// LabelColumn is the training-table column holding the disposition.
const LabelColumn = "label"

// NumFeatures is the width of every feature vector in the system.
const NumFeatures = 4

// FeatureNames returns the canonical feature order. Callers must not
// reorder the result; positional coupling with fitted statistics and
// probability columns depends on it.
func FeatureNames() []string {
	return []string{
		FeatureOrbitalPeriod,
		FeatureTransitDuration,
		FeatureTransitDepth,
		FeaturePlanetRadius,
	}
}

// Labels returns the closed label set in canonical (lexicographic)
// order: CANDIDATE, CONFIRMED, FALSE POSITIVE. Argmax ties break
// toward the lowest index of this ordering.
func Labels() []string {
	labels := []string{LabelCandidate, LabelConfirmed, LabelFalsePositive}
	sort.Strings(labels)
	return labels
}

// KnownLabel reports whether s is one of the three dispositions.
func KnownLabel(s string) bool {
	switch s {
	case LabelConfirmed, LabelCandidate, LabelFalsePositive:
		return true
	}
	return false
}

// Row is one observation keyed by feature name. A NaN value means the
// measurement is missing; missing values are legal in raw input and are
// filled by the fitted imputer before scoring.
type Row map[string]float64

// Vector flattens r into contract feature order.
func (r Row) Vector() []float64 {
	names := FeatureNames()
	vec := make([]float64, len(names))
	for i, name := range names {
		v, ok := r[name]
		if !ok {
			v = math.NaN()
		}
		vec[i] = v
	}
	return vec
}

// RowFromVector builds a Row from a contract-ordered vector.
func RowFromVector(vec []float64) (Row, error) {
	names := FeatureNames()
	if len(vec) != len(names) {
		return nil, fmt.Errorf("vector length %d, want %d", len(vec), len(names))
	}
	row := make(Row, len(names))
	for i, name := range names {
		row[name] = vec[i]
	}
	return row, nil
}

// Validate checks r against the contract: every feature must be present
// as a key, and every present value must be a finite float or NaN
// (NaN marks a missing measurement and is the imputer's problem, not a
// validation failure). Returns a *SchemaError naming the offending
// columns.
func Validate(r Row) error {
	var missing, invalid []string
	for _, name := range FeatureNames() {
		v, ok := r[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if math.IsInf(v, 0) {
			invalid = append(invalid, name)
		}
	}
	if len(missing) > 0 || len(invalid) > 0 {
		return &SchemaError{MissingColumns: missing, InvalidColumns: invalid}
	}
	return nil
}

// ValidateColumns checks that a tabular header carries every required
// feature column. Extra columns are allowed and ignored.
func ValidateColumns(header []string) error {
	present := make(map[string]bool, len(header))
	for _, col := range header {
		present[strings.TrimSpace(col)] = true
	}
	var missing []string
	for _, name := range FeatureNames() {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{MissingColumns: missing}
	}
	return nil
}

// ParseValue coerces a raw cell into a float. Empty cells become NaN
// (missing); anything else that does not parse to a finite float is a
// schema violation for the named column.
func ParseValue(column, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &SchemaError{InvalidColumns: []string{column}}
	}
	if math.IsInf(v, 0) {
		return 0, &SchemaError{InvalidColumns: []string{column}}
	}
	return v, nil
}
