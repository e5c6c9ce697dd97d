// Package dataset loads the labeled training table and partitions it
// for evaluation. Loading is strict about structure (columns, label
// vocabulary) and tolerant about individual missing values, which are
// carried as NaN until the imputer fills them.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"sort"
	"strings"

	"exoclass/internal/schema"
)

// ErrDataLoad marks failures to read or parse the training table.
// Training aborts on it without writing any artifact.
var ErrDataLoad = errors.New("data load error")

// LabeledExample is one training row: a contract-ordered feature
// vector (NaN = missing) and its disposition label.
type LabeledExample struct {
	Features []float64
	Label    string
}

// Load reads a labeled CSV with the five contract columns. Column
// order in the file is free; extra columns are ignored. Rows whose
// label is missing or outside the disposition set are kept here and
// removed by Clean, so the caller can report how much was dropped.
func Load(path string) ([]LabeledExample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDataLoad, path, err)
	}
	defer f.Close()

	return parse(f, path)
}

func parse(r io.Reader, name string) ([]LabeledExample, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header of %s: %v", ErrDataLoad, name, err)
	}
	if err := schema.ValidateColumns(header); err != nil {
		return nil, err
	}

	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[strings.TrimSpace(col)] = i
	}
	labelIdx, hasLabel := colIndex[schema.LabelColumn]
	if !hasLabel {
		return nil, &schema.SchemaError{MissingColumns: []string{schema.LabelColumn}}
	}

	names := schema.FeatureNames()
	var examples []LabeledExample
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrDataLoad, name, line, err)
		}

		vec := make([]float64, len(names))
		for i, col := range names {
			v, err := schema.ParseValue(col, record[colIndex[col]])
			if err != nil {
				return nil, fmt.Errorf("%w: %s line %d: %v", ErrDataLoad, name, line, err)
			}
			vec[i] = v
		}
		examples = append(examples, LabeledExample{
			Features: vec,
			Label:    strings.TrimSpace(record[labelIdx]),
		})
	}
	if len(examples) == 0 {
		return nil, fmt.Errorf("%w: %s has no data rows", ErrDataLoad, name)
	}
	return examples, nil
}

// Clean drops rows with any missing feature or a missing/unknown
// label. Returns the kept rows and the number dropped.
func Clean(examples []LabeledExample) ([]LabeledExample, int) {
	kept := make([]LabeledExample, 0, len(examples))
	for _, ex := range examples {
		if !schema.KnownLabel(ex.Label) {
			continue
		}
		complete := true
		for _, v := range ex.Features {
			if math.IsNaN(v) {
				complete = false
				break
			}
		}
		if complete {
			kept = append(kept, ex)
		}
	}
	return kept, len(examples) - len(kept)
}

// StratifiedSplit partitions examples into train and eval sets keeping
// each label's proportion in both, shuffled by the fixed seed. Groups
// are processed in sorted label order so the same seed always yields
// the same partition.
func StratifiedSplit(examples []LabeledExample, testFraction float64, seed int64) (train, eval []LabeledExample, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in (0, 1), got %g", testFraction)
	}

	groups := make(map[string][]LabeledExample)
	for _, ex := range examples {
		groups[ex.Label] = append(groups[ex.Label], ex)
	}

	labels := make([]string, 0, len(groups))
	for label := range groups {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	rng := rand.New(rand.NewSource(seed))
	for _, label := range labels {
		group := groups[label]
		rng.Shuffle(len(group), func(i, j int) {
			group[i], group[j] = group[j], group[i]
		})
		nEval := int(math.Round(float64(len(group)) * testFraction))
		if nEval == 0 && len(group) > 1 {
			nEval = 1
		}
		eval = append(eval, group[:nEval]...)
		train = append(train, group[nEval:]...)
	}
	if len(train) == 0 || len(eval) == 0 {
		return nil, nil, fmt.Errorf("split produced an empty partition (%d train, %d eval)", len(train), len(eval))
	}
	return train, eval, nil
}

// Vectors extracts the feature matrix and label slice.
func Vectors(examples []LabeledExample) ([][]float64, []string) {
	vectors := make([][]float64, len(examples))
	labels := make([]string, len(examples))
	for i, ex := range examples {
		vectors[i] = ex.Features
		labels[i] = ex.Label
	}
	return vectors, labels
}
