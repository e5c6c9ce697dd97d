package dataset

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"exoclass/internal/schema"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidFile(t *testing.T) {
	t.Parallel()

	path := writeCSV(t, `orbital_period,transit_duration,transit_depth,planet_radius,label
10.5,3.2,500,2.1,CONFIRMED
1.2,0.8,80,0.9,FALSE POSITIVE
,2.0,300,1.5,CANDIDATE
`)
	examples, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(examples) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(examples))
	}
	if examples[0].Label != "CONFIRMED" || examples[0].Features[0] != 10.5 {
		t.Errorf("row 0 parsed wrong: %+v", examples[0])
	}
	if !math.IsNaN(examples[2].Features[0]) {
		t.Errorf("empty cell should load as NaN, got %g", examples[2].Features[0])
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.csv"))
	if !errors.Is(err, ErrDataLoad) {
		t.Errorf("expected ErrDataLoad, got %v", err)
	}
}

func TestLoadMissingColumn(t *testing.T) {
	t.Parallel()

	path := writeCSV(t, `orbital_period,transit_duration,planet_radius,label
10.5,3.2,2.1,CONFIRMED
`)
	_, err := Load(path)
	var schemaErr *schema.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected *SchemaError, got %v", err)
	}
	if len(schemaErr.MissingColumns) != 1 || schemaErr.MissingColumns[0] != schema.FeatureTransitDepth {
		t.Errorf("expected [transit_depth], got %v", schemaErr.MissingColumns)
	}
}

func TestCleanDropsIncompleteRows(t *testing.T) {
	t.Parallel()

	examples := []LabeledExample{
		{Features: []float64{1, 2, 3, 4}, Label: "CONFIRMED"},
		{Features: []float64{1, math.NaN(), 3, 4}, Label: "CONFIRMED"},
		{Features: []float64{1, 2, 3, 4}, Label: "MAYBE"},
		{Features: []float64{1, 2, 3, 4}, Label: ""},
		{Features: []float64{5, 6, 7, 8}, Label: "CANDIDATE"},
	}
	kept, dropped := Clean(examples)
	if len(kept) != 2 || dropped != 3 {
		t.Errorf("expected 2 kept / 3 dropped, got %d / %d", len(kept), dropped)
	}
}

func TestStratifiedSplitPreservesProportions(t *testing.T) {
	t.Parallel()

	var examples []LabeledExample
	counts := map[string]int{"CANDIDATE": 50, "CONFIRMED": 30, "FALSE POSITIVE": 20}
	for label, n := range counts {
		for i := 0; i < n; i++ {
			examples = append(examples, LabeledExample{
				Features: []float64{float64(i), 0, 0, 0},
				Label:    label,
			})
		}
	}

	train, eval, err := StratifiedSplit(examples, 0.2, 42)
	if err != nil {
		t.Fatal(err)
	}
	if len(train)+len(eval) != 100 {
		t.Fatalf("partition lost rows: %d + %d", len(train), len(eval))
	}

	evalCounts := map[string]int{}
	for _, ex := range eval {
		evalCounts[ex.Label]++
	}
	for label, n := range counts {
		want := n / 5
		if evalCounts[label] != want {
			t.Errorf("%s: expected %d eval rows, got %d", label, want, evalCounts[label])
		}
	}
}

func TestStratifiedSplitDeterminism(t *testing.T) {
	t.Parallel()

	var examples []LabeledExample
	for i := 0; i < 60; i++ {
		label := "CANDIDATE"
		if i%2 == 0 {
			label = "CONFIRMED"
		}
		examples = append(examples, LabeledExample{
			Features: []float64{float64(i), 0, 0, 0},
			Label:    label,
		})
	}

	_, eval1, err := StratifiedSplit(examples, 0.2, 42)
	if err != nil {
		t.Fatal(err)
	}
	_, eval2, err := StratifiedSplit(examples, 0.2, 42)
	if err != nil {
		t.Fatal(err)
	}
	for i := range eval1 {
		if eval1[i].Features[0] != eval2[i].Features[0] {
			t.Fatalf("same seed produced different partitions at row %d", i)
		}
	}

	_, eval3, err := StratifiedSplit(examples, 0.2, 43)
	if err != nil {
		t.Fatal(err)
	}
	same := true
	for i := range eval1 {
		if eval1[i].Features[0] != eval3[i].Features[0] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical partitions")
	}
}

func TestStratifiedSplitRejectsBadFraction(t *testing.T) {
	t.Parallel()

	examples := []LabeledExample{{Features: []float64{1, 2, 3, 4}, Label: "CONFIRMED"}}
	if _, _, err := StratifiedSplit(examples, 0, 1); err == nil {
		t.Error("expected error for zero fraction")
	}
	if _, _, err := StratifiedSplit(examples, 1, 1); err == nil {
		t.Error("expected error for fraction 1")
	}
}
