package schema

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestFeatureNamesOrder(t *testing.T) {
	t.Parallel()

	names := FeatureNames()
	want := []string{"orbital_period", "transit_duration", "transit_depth", "planet_radius"}
	if len(names) != len(want) {
		t.Fatalf("expected %d features, got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("feature %d: expected %s, got %s", i, want[i], names[i])
		}
	}
}

func TestLabelsCanonicalOrder(t *testing.T) {
	t.Parallel()

	labels := Labels()
	want := []string{"CANDIDATE", "CONFIRMED", "FALSE POSITIVE"}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("label %d: expected %s, got %s", i, want[i], labels[i])
		}
	}
}

func TestValidateMissingColumn(t *testing.T) {
	t.Parallel()

	row := Row{
		FeatureOrbitalPeriod:   10.0,
		FeatureTransitDuration: 3.0,
		FeaturePlanetRadius:    2.0,
	}
	err := Validate(row)
	if err == nil {
		t.Fatal("expected error for missing transit_depth")
	}
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected *SchemaError, got %T", err)
	}
	if len(schemaErr.MissingColumns) != 1 || schemaErr.MissingColumns[0] != FeatureTransitDepth {
		t.Errorf("expected missing columns [transit_depth], got %v", schemaErr.MissingColumns)
	}
	if !strings.Contains(err.Error(), "transit_depth") {
		t.Errorf("error message should name the column: %s", err.Error())
	}
}

func TestValidateAllowsNaN(t *testing.T) {
	t.Parallel()

	// NaN means missing measurement; the imputer handles it later.
	row := Row{
		FeatureOrbitalPeriod:   math.NaN(),
		FeatureTransitDuration: 3.0,
		FeatureTransitDepth:    500.0,
		FeaturePlanetRadius:    2.0,
	}
	if err := Validate(row); err != nil {
		t.Errorf("NaN values should validate, got %v", err)
	}
}

func TestValidateRejectsInf(t *testing.T) {
	t.Parallel()

	row := Row{
		FeatureOrbitalPeriod:   math.Inf(1),
		FeatureTransitDuration: 3.0,
		FeatureTransitDepth:    500.0,
		FeaturePlanetRadius:    2.0,
	}
	err := Validate(row)
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected *SchemaError for Inf, got %v", err)
	}
	if len(schemaErr.InvalidColumns) != 1 || schemaErr.InvalidColumns[0] != FeatureOrbitalPeriod {
		t.Errorf("expected invalid columns [orbital_period], got %v", schemaErr.InvalidColumns)
	}
}

func TestValidateColumns(t *testing.T) {
	t.Parallel()

	header := []string{"orbital_period", "transit_duration", "planet_radius", "extra", "label"}
	err := ValidateColumns(header)
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected *SchemaError, got %v", err)
	}
	if len(schemaErr.MissingColumns) != 1 || schemaErr.MissingColumns[0] != FeatureTransitDepth {
		t.Errorf("expected [transit_depth], got %v", schemaErr.MissingColumns)
	}

	full := []string{"planet_radius", "transit_depth", "transit_duration", "orbital_period"}
	if err := ValidateColumns(full); err != nil {
		t.Errorf("column order should not matter, got %v", err)
	}
}

func TestParseValue(t *testing.T) {
	t.Parallel()

	v, err := ParseValue("transit_depth", "")
	if err != nil {
		t.Fatalf("empty cell should parse as missing: %v", err)
	}
	if !math.IsNaN(v) {
		t.Errorf("empty cell should be NaN, got %g", v)
	}

	v, err = ParseValue("transit_depth", " 500.5 ")
	if err != nil || v != 500.5 {
		t.Errorf("expected 500.5, got %g (%v)", v, err)
	}

	if _, err := ParseValue("transit_depth", "abc"); err == nil {
		t.Error("expected error for non-numeric cell")
	}
}

func TestVectorRoundTrip(t *testing.T) {
	t.Parallel()

	row := Row{
		FeatureOrbitalPeriod:   10.0,
		FeatureTransitDuration: 3.0,
		FeatureTransitDepth:    500.0,
		FeaturePlanetRadius:    2.0,
	}
	vec := row.Vector()
	back, err := RowFromVector(vec)
	if err != nil {
		t.Fatal(err)
	}
	for name, v := range row {
		if back[name] != v {
			t.Errorf("%s: expected %g, got %g", name, v, back[name])
		}
	}
}
