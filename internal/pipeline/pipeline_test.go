package pipeline

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exoclass/internal/cfg"
	"exoclass/internal/evaluate"
	"exoclass/internal/forest"
	"exoclass/internal/schema"
)

// writeSyntheticDataset writes a balanced 100-row labeled CSV with
// well-separated class clusters.
func writeSyntheticDataset(t *testing.T, dir string, rows int) string {
	t.Helper()
	rng := rand.New(rand.NewSource(99))
	centers := map[string][]float64{
		schema.LabelCandidate:     {10, 3, 500, 2},
		schema.LabelConfirmed:     {120, 11, 6000, 12},
		schema.LabelFalsePositive: {1, 0.8, 40, 0.4},
	}

	var b strings.Builder
	b.WriteString("orbital_period,transit_duration,transit_depth,planet_radius,label\n")
	perClass := rows / len(centers)
	for _, label := range schema.Labels() {
		center := centers[label]
		for i := 0; i < perClass; i++ {
			for f, c := range center {
				if f > 0 {
					b.WriteString(",")
				}
				fmt.Fprintf(&b, "%g", c*(1+0.05*rng.NormFloat64()))
			}
			b.WriteString("," + label + "\n")
		}
	}

	path := filepath.Join(dir, "exoplanets.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func testSettings(t *testing.T, dataPath string) cfg.Settings {
	t.Helper()
	dir := t.TempDir()
	return cfg.Settings{
		DataPath:         dataPath,
		ArtifactPath:     filepath.Join(dir, "model.gob"),
		MetricsPath:      filepath.Join(dir, "metrics.json"),
		Trees:            30,
		MaxDepth:         8,
		MinLeaf:          1,
		Seed:             42,
		TestFraction:     0.2,
		HighConfidence:   0.75,
		MediumConfidence: 0.55,
	}
}

func TestRunEndToEnd(t *testing.T) {
	dataPath := writeSyntheticDataset(t, t.TempDir(), 99)
	settings := testSettings(t, dataPath)

	result, err := Run(settings)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Dropped)
	assert.Greater(t, result.MacroF1, 0.9, "separable clusters should evaluate near perfectly")

	// Confusion matrix cells sum to the evaluation split size.
	total := 0
	for _, row := range result.Metrics.ConfusionMatrix {
		for _, cell := range row {
			total += cell
		}
	}
	assert.Equal(t, result.EvalRows, total)

	// Metrics artifact carries the schema it was trained under.
	assert.Equal(t, schema.FeatureNames(), result.Metrics.Features)
	assert.Equal(t, schema.Labels(), result.Metrics.Labels)
	assert.Contains(t, result.Metrics.Report, evaluate.MacroAvgKey)
	for _, label := range schema.Labels() {
		assert.Contains(t, result.Metrics.Report, label)
	}

	// Both artifacts landed.
	_, err = os.Stat(settings.ArtifactPath)
	require.NoError(t, err)
	m, err := ReadMetrics(settings.MetricsPath)
	require.NoError(t, err)
	assert.Equal(t, result.Metrics.Labels, m.Labels)
}

func TestRunDeterminism(t *testing.T) {
	dataPath := writeSyntheticDataset(t, t.TempDir(), 99)

	r1, err := Run(testSettings(t, dataPath))
	require.NoError(t, err)
	r2, err := Run(testSettings(t, dataPath))
	require.NoError(t, err)

	assert.InDelta(t, r1.MacroF1, r2.MacroF1, 1e-12,
		"same data and seed must reproduce the same evaluation")
	assert.Equal(t, r1.Metrics.ConfusionMatrix, r2.Metrics.ConfusionMatrix)
}

func TestRunMissingFileWritesNothing(t *testing.T) {
	settings := testSettings(t, filepath.Join(t.TempDir(), "absent.csv"))

	_, err := Run(settings)
	require.Error(t, err)

	_, statErr := os.Stat(settings.ArtifactPath)
	assert.True(t, os.IsNotExist(statErr), "failed run must not write a model artifact")
	_, statErr = os.Stat(settings.MetricsPath)
	assert.True(t, os.IsNotExist(statErr), "failed run must not write a metrics artifact")
}

func TestArtifactRoundTrip(t *testing.T) {
	dataPath := writeSyntheticDataset(t, t.TempDir(), 99)
	settings := testSettings(t, dataPath)
	_, err := Run(settings)
	require.NoError(t, err)

	a1, err := LoadArtifact(settings.ArtifactPath)
	require.NoError(t, err)
	a2, err := LoadArtifact(settings.ArtifactPath)
	require.NoError(t, err)

	assert.Equal(t, schema.Labels(), a1.Classes, "class ordering must persist explicitly")
	assert.Equal(t, a1.Classes, a2.Classes)

	// Two independent loads score the same row bit-identically.
	vec, err := a1.Transform.ApplyOne([]float64{10, 3, 500, 2})
	require.NoError(t, err)
	vec2, err := a2.Transform.ApplyOne([]float64{10, 3, 500, 2})
	require.NoError(t, err)

	m1, ok := a1.Model.(forest.ProbabilisticClassifier)
	require.True(t, ok, "persisted forest must keep probability support")
	m2 := a2.Model.(forest.ProbabilisticClassifier)

	p1, err := m1.PredictProba(vec)
	require.NoError(t, err)
	p2, err := m2.PredictProba(vec2)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

func TestLoadArtifactMissing(t *testing.T) {
	_, err := LoadArtifact(filepath.Join(t.TempDir(), "model.gob"))
	assert.ErrorIs(t, err, ErrMissingArtifact)
}

func TestLoadArtifactCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, os.WriteFile(path, []byte("not a gob stream"), 0o644))

	_, err := LoadArtifact(path)
	assert.ErrorIs(t, err, ErrCorruptArtifact)
}

func TestDataQualityWarningThreshold(t *testing.T) {
	// Most rows missing a feature: the run proceeds (warning only) as
	// long as enough complete rows remain to split and fit.
	var b strings.Builder
	b.WriteString("orbital_period,transit_duration,transit_depth,planet_radius,label\n")
	for i := 0; i < 40; i++ {
		b.WriteString(",3,500,2,CANDIDATE\n") // missing orbital_period
	}
	rng := rand.New(rand.NewSource(5))
	for _, label := range schema.Labels() {
		for i := 0; i < 10; i++ {
			fmt.Fprintf(&b, "%g,%g,%g,%g,%s\n",
				10+rng.Float64(), 3+rng.Float64(), 500+rng.Float64(), 2+rng.Float64(), label)
		}
	}
	dataPath := filepath.Join(t.TempDir(), "sparse.csv")
	require.NoError(t, os.WriteFile(dataPath, []byte(b.String()), 0o644))

	result, err := Run(testSettings(t, dataPath))
	require.NoError(t, err, "quality warning must not abort the run")
	assert.Equal(t, 40, result.Dropped)
}
