package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"exoclass/internal/cfg"
	"exoclass/internal/dataset"
	"exoclass/internal/evaluate"
	"exoclass/internal/forest"
	"exoclass/internal/preprocess"
	"exoclass/internal/schema"
)

// MetricsArtifact is the persisted evaluation report. Field names and
// shapes are a contract with front-end consumers, which read it as-is.
type MetricsArtifact struct {
	Report          evaluate.Report `json:"report"`
	ConfusionMatrix [][]int         `json:"confusion_matrix"`
	Features        []string        `json:"features"`
	Labels          []string        `json:"labels"`
}

// Result summarizes a completed training run.
type Result struct {
	Metrics   MetricsArtifact
	MacroF1   float64
	TrainRows int
	EvalRows  int
	Dropped   int
}

// Run executes one training invocation end to end: load, clean, split,
// fit transform and forest, evaluate, persist. Any failure aborts the
// run before anything is written; the model artifact and the metrics
// document only appear together, after a fully successful run.
func Run(s cfg.Settings) (*Result, error) {
	examples, err := dataset.Load(s.DataPath)
	if err != nil {
		return nil, err
	}

	clean, dropped := dataset.Clean(examples)
	if len(clean) == 0 {
		return nil, fmt.Errorf("%w: every row of %s was dropped (missing features or labels)", dataset.ErrDataLoad, s.DataPath)
	}
	if dropped*2 > len(examples) {
		log.Warn().
			Int("dropped", dropped).
			Int("total", len(examples)).
			Msg("more than half of the input rows were dropped for missing values; check data quality upstream")
	}

	train, eval, err := dataset.StratifiedSplit(clean, s.TestFraction, s.Seed)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int("train_rows", len(train)).
		Int("eval_rows", len(eval)).
		Int("dropped_rows", dropped).
		Msg("dataset partitioned")

	trainX, trainY := dataset.Vectors(train)
	evalX, evalY := dataset.Vectors(eval)

	// Transform statistics come from the training split only; the
	// evaluation split is scored with them, never folded in.
	transform, err := preprocess.Fit(trainX)
	if err != nil {
		return nil, fmt.Errorf("fit preprocessing: %w", err)
	}
	trainXt, err := transform.Apply(trainX)
	if err != nil {
		return nil, err
	}
	evalXt, err := transform.Apply(evalX)
	if err != nil {
		return nil, err
	}

	forestCfg := forest.Config{
		Trees:    s.Trees,
		MaxDepth: s.MaxDepth,
		MinLeaf:  s.MinLeaf,
		Seed:     s.Seed,
	}
	started := time.Now()
	model, err := forest.Fit(trainXt, trainY, forestCfg)
	if err != nil {
		return nil, fmt.Errorf("fit classifier: %w", err)
	}
	log.Info().
		Int("trees", forestCfg.Trees).
		Dur("elapsed", time.Since(started)).
		Msg("classifier fitted")

	predicted := make([]string, len(evalXt))
	for i, vec := range evalXt {
		predicted[i], err = model.Predict(vec)
		if err != nil {
			return nil, fmt.Errorf("evaluate row %d: %w", i, err)
		}
	}

	matrix, err := evaluate.ConfusionMatrix(evalY, predicted, model.Classes())
	if err != nil {
		return nil, err
	}
	report := evaluate.ClassificationReport(matrix, model.Classes())

	metrics := MetricsArtifact{
		Report:          report,
		ConfusionMatrix: matrix,
		Features:        schema.FeatureNames(),
		Labels:          model.Classes(),
	}

	artifact := &Artifact{
		Transform: transform,
		Model:     model,
		Features:  schema.FeatureNames(),
		Classes:   model.Classes(),
		TrainedAt: time.Now().UTC(),
		TrainRows: len(train),
	}
	if err := Save(artifact, s.ArtifactPath); err != nil {
		return nil, err
	}
	if err := writeMetrics(metrics, s.MetricsPath); err != nil {
		return nil, err
	}

	macroF1 := report[evaluate.MacroAvgKey].F1Score
	log.Info().
		Float64("macro_f1", macroF1).
		Str("model", s.ArtifactPath).
		Str("metrics", s.MetricsPath).
		Msg("training run complete")

	return &Result{
		Metrics:   metrics,
		MacroF1:   macroF1,
		TrainRows: len(train),
		EvalRows:  len(eval),
		Dropped:   dropped,
	}, nil
}

// writeMetrics persists the metrics document with the same
// temp-and-rename discipline as the model artifact.
func writeMetrics(m MetricsArtifact, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	payload, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "metrics-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp metrics: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write metrics: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp metrics: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename metrics into place: %w", err)
	}
	return nil
}

// ReadMetrics loads a previously written metrics artifact, for
// consumers that surface it read-only.
func ReadMetrics(path string) (*MetricsArtifact, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metrics %s: %w", path, err)
	}
	var m MetricsArtifact
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("parse metrics %s: %w", path, err)
	}
	return &m, nil
}
