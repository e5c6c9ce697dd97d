// Package pipeline orchestrates training runs and owns the persisted
// model artifact contract: one gob blob bundling the fitted transform,
// the classifier and the class ordering, written atomically and loaded
// read-only by every inference process.
package pipeline

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"exoclass/internal/forest"
	"exoclass/internal/preprocess"
)

// ErrMissingArtifact means no trained model exists at the configured
// path. The operator must run training first; there is no silent
// fallback model.
var ErrMissingArtifact = errors.New("no trained model found - run the trainer first")

// ErrCorruptArtifact means the artifact file exists but cannot be
// decoded. Retraining rewrites it.
var ErrCorruptArtifact = errors.New("model artifact is corrupt - retrain to regenerate it")

// Artifact is the persisted model bundle. Classes duplicates the
// classifier's fit-time ordering as explicit metadata: probability
// arrays are positional, and consumers (including the portable export)
// must never depend on incidental agreement between training and
// inference code. Immutable once written.
type Artifact struct {
	Transform *preprocess.Transform
	Model     forest.Classifier
	Features  []string
	Classes   []string
	TrainedAt time.Time
	TrainRows int
}

func init() {
	gob.Register(&forest.Forest{})
}

// Save writes the artifact atomically: encode to a temp file in the
// target directory, then rename over the destination. A concurrent
// reader sees either the old artifact or the new one, never a torn
// write.
func Save(a *Artifact, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "model-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()

	if err := gob.NewEncoder(tmp).Encode(a); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename artifact into place: %w", err)
	}
	return nil
}

// LoadArtifact reads and decodes the model bundle. The artifact is
// treated as read-only from here on; concurrent loads in separate
// processes each get an independent copy.
func LoadArtifact(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w (looked at %s)", ErrMissingArtifact, path)
		}
		return nil, fmt.Errorf("open artifact %s: %w", path, err)
	}
	defer f.Close()

	var a Artifact
	if err := gob.NewDecoder(f).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrCorruptArtifact, path, err)
	}
	if a.Model == nil || a.Transform == nil || len(a.Classes) == 0 {
		return nil, fmt.Errorf("%w: %s is missing required sections", ErrCorruptArtifact, path)
	}
	return &a, nil
}
