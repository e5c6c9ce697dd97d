// Package predict is the inference side of the classifier: it loads
// the persisted model artifact exactly once per process and serves
// point and batch predictions from the frozen transform and forest.
// The loaded artifact is immutable, so any number of calls may run
// concurrently without locking.
package predict

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"exoclass/internal/forest"
	"exoclass/internal/pipeline"
	"exoclass/internal/schema"
	"exoclass/internal/storage"
)

// Tier labels for the winning-class confidence. Thresholds come from
// configuration; the names are part of the response contract.
const (
	TierHigh   = "High"
	TierMedium = "Medium"
	TierLow    = "Low"
)

// MetricsSink is the slice of instrumentation the service needs.
// Decoupled from the Prometheus types so tests can pass a mock.
type MetricsSink interface {
	PredictionsInc()
	BatchesInc()
	FailuresInc()
	SchemaRejectionsInc()
	LatencyObserve(seconds float64)
	BatchSizeObserve(rows float64)
	ConfidenceObserve(score float64)
	ModelAgeSet(seconds float64)
	DegradedModeSet(v float64)
	AuditFailuresInc()
}

// Result is the outcome for one row: the full class distribution in
// canonical class order, the argmax class, and its confidence tier.
// Degraded marks uniform-probability fallback output from a classifier
// without probability support.
type Result struct {
	Prediction    string    `json:"prediction"`
	Classes       []string  `json:"classes"`
	Probabilities []float64 `json:"probabilities"`
	Confidence    float64   `json:"confidence"`
	Tier          string    `json:"tier"`
	Degraded      bool      `json:"degraded,omitempty"`
}

// Listener receives every audit record as it is produced, e.g. to feed
// a live dashboard stream. Listeners must not block.
type Listener func(storage.AuditRecord)

// Options configures a Service.
type Options struct {
	ArtifactPath     string
	HighConfidence   float64
	MediumConfidence float64
	Metrics          MetricsSink
	Audit            *storage.Store // optional; nil disables the audit side effect
}

// Service serves predictions from a lazily loaded, cached artifact.
// The sync.Once guarantees a single load shared by all callers: a
// successful load is reused for the process lifetime, and a failed
// load is surfaced to every caller rather than cached as a nil model.
type Service struct {
	opts     Options
	loadOnce sync.Once
	artifact *pipeline.Artifact
	loadErr  error

	mu        sync.RWMutex
	listeners []Listener
}

// New creates a Service. The artifact is not touched until the first
// prediction (or an explicit Warm call).
func New(opts Options) *Service {
	if opts.HighConfidence == 0 {
		opts.HighConfidence = 0.75
	}
	if opts.MediumConfidence == 0 {
		opts.MediumConfidence = 0.55
	}
	return &Service{opts: opts}
}

// Warm forces the artifact load so startup can fail fast instead of
// surfacing the error on the first request.
func (s *Service) Warm() error {
	_, err := s.loaded()
	return err
}

// Artifact returns the loaded bundle for read-only introspection
// (model info endpoints, export).
func (s *Service) Artifact() (*pipeline.Artifact, error) {
	return s.loaded()
}

func (s *Service) loaded() (*pipeline.Artifact, error) {
	s.loadOnce.Do(func() {
		s.artifact, s.loadErr = pipeline.LoadArtifact(s.opts.ArtifactPath)
		if s.loadErr != nil {
			log.Error().Err(s.loadErr).Str("path", s.opts.ArtifactPath).Msg("model artifact load failed")
			return
		}
		if s.opts.Metrics != nil {
			s.opts.Metrics.ModelAgeSet(time.Since(s.artifact.TrainedAt).Seconds())
			if _, ok := s.artifact.Model.(forest.ProbabilisticClassifier); !ok {
				s.opts.Metrics.DegradedModeSet(1)
			}
		}
		log.Info().
			Str("path", s.opts.ArtifactPath).
			Time("trained_at", s.artifact.TrainedAt).
			Int("train_rows", s.artifact.TrainRows).
			Strs("classes", s.artifact.Classes).
			Msg("model artifact loaded")
	})
	return s.artifact, s.loadErr
}

// One validates a single row against the feature contract and scores
// it with the frozen transform and classifier.
func (s *Service) One(row schema.Row) (*Result, error) {
	started := time.Now()
	res, err := s.scoreOne(row)
	if s.opts.Metrics != nil {
		s.opts.Metrics.LatencyObserve(time.Since(started).Seconds())
		if err != nil {
			s.opts.Metrics.FailuresInc()
		} else {
			s.opts.Metrics.PredictionsInc()
			s.opts.Metrics.ConfidenceObserve(res.Confidence)
		}
	}
	if err != nil {
		return nil, err
	}
	s.audit("point", "", []schema.Row{row}, []*Result{res})
	return res, nil
}

func (s *Service) scoreOne(row schema.Row) (*Result, error) {
	if err := schema.Validate(row); err != nil {
		if s.opts.Metrics != nil {
			s.opts.Metrics.SchemaRejectionsInc()
		}
		return nil, err
	}
	artifact, err := s.loaded()
	if err != nil {
		return nil, err
	}

	vec, err := artifact.Transform.ApplyOne(row.Vector())
	if err != nil {
		return nil, fmt.Errorf("apply transform: %w", err)
	}
	return classify(artifact, vec, s.opts.HighConfidence, s.opts.MediumConfidence)
}

// Batch scores all rows or none: any row failing schema validation
// fails the whole call with a SchemaError naming the offending
// columns, and nothing is scored or persisted.
func (s *Service) Batch(rows []schema.Row) ([]*Result, error) {
	started := time.Now()
	results, err := s.scoreBatch(rows)
	if s.opts.Metrics != nil {
		s.opts.Metrics.LatencyObserve(time.Since(started).Seconds())
		if err != nil {
			s.opts.Metrics.FailuresInc()
		} else {
			s.opts.Metrics.BatchesInc()
			s.opts.Metrics.BatchSizeObserve(float64(len(rows)))
		}
	}
	if err != nil {
		return nil, err
	}
	batchID := fmt.Sprintf("batch-%d", started.UnixNano())
	s.audit("batch", batchID, rows, results)
	return results, nil
}

func (s *Service) scoreBatch(rows []schema.Row) ([]*Result, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	for _, row := range rows {
		if err := schema.Validate(row); err != nil {
			if s.opts.Metrics != nil {
				s.opts.Metrics.SchemaRejectionsInc()
			}
			return nil, err
		}
	}
	artifact, err := s.loaded()
	if err != nil {
		return nil, err
	}

	results := make([]*Result, len(rows))
	for i, row := range rows {
		vec, err := artifact.Transform.ApplyOne(row.Vector())
		if err != nil {
			return nil, fmt.Errorf("apply transform to row %d: %w", i, err)
		}
		results[i], err = classify(artifact, vec, s.opts.HighConfidence, s.opts.MediumConfidence)
		if err != nil {
			return nil, fmt.Errorf("score row %d: %w", i, err)
		}
	}
	return results, nil
}

// classify runs the classifier on a transformed vector. A classifier
// without probability support yields an explicitly degraded uniform
// distribution over its argmax-free prediction.
func classify(artifact *pipeline.Artifact, vec []float64, high, medium float64) (*Result, error) {
	classes := artifact.Classes

	if prob, ok := artifact.Model.(forest.ProbabilisticClassifier); ok {
		proba, err := prob.PredictProba(vec)
		if err != nil {
			return nil, err
		}
		best := forest.Argmax(proba)
		confidence := proba[best]
		return &Result{
			Prediction:    classes[best],
			Classes:       classes,
			Probabilities: proba,
			Confidence:    confidence,
			Tier:          tier(confidence, high, medium),
		}, nil
	}

	prediction, err := artifact.Model.Predict(vec)
	if err != nil {
		return nil, err
	}
	uniform := make([]float64, len(classes))
	for i := range uniform {
		uniform[i] = 1 / float64(len(classes))
	}
	confidence := uniform[0]
	return &Result{
		Prediction:    prediction,
		Classes:       classes,
		Probabilities: uniform,
		Confidence:    confidence,
		Tier:          tier(confidence, high, medium),
		Degraded:      true,
	}, nil
}

func tier(confidence, high, medium float64) string {
	switch {
	case confidence >= high:
		return TierHigh
	case confidence >= medium:
		return TierMedium
	default:
		return TierLow
	}
}

// Subscribe registers a listener for audit records.
func (s *Service) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// audit persists scored rows and notifies listeners. Runs in the
// background; a failed write is logged and counted, never returned to
// the prediction caller.
func (s *Service) audit(source, batchID string, rows []schema.Row, results []*Result) {
	s.mu.RLock()
	listeners := s.listeners
	s.mu.RUnlock()
	if s.opts.Audit == nil && len(listeners) == 0 {
		return
	}

	records := make([]storage.AuditRecord, len(rows))
	now := time.Now().UTC()
	for i, row := range rows {
		probs := make(map[string]float64, len(results[i].Classes))
		for c, class := range results[i].Classes {
			probs[class] = results[i].Probabilities[c]
		}
		input := make(map[string]float64, len(row))
		for k, v := range row {
			input[k] = v
		}
		records[i] = storage.AuditRecord{
			Timestamp:     now,
			Source:        source,
			BatchID:       batchID,
			Input:         input,
			Prediction:    results[i].Prediction,
			Probabilities: probs,
			Confidence:    results[i].Confidence,
			Tier:          results[i].Tier,
			Degraded:      results[i].Degraded,
		}
	}

	for _, rec := range records {
		for _, l := range listeners {
			l(rec)
		}
	}

	if s.opts.Audit == nil {
		return
	}
	go func() {
		if err := s.opts.Audit.StoreBatch(records); err != nil {
			log.Warn().Err(err).Int("records", len(records)).Msg("audit write failed")
			if s.opts.Metrics != nil {
				s.opts.Metrics.AuditFailuresInc()
			}
		}
	}()
}
