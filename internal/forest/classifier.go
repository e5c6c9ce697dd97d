package forest

// Classifier predicts a single disposition for a feature vector.
type Classifier interface {
	Predict(vec []float64) (string, error)
	Classes() []string
}

// ProbabilisticClassifier additionally exposes a calibrated class
// distribution. Callers that hold only a Classifier must fall back to
// an explicitly labeled degraded mode rather than probing for the
// method at runtime.
type ProbabilisticClassifier interface {
	Classifier
	PredictProba(vec []float64) ([]float64, error)
}
