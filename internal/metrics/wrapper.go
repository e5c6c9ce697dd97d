package metrics

// Wrapper adapts Metrics to the narrow sink interface the predict
// package consumes, keeping Prometheus types out of the inference path.
type Wrapper struct {
	m *Metrics
}

// NewWrapper creates a wrapper around the given metrics.
func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) PredictionsInc()                { w.m.PredictionsTotal.Inc() }
func (w *Wrapper) BatchesInc()                    { w.m.BatchesTotal.Inc() }
func (w *Wrapper) FailuresInc()                   { w.m.PredictionFailures.Inc() }
func (w *Wrapper) SchemaRejectionsInc()           { w.m.SchemaRejections.Inc() }
func (w *Wrapper) LatencyObserve(seconds float64) { w.m.PredictionLatency.Observe(seconds) }
func (w *Wrapper) BatchSizeObserve(rows float64)  { w.m.BatchSize.Observe(rows) }
func (w *Wrapper) ConfidenceObserve(s float64)    { w.m.ConfidenceScores.Observe(s) }
func (w *Wrapper) ModelAgeSet(seconds float64)    { w.m.ModelAge.Set(seconds) }
func (w *Wrapper) DegradedModeSet(v float64)      { w.m.DegradedMode.Set(v) }
func (w *Wrapper) AuditFailuresInc()              { w.m.AuditWriteFailures.Inc() }
