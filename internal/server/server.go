// Package server exposes the inference service over HTTP: point and
// batch prediction, model and training-metrics introspection, health,
// Prometheus metrics, and a websocket feed of prediction events for
// live front-ends.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"exoclass/internal/forest"
	"exoclass/internal/pipeline"
	"exoclass/internal/predict"
	"exoclass/internal/schema"
	"exoclass/internal/storage"
)

// Server serves the classifier HTTP API.
type Server struct {
	svc         *predict.Service
	metricsPath string
	audit       *storage.Store
	httpServer  *http.Server
	hub         *streamHub
}

// New wires the routes. metricsPath points at the training metrics
// artifact, surfaced read-only; audit may be nil.
func New(svc *predict.Service, metricsPath string, audit *storage.Store, port int) *Server {
	s := &Server{
		svc:         svc,
		metricsPath: metricsPath,
		audit:       audit,
		hub:         newStreamHub(),
	}
	svc.Subscribe(s.hub.broadcast)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/predict", s.handlePredict)
	mux.HandleFunc("/api/v1/predict/batch", s.handlePredictBatch)
	mux.HandleFunc("/api/v1/model", s.handleModelInfo)
	mux.HandleFunc("/api/v1/metrics", s.handleTrainingMetrics)
	mux.HandleFunc("/api/v1/audit/export", s.handleAuditExport)
	mux.HandleFunc("/api/v1/stream", s.handleStream)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving. Blocks until the listener fails or Stop is
// called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("inference server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.close()
	return s.httpServer.Shutdown(ctx)
}

// pointRequest is the JSON body of a point prediction: the four
// features by name. Pointers distinguish absent fields from zeros.
type pointRequest struct {
	OrbitalPeriod   *float64 `json:"orbital_period"`
	TransitDuration *float64 `json:"transit_duration"`
	TransitDepth    *float64 `json:"transit_depth"`
	PlanetRadius    *float64 `json:"planet_radius"`
}

func (r pointRequest) row() schema.Row {
	row := schema.Row{}
	if r.OrbitalPeriod != nil {
		row[schema.FeatureOrbitalPeriod] = *r.OrbitalPeriod
	}
	if r.TransitDuration != nil {
		row[schema.FeatureTransitDuration] = *r.TransitDuration
	}
	if r.TransitDepth != nil {
		row[schema.FeatureTransitDepth] = *r.TransitDepth
	}
	if r.PlanetRadius != nil {
		row[schema.FeaturePlanetRadius] = *r.PlanetRadius
	}
	return row
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req pointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}

	result, err := s.svc.One(req.row())
	if err != nil {
		s.writePredictionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	artifact, err := s.svc.Artifact()
	if err != nil {
		s.writePredictionError(w, err)
		return
	}
	info := map[string]interface{}{
		"features":   artifact.Features,
		"classes":    artifact.Classes,
		"trained_at": artifact.TrainedAt,
		"train_rows": artifact.TrainRows,
	}
	if f, ok := artifact.Model.(*forest.Forest); ok {
		info["trees"] = len(f.Trees)
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleTrainingMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := pipeline.ReadMetrics(s.metricsPath)
	if err != nil {
		writeError(w, http.StatusNotFound, "no training metrics available - run the trainer first")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.svc.Warm(); err != nil {
		status = err.Error()
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

// writePredictionError maps the error taxonomy to HTTP statuses:
// schema violations are the caller's fault, a missing artifact is an
// operator problem, a corrupt one needs retraining.
func (s *Server) writePredictionError(w http.ResponseWriter, err error) {
	var schemaErr *schema.SchemaError
	switch {
	case errors.As(err, &schemaErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":           schemaErr.Error(),
			"missing_columns": schemaErr.MissingColumns,
			"invalid_columns": schemaErr.InvalidColumns,
		})
	case errors.Is(err, pipeline.ErrMissingArtifact):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, pipeline.ErrCorruptArtifact):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Error().Err(err).Msg("prediction failed")
		writeError(w, http.StatusInternalServerError, "prediction failed")
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("response encode failed")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
