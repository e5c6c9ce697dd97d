package server

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"

	"exoclass/internal/schema"
)

// handlePredictBatch scores a table. A text/csv body round-trips as
// CSV with `prediction` and `proba_<class>` columns appended and all
// input columns passed through; a JSON body returns a JSON result
// array. Either way the batch is all-or-nothing: one bad row and
// nothing is scored or written.
func (s *Server) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/csv") {
		s.batchCSV(w, r)
		return
	}
	s.batchJSON(w, r)
}

func (s *Server) batchJSON(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rows []pointRequest `json:"rows"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	rows := make([]schema.Row, len(req.Rows))
	for i, pr := range req.Rows {
		rows[i] = pr.row()
	}

	results, err := s.svc.Batch(rows)
	if err != nil {
		s.writePredictionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (s *Server) batchCSV(w http.ResponseWriter, r *http.Request) {
	header, records, err := readCSVTable(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := schema.ValidateColumns(header); err != nil {
		s.writePredictionError(w, err)
		return
	}

	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[strings.TrimSpace(col)] = i
	}

	rows := make([]schema.Row, len(records))
	for i, record := range records {
		row := schema.Row{}
		for _, name := range schema.FeatureNames() {
			v, err := schema.ParseValue(name, record[colIndex[name]])
			if err != nil {
				s.writePredictionError(w, err)
				return
			}
			row[name] = v
		}
		rows[i] = row
	}

	results, err := s.svc.Batch(rows)
	if err != nil {
		s.writePredictionError(w, err)
		return
	}

	// Output only materializes after the whole batch scored.
	classes := results[0].Classes
	w.Header().Set("Content-Type", "text/csv")
	out := csv.NewWriter(w)

	outHeader := append(append([]string{}, header...), "prediction")
	for _, class := range classes {
		outHeader = append(outHeader, "proba_"+class)
	}
	if err := out.Write(outHeader); err != nil {
		return
	}
	for i, record := range records {
		line := append(append([]string{}, record...), results[i].Prediction)
		for _, p := range results[i].Probabilities {
			line = append(line, fmt.Sprintf("%g", p))
		}
		if err := out.Write(line); err != nil {
			return
		}
	}
	out.Flush()
}

func readCSVTable(r io.Reader) (header []string, records [][]string, err error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err = reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read CSV header: %w", err)
	}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read CSV row %d: %w", len(records)+2, err)
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("CSV body has no data rows")
	}
	return header, records, nil
}

// auditExportRow is the fixed-column CSV shape of one audit record.
type auditExportRow struct {
	Timestamp       string  `csv:"timestamp"`
	Source          string  `csv:"source"`
	BatchID         string  `csv:"batch_id"`
	OrbitalPeriod   float64 `csv:"orbital_period"`
	TransitDuration float64 `csv:"transit_duration"`
	TransitDepth    float64 `csv:"transit_depth"`
	PlanetRadius    float64 `csv:"planet_radius"`
	Prediction      string  `csv:"prediction"`
	ProbaCandidate  float64 `csv:"proba_CANDIDATE"`
	ProbaConfirmed  float64 `csv:"proba_CONFIRMED"`
	ProbaFalsePos   float64 `csv:"proba_FALSE POSITIVE"`
	Confidence      float64 `csv:"confidence"`
	Tier            string  `csv:"tier"`
}

// handleAuditExport streams persisted prediction records as CSV.
// Optional ?since=RFC3339 bounds the range; default is the last 24h.
func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotFound, "audit storage is disabled")
		return
	}
	since := time.Now().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid since parameter: %v", err))
			return
		}
		since = parsed
	}

	records, err := s.audit.PredictionsSince(since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("audit read failed: %v", err))
		return
	}

	rows := make([]*auditExportRow, len(records))
	for i, rec := range records {
		rows[i] = &auditExportRow{
			Timestamp:       rec.Timestamp.Format(time.RFC3339Nano),
			Source:          rec.Source,
			BatchID:         rec.BatchID,
			OrbitalPeriod:   rec.Input[schema.FeatureOrbitalPeriod],
			TransitDuration: rec.Input[schema.FeatureTransitDuration],
			TransitDepth:    rec.Input[schema.FeatureTransitDepth],
			PlanetRadius:    rec.Input[schema.FeaturePlanetRadius],
			Prediction:      rec.Prediction,
			ProbaCandidate:  rec.Probabilities[schema.LabelCandidate],
			ProbaConfirmed:  rec.Probabilities[schema.LabelConfirmed],
			ProbaFalsePos:   rec.Probabilities[schema.LabelFalsePositive],
			Confidence:      rec.Confidence,
			Tier:            rec.Tier,
		}
	}

	w.Header().Set("Content-Type", "text/csv")
	if err := gocsv.Marshal(rows, w); err != nil {
		log.Warn().Err(err).Msg("audit export encode failed")
	}
}
