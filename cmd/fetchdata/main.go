// Command fetchdata pulls labeled transit candidates from the NASA
// Exoplanet Archive (Kepler KOI cumulative table and the TESS TOI
// table), normalizes column names and dispositions to the training
// contract, and writes one merged CSV.
//
// This is a one-shot acquisition step, not part of the serving system;
// rerun it to refresh the dataset before retraining.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"exoclass/internal/schema"
)

const (
	koiURL = "https://exoplanetarchive.ipac.caltech.edu/cgi-bin/nstedAPI/nph-nstedAPI" +
		"?table=koi&format=csv" +
		"&select=koi_disposition,koi_pdisposition,koi_period,koi_duration,koi_depth,koi_prad"
	toiURL = "https://exoplanetarchive.ipac.caltech.edu/TAP/sync" +
		"?query=select+tfopwg_disp,pl_orbper,pl_trandurh,pl_trandep,pl_rade+from+toi&format=csv"
)

// tfopwg working-group codes to disposition labels.
var toiDispositions = map[string]string{
	"CP": schema.LabelConfirmed,
	"PC": schema.LabelCandidate,
	"FP": schema.LabelFalsePositive,
	"FA": schema.LabelFalsePositive,
}

type datasetRow struct {
	OrbitalPeriod   float64 `csv:"orbital_period"`
	TransitDuration float64 `csv:"transit_duration"`
	TransitDepth    float64 `csv:"transit_depth"`
	PlanetRadius    float64 `csv:"planet_radius"`
	Label           string  `csv:"label"`
}

func main() {
	var (
		outPath  = flag.String("out", "data/exoplanets.csv", "Output CSV path")
		timeout  = flag.Duration("timeout", 2*time.Minute, "HTTP timeout per archive request")
		logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	client := resty.New().SetTimeout(*timeout).SetRetryCount(2)

	koi, err := fetchKOI(client)
	if err != nil {
		log.Fatal().Err(err).Msg("KOI fetch failed")
	}
	log.Info().Int("rows", len(koi)).Msg("KOI table fetched")

	toi, err := fetchTOI(client)
	if err != nil {
		log.Fatal().Err(err).Msg("TOI fetch failed")
	}
	log.Info().Int("rows", len(toi)).Msg("TOI table fetched")

	rows := append(koi, toi...)
	if err := writeDataset(rows, *outPath); err != nil {
		log.Fatal().Err(err).Msg("dataset write failed")
	}
	fmt.Printf("Dataset written to %s (%d rows)\n", *outPath, len(rows))
}

func fetchKOI(client *resty.Client) ([]*datasetRow, error) {
	body, err := get(client, koiURL)
	if err != nil {
		return nil, err
	}
	header, records, err := parseCSV(body)
	if err != nil {
		return nil, fmt.Errorf("parse KOI response: %w", err)
	}
	col := indexColumns(header)

	var rows []*datasetRow
	for _, record := range records {
		// Final disposition when present, pipeline disposition otherwise.
		label := strings.TrimSpace(record[col["koi_disposition"]])
		if label == "" {
			label = strings.TrimSpace(record[col["koi_pdisposition"]])
		}
		if !schema.KnownLabel(label) {
			continue
		}
		row, ok := buildRow(record, col, "koi_period", "koi_duration", "koi_depth", "koi_prad", label)
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func fetchTOI(client *resty.Client) ([]*datasetRow, error) {
	body, err := get(client, toiURL)
	if err != nil {
		return nil, err
	}
	header, records, err := parseCSV(body)
	if err != nil {
		return nil, fmt.Errorf("parse TOI response: %w", err)
	}
	col := indexColumns(header)

	var rows []*datasetRow
	for _, record := range records {
		label, ok := toiDispositions[strings.TrimSpace(record[col["tfopwg_disp"]])]
		if !ok {
			continue
		}
		row, ok := buildRow(record, col, "pl_orbper", "pl_trandurh", "pl_trandep", "pl_rade", label)
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func get(client *resty.Client, url string) (string, error) {
	resp, err := client.R().Get(url)
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("archive returned %d", resp.StatusCode())
	}
	return resp.String(), nil
}

func parseCSV(body string) ([]string, [][]string, error) {
	reader := csv.NewReader(strings.NewReader(body))
	reader.TrimLeadingSpace = true
	all, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) < 2 {
		return nil, nil, fmt.Errorf("response has no data rows")
	}
	return all[0], all[1:], nil
}

func indexColumns(header []string) map[string]int {
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	return col
}

// buildRow parses the four feature columns; rows with any missing or
// unparseable feature are skipped, matching the training pipeline's
// complete-row requirement.
func buildRow(record []string, col map[string]int, periodCol, durationCol, depthCol, radiusCol, label string) (*datasetRow, bool) {
	values := make([]float64, 4)
	for i, name := range []string{periodCol, durationCol, depthCol, radiusCol} {
		raw := strings.TrimSpace(record[col[name]])
		if raw == "" {
			return nil, false
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, false
		}
		values[i] = v
	}
	return &datasetRow{
		OrbitalPeriod:   values[0],
		TransitDuration: values[1],
		TransitDepth:    values[2],
		PlanetRadius:    values[3],
		Label:           label,
	}, true
}

func writeDataset(rows []*datasetRow, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return gocsv.Marshal(rows, f)
}
