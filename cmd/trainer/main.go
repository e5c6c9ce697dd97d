package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"exoclass/internal/cfg"
	"exoclass/internal/evaluate"
	"exoclass/internal/export"
	"exoclass/internal/pipeline"
)

func main() {
	var (
		dataPath    = flag.String("data", "", "Path to labeled training CSV (overrides config)")
		modelPath   = flag.String("model", "", "Output path for the model artifact (overrides config)")
		metricsPath = flag.String("metrics", "", "Output path for the metrics artifact (overrides config)")
		trees       = flag.Int("trees", 0, "Number of trees in the forest (overrides config)")
		seed        = flag.Int64("seed", 0, "Random seed for split and training (overrides config)")
		doExport    = flag.Bool("export", false, "Also write the portable graph export after training")
		logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	_ = godotenv.Load()

	settings, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if *dataPath != "" {
		settings.DataPath = *dataPath
	}
	if *modelPath != "" {
		settings.ArtifactPath = *modelPath
	}
	if *metricsPath != "" {
		settings.MetricsPath = *metricsPath
	}
	if *trees > 0 {
		settings.Trees = *trees
	}
	if *seed != 0 {
		settings.Seed = *seed
	}
	if err := settings.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid settings")
	}

	result, err := pipeline.Run(settings)
	if err != nil {
		log.Fatal().Err(err).Msg("training run failed")
	}

	if *doExport {
		artifact, err := pipeline.LoadArtifact(settings.ArtifactPath)
		if err != nil {
			log.Fatal().Err(err).Msg("reload artifact for export failed")
		}
		graph, meta, err := export.Build(artifact)
		if err != nil {
			log.Fatal().Err(err).Msg("export build failed")
		}
		if err := export.Write(graph, meta, settings.ExportDir); err != nil {
			log.Fatal().Err(err).Msg("export write failed")
		}
		log.Info().Str("dir", settings.ExportDir).Msg("portable export written")
	}

	fmt.Printf("Model: %s\n", settings.ArtifactPath)
	fmt.Printf("Metrics: %s\n", settings.MetricsPath)
	fmt.Printf("Rows: %d train / %d eval (%d dropped)\n", result.TrainRows, result.EvalRows, result.Dropped)
	fmt.Printf("Macro F1: %.3f\n", result.Metrics.Report[evaluate.MacroAvgKey].F1Score)
}
