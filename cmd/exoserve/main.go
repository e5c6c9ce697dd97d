package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"exoclass/internal/cfg"
	"exoclass/internal/metrics"
	"exoclass/internal/predict"
	"exoclass/internal/server"
	"exoclass/internal/storage"
)

func main() {
	var (
		modelPath = flag.String("model", "", "Path to the model artifact (overrides config)")
		port      = flag.Int("port", 0, "HTTP listen port (overrides config)")
		lazy      = flag.Bool("lazy", false, "Defer artifact load to the first request instead of failing at startup")
		logLevel  = flag.String("log-level", "info", "Log level: debug, info, warn, error")
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
	if *modelPath != "" {
		settings.ArtifactPath = *modelPath
	}
	if *port > 0 {
		settings.ServerPort = *port
	}

	m := metrics.New()

	var audit *storage.Store
	if settings.AuditEnabled {
		audit, err = storage.New(settings.AuditPath)
		if err != nil {
			log.Fatal().Err(err).Msg("audit store open failed")
		}
		defer audit.Close()
	}

	svc := predict.New(predict.Options{
		ArtifactPath:     settings.ArtifactPath,
		HighConfidence:   settings.HighConfidence,
		MediumConfidence: settings.MediumConfidence,
		Metrics:          metrics.NewWrapper(m),
		Audit:            audit,
	})
	if !*lazy {
		if err := svc.Warm(); err != nil {
			log.Fatal().Err(err).Msg("model load failed")
		}
	}

	srv := server.New(svc, settings.MetricsPath, audit, settings.ServerPort)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}
}
