package cfg

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Settings is the flattened runtime configuration used by the trainer
// and the inference service.
type Settings struct {
	DataPath     string
	ArtifactPath string
	MetricsPath  string
	AuditPath    string
	ExportDir    string

	Trees        int
	MaxDepth     int
	MinLeaf      int
	Seed         int64
	TestFraction float64

	ServerPort       int
	HighConfidence   float64
	MediumConfidence float64
	AuditEnabled     bool
}

type ConfigFile struct {
	Paths struct {
		Data     string `yaml:"data"`
		Artifact string `yaml:"artifact"`
		Metrics  string `yaml:"metrics"`
		Audit    string `yaml:"audit"`
		Export   string `yaml:"export"`
	} `yaml:"paths"`

	Training struct {
		Trees        int     `yaml:"trees"`
		MaxDepth     int     `yaml:"maxDepth"`
		MinLeaf      int     `yaml:"minLeaf"`
		Seed         int64   `yaml:"seed"`
		TestFraction float64 `yaml:"testFraction"`
	} `yaml:"training"`

	Inference struct {
		ServerPort       int     `yaml:"serverPort"`
		HighConfidence   float64 `yaml:"highConfidence"`
		MediumConfidence float64 `yaml:"mediumConfidence"`
		AuditEnabled     bool    `yaml:"auditEnabled"`
	} `yaml:"inference"`
}

// Load reads configuration from the YAML file named by CONFIG_FILE,
// falling back to environment variables with built-in defaults.
// Environment variables override file values either way.
func Load() (Settings, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}
	s := defaults()
	applyEnvOverrides(&s)
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	s := defaults()
	if config.Paths.Data != "" {
		s.DataPath = config.Paths.Data
	}
	if config.Paths.Artifact != "" {
		s.ArtifactPath = config.Paths.Artifact
	}
	if config.Paths.Metrics != "" {
		s.MetricsPath = config.Paths.Metrics
	}
	if config.Paths.Audit != "" {
		s.AuditPath = config.Paths.Audit
	}
	if config.Paths.Export != "" {
		s.ExportDir = config.Paths.Export
	}
	if config.Training.Trees > 0 {
		s.Trees = config.Training.Trees
	}
	if config.Training.MaxDepth > 0 {
		s.MaxDepth = config.Training.MaxDepth
	}
	if config.Training.MinLeaf > 0 {
		s.MinLeaf = config.Training.MinLeaf
	}
	if config.Training.Seed != 0 {
		s.Seed = config.Training.Seed
	}
	if config.Training.TestFraction > 0 {
		s.TestFraction = config.Training.TestFraction
	}
	if config.Inference.ServerPort > 0 {
		s.ServerPort = config.Inference.ServerPort
	}
	if config.Inference.HighConfidence > 0 {
		s.HighConfidence = config.Inference.HighConfidence
	}
	if config.Inference.MediumConfidence > 0 {
		s.MediumConfidence = config.Inference.MediumConfidence
	}
	s.AuditEnabled = config.Inference.AuditEnabled

	applyEnvOverrides(&s)
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func defaults() Settings {
	return Settings{
		DataPath:         "data/exoplanets.csv",
		ArtifactPath:     "artifacts/model.gob",
		MetricsPath:      "artifacts/metrics.json",
		AuditPath:        "artifacts",
		ExportDir:        "web",
		Trees:            300,
		MaxDepth:         12,
		MinLeaf:          2,
		Seed:             42,
		TestFraction:     0.2,
		ServerPort:       8090,
		HighConfidence:   0.75,
		MediumConfidence: 0.55,
		AuditEnabled:     true,
	}
}

func applyEnvOverrides(s *Settings) {
	s.DataPath = getEnvOrDefault("EXOCLASS_DATA", s.DataPath)
	s.ArtifactPath = getEnvOrDefault("EXOCLASS_MODEL", s.ArtifactPath)
	s.MetricsPath = getEnvOrDefault("EXOCLASS_METRICS", s.MetricsPath)
	s.AuditPath = getEnvOrDefault("EXOCLASS_AUDIT", s.AuditPath)
	s.ExportDir = getEnvOrDefault("EXOCLASS_EXPORT_DIR", s.ExportDir)
	s.Trees = getEnvAsInt("EXOCLASS_TREES", s.Trees)
	s.MaxDepth = getEnvAsInt("EXOCLASS_MAX_DEPTH", s.MaxDepth)
	s.Seed = int64(getEnvAsInt("EXOCLASS_SEED", int(s.Seed)))
	s.TestFraction = getEnvAsFloat("EXOCLASS_TEST_FRACTION", s.TestFraction)
	s.ServerPort = getEnvAsInt("EXOCLASS_PORT", s.ServerPort)
	s.HighConfidence = getEnvAsFloat("EXOCLASS_HIGH_CONFIDENCE", s.HighConfidence)
	s.MediumConfidence = getEnvAsFloat("EXOCLASS_MEDIUM_CONFIDENCE", s.MediumConfidence)
}

func getEnvOrDefault(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(name string, defaultVal int) int {
	if v, err := strconv.Atoi(os.Getenv(name)); err == nil {
		return v
	}
	return defaultVal
}

func getEnvAsFloat(name string, defaultVal float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(name), 64); err == nil {
		return v
	}
	return defaultVal
}
