package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds engine configuration.
type Config struct {
	Mode            string          `yaml:"mode"`             // "case" | "market"
	ModelDir        string          `yaml:"model_dir"`        // trained artifact location
	ProfileDB       string          `yaml:"profile_db"`       // judge profile SQLite path, optional
	DefaultCategory string          `yaml:"default_category"` // category applied when input has none
	Heuristic       HeuristicConfig `yaml:"heuristic"`
	Bias            BiasConfig      `yaml:"bias"`
	Confidence      Clamp           `yaml:"confidence"`
	Telemetry       TelemetryConfig `yaml:"telemetry"`
}

type HeuristicConfig struct {
	NoiseMagnitude   float64 `yaml:"noise_magnitude"`   // Dirichlet noise scale
	ProbabilityFloor float64 `yaml:"probability_floor"` // minimum per-outcome weight before normalization
	TablePath        string  `yaml:"table_path"`        // optional YAML keyword table override
}

type BiasConfig struct {
	DeltaBound float64 `yaml:"delta_bound"` // max |confidence delta| from judge bias
}

// Clamp bounds the reported confidence scalar.
type Clamp struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"` // grpc | http
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns the default config and no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// Default returns the configuration used when no file is present.
// Every knob has a safe value so an absent config never breaks the engine.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Mode == "" {
		cfg.Mode = "case"
	}
	if cfg.ModelDir == "" {
		cfg.ModelDir = "./models"
	}
	if cfg.DefaultCategory == "" {
		cfg.DefaultCategory = "civil"
	}
	if cfg.Heuristic.NoiseMagnitude <= 0 {
		cfg.Heuristic.NoiseMagnitude = 0.2
	}
	if cfg.Heuristic.ProbabilityFloor <= 0 {
		cfg.Heuristic.ProbabilityFloor = 0.01
	}
	if cfg.Bias.DeltaBound <= 0 {
		cfg.Bias.DeltaBound = 0.05
	}
	if cfg.Confidence.Min <= 0 {
		cfg.Confidence.Min = 0.01
	}
	if cfg.Confidence.Max <= 0 || cfg.Confidence.Max > 1 {
		cfg.Confidence.Max = 0.99
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
}
