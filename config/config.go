// Package config loads process-level configuration for an entnetctl host:
// logging, telemetry, metrics, the debug API, and engine tunables such as
// the protocol header string. Viper-backed loading with mapstructure
// decode hooks, go-playground validator struct tags, YAML on disk, and
// ENTNET_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/JeffM2501/EntityNetwork/logger"
	"github.com/JeffM2501/EntityNetwork/telemetry"
)

// EngineConfig holds the engine-level tunables.
type EngineConfig struct {
	// ProtocolHeader is sent verbatim in the server's HailCheck frame.
	ProtocolHeader string `mapstructure:"protocol_header" yaml:"protocol_header" validate:"required"`
	// RevisionWidthBits documents the property.Cell revision counter width.
	// Surfaced here so a deployment manifest records the choice even though
	// property.Cell doesn't read it.
	RevisionWidthBits int `mapstructure:"revision_width_bits" yaml:"revision_width_bits" validate:"eq=8"`
}

// MetricsConfig controls the optional Prometheus registry.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr" validate:"required_if=Enabled true"`
}

// DebugAPIConfig controls the optional read-only introspection HTTP server.
type DebugAPIConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr" validate:"required_if=Enabled true"`
}

// Config is the full process configuration for an entnetctl host.
type Config struct {
	Logging   logger.Config    `mapstructure:"logging" yaml:"logging"`
	Telemetry telemetry.Config `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	DebugAPI  DebugAPIConfig   `mapstructure:"debug_api" yaml:"debug_api"`
	Engine    EngineConfig     `mapstructure:"engine" yaml:"engine"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Logging:   logger.Config{Level: "info", Format: "text"},
		Telemetry: telemetry.Config{SampleRate: 0},
		Metrics:   MetricsConfig{Enabled: false, Addr: ":9090"},
		DebugAPI:  DebugAPIConfig{Enabled: false, Addr: ":8080"},
		Engine: EngineConfig{
			ProtocolHeader:    "entnet/1",
			RevisionWidthBits: 8,
		},
	}
}

// Load reads configuration from configPath (YAML) if non-empty and present,
// layers ENTNET_* environment overrides on top, applies defaults for
// anything left unset, and validates the result. An empty or missing
// configPath is not an error: Load returns Default() instead.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ENTNET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees keys viper knows about, so bind every key
	// explicitly; otherwise env overrides apply only to keys in the file.
	for _, key := range []string{
		"logging.level", "logging.format", "telemetry.sample_rate",
		"metrics.enabled", "metrics.addr", "debug_api.enabled", "debug_api.addr",
		"engine.protocol_header", "engine.revision_width_bits",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			_, notFound := err.(viper.ConfigFileNotFoundError)
			if !notFound && !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate runs struct-tag validation over cfg.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// Save writes cfg to path as YAML.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
