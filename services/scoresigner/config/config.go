package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config captures runtime configuration for scoresigner.
type Config struct {
	ListenAddress string `yaml:"listen"`
	DatabasePath  string `yaml:"database"`
	KeystorePath  string `yaml:"keystore"`
	PassphraseEnv string `yaml:"passphrase_env"`
	RateLimit     Rate   `yaml:"rate_limit"`
}

// Rate bounds how fast a single client may request signatures.
type Rate struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// Load reads and validates the YAML configuration at path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("scoresigner: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("scoresigner: parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":7441"
	}
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		cfg.DatabasePath = "scoresigner.db"
	}
	if cfg.RateLimit.PerSecond <= 0 {
		cfg.RateLimit.PerSecond = 5
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 10
	}
}

func (cfg Config) validate() error {
	if strings.TrimSpace(cfg.KeystorePath) == "" {
		return fmt.Errorf("scoresigner: keystore path is required")
	}
	return nil
}
