package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Defaults DefaultsConfig `yaml:"defaults"`
	Models   []ModelConfig  `yaml:"models"`
	Output   OutputConfig   `yaml:"output"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	Charset  string `yaml:"charset"`
}

// DefaultsConfig holds run parameters applied when a start request omits them.
type DefaultsConfig struct {
	RunsPerScenario int     `yaml:"runs_per_scenario"`
	MaxRetries      int     `yaml:"max_retries"`
	Temperature     float64 `yaml:"temperature"`
}

// ModelConfig adds or overrides a model in the registry. APIKeyEnv names the
// environment variable holding the key; keys never live in the config file.
type ModelConfig struct {
	ID              string  `yaml:"id"`
	Name            string  `yaml:"name"`
	BaseURL         string  `yaml:"base_url"`
	APIKeyEnv       string  `yaml:"api_key_env"`
	SupportsStrict  bool    `yaml:"supports_strict"`
	Reasoning       bool    `yaml:"reasoning"`
	ThrottleMs      int     `yaml:"throttle_ms"`
	InputPricePerM  float64 `yaml:"input_price_per_m"`
	OutputPricePerM float64 `yaml:"output_price_per_m"`
}

type OutputConfig struct {
	Dir string `yaml:"dir"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if config.Defaults.RunsPerScenario <= 0 {
		config.Defaults.RunsPerScenario = 4
	}
	if config.Defaults.MaxRetries < 0 {
		config.Defaults.MaxRetries = 0
	}
	if config.Output.Dir == "" {
		config.Output.Dir = "outputs"
	}

	return &config, nil
}
