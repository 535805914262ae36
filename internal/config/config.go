// Package config handles loading and parsing of the cargohold CLI
// configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the cargohold CLI.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Storage StorageConfig `yaml:"storage"`
	Serve   ServeConfig   `yaml:"serve"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: text, json.
	Format string `yaml:"format"`
}

// StorageConfig holds the attachment storage settings.
type StorageConfig struct {
	// CredentialsFile is the path to the templated YAML credentials file.
	CredentialsFile string `yaml:"credentials_file"`
	// Environment selects the credential sub-mapping to activate.
	Environment string `yaml:"environment"`
	// Directory is the target container (bucket) name.
	Directory string `yaml:"directory"`
	// Host is the optional URL host template; it may embed the %d shard
	// token.
	Host string `yaml:"host"`
	// Public controls default object visibility.
	Public *bool `yaml:"public"`
	// ExtraUploadFields is merged into every upload as provider metadata.
	ExtraUploadFields map[string]string `yaml:"extra_upload_fields"`
}

// ServeConfig holds the redirect/metrics server settings.
type ServeConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Load reads a YAML configuration file from the given path and returns a
// parsed Config. It applies sensible defaults for unset values. If the
// primary path fails, it falls back to cargohold.example.yaml in the same
// directory or parent directory.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		// Try fallback paths
		fallbackPaths := []string{
			filepath.Join(filepath.Dir(path), "cargohold.example.yaml"),
			filepath.Join(filepath.Dir(path), "..", "cargohold.example.yaml"),
		}
		var fallbackErr error
		for _, fp := range fallbackPaths {
			data, fallbackErr = os.ReadFile(fp)
			if fallbackErr == nil {
				break
			}
		}
		if fallbackErr != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			CredentialsFile: "credentials.yaml",
		},
		Serve: ServeConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
	}
}

// applyDefaults fills in any fields that are still at their zero value
// after YAML unmarshaling.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Storage.CredentialsFile == "" {
		cfg.Storage.CredentialsFile = "credentials.yaml"
	}
	if cfg.Serve.Host == "" {
		cfg.Serve.Host = "0.0.0.0"
	}
	if cfg.Serve.Port == 0 {
		cfg.Serve.Port = 8080
	}
}
