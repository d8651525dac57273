package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "statuswatch.yaml"

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load statuswatch.yaml from configDir (missing file: defaults only)
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge user values over built-in defaults
//  5. Validate
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"base_url", cfg.API.BaseURL,
		"transport", cfg.Stream.Transport,
		"poll_interval", cfg.Fallback.PollInterval)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{
		configDir: configDir,
	}

	cfg := DefaultConfig()
	cfg.configDir = configDir

	var user Config
	err := loader.loadYAML(FileName, &user)
	switch {
	case errors.Is(err, ErrConfigNotFound):
		slog.Warn("Configuration file not found, using defaults", "file", filepath.Join(configDir, FileName))
		return cfg, nil
	case err != nil:
		return nil, NewLoadError(FileName, err)
	}

	if err := mergo.Merge(cfg, &user, mergo.WithOverride); err != nil {
		return nil, NewLoadError(FileName, fmt.Errorf("failed to merge with defaults: %w", err))
	}
	return cfg, nil
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return fmt.Errorf("failed to read file: %w", err)
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}
