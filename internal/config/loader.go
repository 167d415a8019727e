package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and local paths.
// Order of precedence (highest to lowest): local config, global config,
// defaults. Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, localPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if localPath != "" {
		if err := mergeConfigFile(cfg, localPath); err != nil {
			return nil, fmt.Errorf("loading local config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.armour/config.json
// Local: .armour/config.json (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".armour", "config.json")
	localPath := filepath.Join(".armour", "config.json")

	return Load(globalPath, localPath)
}

// mergeConfigFile reads a JSON config file and merges it into the base
// config. Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if loaded.Listen != "" {
		base.Listen = loaded.Listen
	}
	if loaded.DatabasePath != "" {
		base.DatabasePath = loaded.DatabasePath
	}
	for key, provider := range loaded.Providers {
		base.Providers[key] = provider
	}
	for key, agent := range loaded.Agents {
		base.Agents[key] = agent
	}
	if loaded.Reviewer.Provider != "" {
		base.Reviewer = loaded.Reviewer
	}
	mergePipeline(&base.Pipeline, loaded.Pipeline)
	if loaded.Approval.MaxAutoAmount > 0 {
		base.Approval.MaxAutoAmount = loaded.Approval.MaxAutoAmount
	}
	if loaded.Approval.SLAMinutes > 0 {
		base.Approval.SLAMinutes = loaded.Approval.SLAMinutes
	}
	for key, url := range loaded.Webhooks {
		base.Webhooks[key] = url
	}
	if len(loaded.Schedules) > 0 {
		base.Schedules = loaded.Schedules
	}

	return nil
}

func mergePipeline(base *PipelineConfig, loaded PipelineConfig) {
	if loaded.Workers > 0 {
		base.Workers = loaded.Workers
	}
	if loaded.CallTimeoutSeconds > 0 {
		base.CallTimeoutSeconds = loaded.CallTimeoutSeconds
	}
	if loaded.MaxAttempts > 0 {
		base.MaxAttempts = loaded.MaxAttempts
	}
	if loaded.TickMillis > 0 {
		base.TickMillis = loaded.TickMillis
	}
	for role, limit := range loaded.RoleLimits {
		base.RoleLimits[role] = limit
	}
	if loaded.Retry.InitialMillis > 0 {
		base.Retry.InitialMillis = loaded.Retry.InitialMillis
	}
	if loaded.Retry.MaxMillis > 0 {
		base.Retry.MaxMillis = loaded.Retry.MaxMillis
	}
	if loaded.Retry.Multiplier > 0 {
		base.Retry.Multiplier = loaded.Retry.Multiplier
	}
	if loaded.Retry.RandomizationFactor > 0 {
		base.Retry.RandomizationFactor = loaded.Retry.RandomizationFactor
	}
}
