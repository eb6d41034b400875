package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*ForemanConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.foreman/config.json
// Project: .foreman/config.json (relative to cwd)
func LoadDefault() (*ForemanConfig, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".foreman", "config.json")
	projectPath := filepath.Join(".foreman", "config.json")

	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a JSON config file and merges it into the base config.
// Missing files are silently skipped. Malformed JSON returns an error.
func mergeConfigFile(base *ForemanConfig, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded ForemanConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	mergeScheduler(&base.Scheduler, loaded.Scheduler)
	mergeWorkers(&base.Workers, loaded.Workers)
	for key, agent := range loaded.Agents {
		base.Agents[key] = agent
	}
	if loaded.WorkspaceRoot != "" {
		base.WorkspaceRoot = loaded.WorkspaceRoot
	}
	if loaded.DatabasePath != "" {
		base.DatabasePath = loaded.DatabasePath
	}

	return nil
}

// mergeScheduler overlays set fields only; zero values mean "keep the base".
func mergeScheduler(base *SchedulerConfig, loaded SchedulerConfig) {
	if loaded.MaxRetries != 0 {
		base.MaxRetries = loaded.MaxRetries
	}
	if loaded.FullyThreshold != 0 {
		base.FullyThreshold = loaded.FullyThreshold
	}
	if loaded.MostlyThreshold != 0 {
		base.MostlyThreshold = loaded.MostlyThreshold
	}
	if loaded.PartiallyThreshold != 0 {
		base.PartiallyThreshold = loaded.PartiallyThreshold
	}
}

func mergeWorkers(base *WorkerConfig, loaded WorkerConfig) {
	if loaded.PollIntervalMS != 0 {
		base.PollIntervalMS = loaded.PollIntervalMS
	}
	if loaded.MaxAttempts != 0 {
		base.MaxAttempts = loaded.MaxAttempts
	}
}
