package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"cookia/internal/configdir"
)

const (
	systemConfigFile = "config.yaml"
	userConfigDir    = ".cookia"
	userConfigFile   = "config.yaml"
)

// Load loads and merges configuration from system and user files
// Priority: defaults < system config < user config
func Load() (Config, error) {
	cfg := DefaultConfig()

	systemPath := filepath.Join(configdir.ConfigDir(), systemConfigFile)
	if err := mergeConfigFile(&cfg, systemPath); err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to load system config: %w", err)
		}
	}

	if userPath := UserConfigPath(); userPath != "" {
		if err := mergeConfigFile(&cfg, userPath); err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to load user config: %w", err)
			}
		}
	}

	if validationErrors := cfg.Validate(); len(validationErrors) > 0 {
		return cfg, fmt.Errorf("config.validation.error: %v", formatValidationErrors(validationErrors))
	}

	return cfg, nil
}

// LoadFrom loads configuration from a specific file path
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()
	if err := mergeConfigFile(&cfg, path); err != nil {
		return cfg, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	if validationErrors := cfg.Validate(); len(validationErrors) > 0 {
		return cfg, fmt.Errorf("config.validation.error: %v", formatValidationErrors(validationErrors))
	}

	return cfg, nil
}

func mergeConfigFile(cfg *Config, path string) error {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path is constructed from trusted sources
	if err != nil {
		return err
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	mergeConfig(cfg, &overlay)

	return nil
}

// mergeConfig merges non-zero values from src into dst
func mergeConfig(dst, src *Config) {
	mergeString(&dst.ModelID, src.ModelID)
	mergeString(&dst.AssetsDir, src.AssetsDir)
	mergeString(&dst.FilesRoot, src.FilesRoot)
	mergeString(&dst.Engine.LibDir, src.Engine.LibDir)

	mergeString(&dst.Generation.SystemPrompt, src.Generation.SystemPrompt)
	// A zero temperature cannot be told apart from "unset"; greedy decoding
	// needs a tiny positive value instead.
	if src.Generation.Temperature != 0 {
		dst.Generation.Temperature = src.Generation.Temperature
	}
	if src.Generation.MaxTokens != 0 {
		dst.Generation.MaxTokens = src.Generation.MaxTokens
	}

	mergeString(&dst.Battery.SupplyDir, src.Battery.SupplyDir)
	if src.Battery.PollSeconds != 0 {
		dst.Battery.PollSeconds = src.Battery.PollSeconds
	}

	mergeString(&dst.Logging.Level, src.Logging.Level)
	mergeString(&dst.Logging.File, src.Logging.File)
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func formatValidationErrors(errors []ValidationError) string {
	if len(errors) == 0 {
		return ""
	}
	if len(errors) == 1 {
		return errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d validation errors:\n", len(errors))
	for _, err := range errors {
		b.WriteString("  - " + err.Error() + "\n")
	}
	return b.String()
}

// SystemConfigPath returns the path to the system configuration file
func SystemConfigPath() string {
	return filepath.Join(configdir.ConfigDir(), systemConfigFile)
}

// UserConfigPath returns the path to the user configuration file
func UserConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, userConfigDir, userConfigFile)
}
