package config

import (
	"fmt"
	"slices"
	"strings"

	"cookia/internal/installer"
)

// Validate checks if the configuration is valid
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateModelID()...)
	errors = append(errors, c.validatePaths()...)
	errors = append(errors, c.validateGeneration()...)
	errors = append(errors, c.validateBattery()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// The model id becomes a path segment under the weights directory.
func (c *Config) validateModelID() []ValidationError {
	id := c.ModelID
	switch {
	case strings.TrimSpace(id) == "":
		return []ValidationError{{Path: "model_id", Message: "must not be empty"}}
	case installer.ValidateModelID(id) != nil:
		return []ValidationError{{Path: "model_id", Message: fmt.Sprintf("must be a single path segment, got '%s'", id)}}
	}
	return nil
}

func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError
	if strings.TrimSpace(c.AssetsDir) == "" {
		errors = append(errors, ValidationError{Path: "assets_dir", Message: "must not be empty"})
	}
	if strings.TrimSpace(c.FilesRoot) == "" {
		errors = append(errors, ValidationError{Path: "files_root", Message: "must not be empty"})
	}
	return errors
}

func (c *Config) validateGeneration() []ValidationError {
	var errors []ValidationError

	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		errors = append(errors, ValidationError{
			Path:    "generation.temperature",
			Message: fmt.Sprintf("must be between 0 and 2, got %g", c.Generation.Temperature),
		})
	}

	if c.Generation.MaxTokens < 1 {
		errors = append(errors, ValidationError{
			Path:    "generation.max_tokens",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Generation.MaxTokens),
		})
	}

	return errors
}

func (c *Config) validateBattery() []ValidationError {
	if c.Battery.PollSeconds >= 1 {
		return nil
	}

	return []ValidationError{{
		Path:    "battery.poll_seconds",
		Message: fmt.Sprintf("must be at least 1, got %d", c.Battery.PollSeconds),
	}}
}

func (c *Config) validateLogging() []ValidationError {
	validLevels := []string{"debug", "info", "warn", "error"}
	if slices.Contains(validLevels, c.Logging.Level) {
		return nil
	}

	return []ValidationError{{
		Path:    "logging.level",
		Message: fmt.Sprintf("must be one of %v, got '%s'", validLevels, c.Logging.Level),
	}}
}
