package config

// Config represents the complete cookia configuration
type Config struct {
	ModelID    string           `yaml:"model_id"`
	AssetsDir  string           `yaml:"assets_dir"`
	FilesRoot  string           `yaml:"files_root"`
	Engine     EngineConfig     `yaml:"engine"`
	Generation GenerationConfig `yaml:"generation"`
	Battery    BatteryConfig    `yaml:"battery"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// EngineConfig locates the engine's model libraries
type EngineConfig struct {
	LibDir string `yaml:"lib_dir"`
}

// GenerationConfig holds the fixed sampling parameters of a chat request
type GenerationConfig struct {
	SystemPrompt string  `yaml:"system_prompt"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
}

// BatteryConfig represents the power_supply polling configuration
type BatteryConfig struct {
	SupplyDir   string `yaml:"supply_dir"`
	PollSeconds int    `yaml:"poll_seconds"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	return e.Path + ": " + e.Message
}
