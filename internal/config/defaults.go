package config

const (
	// DefaultModelID is the model bundled with the application assets
	DefaultModelID = "Qwen2-1.5B-Instruct-q4f16_1-MLC"
	// DefaultSystemPrompt keeps replies to one short sentence with an emoji
	DefaultSystemPrompt = "Reply in one brief sentence (at most 140 characters). Include one emoji."
)

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		ModelID:   DefaultModelID,
		AssetsDir: "/usr/share/cookia/assets",
		FilesRoot: "/var/lib/cookia",
		Engine: EngineConfig{
			LibDir: "/usr/lib/cookia",
		},
		Generation: GenerationConfig{
			SystemPrompt: DefaultSystemPrompt,
			Temperature:  0.7,
			MaxTokens:    64,
		},
		Battery: BatteryConfig{
			SupplyDir:   "/sys/class/power_supply",
			PollSeconds: 30,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
