package configdir

import (
	"os"
	"path/filepath"
)

const defaultConfigDir = "/etc/cookia"

// ConfigDir resolves the system configuration directory, honouring
// COOKIA_CONFIG_DIR.
func ConfigDir() string {
	if env := os.Getenv("COOKIA_CONFIG_DIR"); env != "" {
		if abs, err := filepath.Abs(env); err == nil {
			return abs
		}
		return env
	}
	return defaultConfigDir
}
