package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// ConfigDir returns the default directory for workyard configuration.
// Uses $XDG_CONFIG_HOME/workyard or ~/.config/workyard.
func ConfigDir() (string, error) {
	configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if configHome != "" {
		return filepath.Join(configHome, "workyard"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "workyard"), nil
}

// DefaultConfigPath is the config file workyard loads when --config is
// not given.
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}
