package paths

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// DataBaseDir resolves the default base directory for workyard durable data.
// Preference order:
// 1. $XDG_DATA_HOME/workyard
// 2. ~/.local/share/workyard
// 3. $XDG_RUNTIME_DIR/workyard
func DataBaseDir() (string, error) {
	if dataHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); dataHome != "" {
		return filepath.Join(dataHome, "workyard"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		if runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); runtimeDir != "" {
			return filepath.Join(runtimeDir, "workyard"), nil
		}
		return "", err
	}
	if home != "" {
		return filepath.Join(home, ".local", "share", "workyard"), nil
	}
	if runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); runtimeDir != "" {
		return filepath.Join(runtimeDir, "workyard"), nil
	}
	return "", errors.New("unable to resolve data directory from XDG data/runtime or home")
}

// WorkspacesDir is the default parent directory for sandbox working
// directories created without an explicit workspace root.
func WorkspacesDir() (string, error) {
	base, err := DataBaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "workspaces"), nil
}
