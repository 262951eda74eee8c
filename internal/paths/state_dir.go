package paths

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// StateBaseDir resolves the default base directory for workyard state.
// Preference order:
// 1. $XDG_STATE_HOME/workyard
// 2. ~/.local/state/workyard
// 3. $XDG_RUNTIME_DIR/workyard
func StateBaseDir() (string, error) {
	if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
		return filepath.Join(stateHome, "workyard"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		if runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); runtimeDir != "" {
			return filepath.Join(runtimeDir, "workyard"), nil
		}
		return "", err
	}
	if home != "" {
		return filepath.Join(home, ".local", "state", "workyard"), nil
	}
	if runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); runtimeDir != "" {
		return filepath.Join(runtimeDir, "workyard"), nil
	}
	return "", errors.New("unable to resolve state directory from XDG state/runtime or home")
}

// RunJournalDBPath is the default location of the execution journal.
func RunJournalDBPath() (string, error) {
	base, err := StateBaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "runs", "journal.db"), nil
}
