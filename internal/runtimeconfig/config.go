package runtimeconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/workyardhq/workyard/internal/paths"
)

// Config is the user-level workyard configuration. A missing file is
// not an error; every field has a working default.
type Config struct {
	// WorkspaceRoot is the directory sandboxes run in when the command
	// line does not name one.
	WorkspaceRoot string `yaml:"workspace_root"`
	// DefaultBackend selects the isolation backend when --backend is not
	// given. Empty means platform auto-detection.
	DefaultBackend string `yaml:"default_backend"`
	// TimeoutSeconds bounds commands that carry no per-call timeout.
	TimeoutSeconds int64 `yaml:"timeout_seconds"`
	// Env is injected into every sandboxed command.
	Env map[string]string `yaml:"env"`
	// Mounts declares the virtual filesystem namespace.
	Mounts []MountEntry `yaml:"mounts"`
}

// MountEntry declares one mount in the virtual namespace. Type selects
// the driver; the remaining fields are driver-specific.
type MountEntry struct {
	Path      string `yaml:"path"`
	Type      string `yaml:"type"`
	Name      string `yaml:"name"`
	LocalPath string `yaml:"local_path"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Prefix    string `yaml:"prefix"`
	AccountID string `yaml:"account_id"`
}

// Load reads the default config file, returning a zero Config when the
// file does not exist. The resolved path is returned either way so
// diagnostics can report where configuration was looked for.
func Load() (Config, string, error) {
	path, err := paths.DefaultConfigPath()
	if err != nil {
		return Config{}, "", err
	}
	cfg, err := LoadFrom(path)
	return cfg, path, err
}

// LoadFrom reads one specific config file. A missing file yields a zero
// Config without error; a malformed one is always an error.
func LoadFrom(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	cfg := Config{}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.WorkspaceRoot = strings.TrimSpace(cfg.WorkspaceRoot)
	cfg.DefaultBackend = strings.TrimSpace(cfg.DefaultBackend)
	for i := range cfg.Mounts {
		cfg.Mounts[i].Path = strings.TrimSpace(cfg.Mounts[i].Path)
		cfg.Mounts[i].Type = strings.TrimSpace(cfg.Mounts[i].Type)
	}
	return cfg, nil
}
