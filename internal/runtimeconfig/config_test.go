package runtimeconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadResolvesConfigUnderXDGConfigHome(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	configPath := filepath.Join(tmp, "workyard", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}

	content := `workspace_root: /srv/agents/ws
default_backend: bubblewrap
timeout_seconds: 120
env:
  CI: "true"
mounts:
  - path: /data
    type: local
    local_path: /srv/agents/data
  - path: /artifacts
    type: s3
    bucket: agent-artifacts
    region: us-east-1
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, path, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if path != configPath {
		t.Fatalf("unexpected config path: got %q want %q", path, configPath)
	}
	if got, want := cfg.WorkspaceRoot, "/srv/agents/ws"; got != want {
		t.Fatalf("unexpected workspace root: got %q want %q", got, want)
	}
	if got, want := cfg.DefaultBackend, "bubblewrap"; got != want {
		t.Fatalf("unexpected default backend: got %q want %q", got, want)
	}
	if cfg.TimeoutSeconds != 120 {
		t.Fatalf("unexpected timeout: %d", cfg.TimeoutSeconds)
	}
	if cfg.Env["CI"] != "true" {
		t.Fatalf("unexpected env: %v", cfg.Env)
	}
	if len(cfg.Mounts) != 2 {
		t.Fatalf("expected two mounts, got %d", len(cfg.Mounts))
	}
	if cfg.Mounts[1].Type != "s3" || cfg.Mounts[1].Bucket != "agent-artifacts" {
		t.Fatalf("unexpected s3 mount: %+v", cfg.Mounts[1])
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, path, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if path == "" {
		t.Fatal("expected resolved path even when file is missing")
	}
	if cfg.DefaultBackend != "" || len(cfg.Mounts) != 0 {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestLoadFromRejectsMalformedYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("mounts: {not: [a, list"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected parse error")
	}
}
