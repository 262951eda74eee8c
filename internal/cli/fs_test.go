package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/workyardhq/workyard/internal/runtimeconfig"
)

func fsTestContext(t *testing.T) (*runtimeContext, string, string) {
	t.Helper()

	base := t.TempDir()
	dataRoot := filepath.Join(base, "data")
	scratchRoot := filepath.Join(base, "scratch")
	ctx := &runtimeContext{
		CWD: base,
		Config: runtimeconfig.Config{
			Mounts: []runtimeconfig.MountEntry{
				{Path: "/data", Type: "local", Name: "data", LocalPath: dataRoot},
				{Path: "/scratch", Type: "local", Name: "scratch", LocalPath: scratchRoot},
			},
		},
		ConfigPath: filepath.Join(base, "config.yaml"),
	}
	return ctx, dataRoot, scratchRoot
}

func TestFsLsListsVirtualRootWithProviders(t *testing.T) {
	t.Parallel()

	ctx, _, _ := fsTestContext(t)
	stdout, read := captureStdout(t)
	ctx.Stdout = stdout

	cmd := FsLsCommand{Path: "/"}
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("fs ls returned error: %v", err)
	}
	out := read()
	if !strings.Contains(out, "data") || !strings.Contains(out, "scratch") {
		t.Fatalf("root listing missing mounts:\n%s", out)
	}
	if !strings.Contains(out, "[local: data]") {
		t.Fatalf("root listing missing provider annotation:\n%s", out)
	}
}

func TestFsCatReadsThroughRouter(t *testing.T) {
	t.Parallel()

	ctx, dataRoot, _ := fsTestContext(t)
	stdout, read := captureStdout(t)
	ctx.Stdout = stdout

	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		t.Fatalf("mkdir data root: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dataRoot, "note.txt"), []byte("routed"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	cmd := FsCatCommand{Path: "/data/note.txt"}
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("fs cat returned error: %v", err)
	}
	if got := read(); got != "routed" {
		t.Fatalf("cat output = %q", got)
	}
}

func TestFsCpAcrossMounts(t *testing.T) {
	t.Parallel()

	ctx, dataRoot, scratchRoot := fsTestContext(t)
	stdout, _ := captureStdout(t)
	ctx.Stdout = stdout

	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		t.Fatalf("mkdir data root: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dataRoot, "artifact.bin"), []byte("payload"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	cmd := FsCpCommand{Src: "/data/artifact.bin", Dst: "/scratch/copy.bin"}
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("fs cp returned error: %v", err)
	}

	copied, err := os.ReadFile(filepath.Join(scratchRoot, "copy.bin"))
	if err != nil {
		t.Fatalf("read copied file: %v", err)
	}
	if string(copied) != "payload" {
		t.Fatalf("copied bytes = %q", copied)
	}
	if _, err := os.Stat(filepath.Join(dataRoot, "artifact.bin")); err != nil {
		t.Fatalf("cross-mount copy removed the source: %v", err)
	}
}

func TestFsMkdirAndStat(t *testing.T) {
	t.Parallel()

	ctx, _, _ := fsTestContext(t)
	stdout, read := captureStdout(t)
	ctx.Stdout = stdout

	if err := (&FsMkdirCommand{Path: "/data/nested/dir"}).Run(ctx); err != nil {
		t.Fatalf("fs mkdir returned error: %v", err)
	}
	if err := (&FsStatCommand{Path: "/data/nested/dir"}).Run(ctx); err != nil {
		t.Fatalf("fs stat returned error: %v", err)
	}
	out := read()
	if !strings.Contains(out, "path: /nested/dir") && !strings.Contains(out, "path: /data/nested/dir") {
		t.Fatalf("stat output missing path:\n%s", out)
	}
	if !strings.Contains(out, "type: dir") {
		t.Fatalf("stat output missing type:\n%s", out)
	}
}

func TestBuildRouterRejectsRemoteDrivers(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	ctx := &runtimeContext{
		CWD: base,
		Config: runtimeconfig.Config{
			Mounts: []runtimeconfig.MountEntry{
				{Path: "/artifacts", Type: "s3", Bucket: "agent-artifacts"},
			},
		},
		ConfigPath: filepath.Join(base, "config.yaml"),
	}
	if _, err := buildRouter(ctx); err == nil || !strings.Contains(err.Error(), "not available") {
		t.Fatalf("err = %v, want unavailable-driver error", err)
	}
}

func TestBuildRouterRequiresMounts(t *testing.T) {
	t.Parallel()

	ctx := &runtimeContext{CWD: t.TempDir(), ConfigPath: "/tmp/config.yaml"}
	if _, err := buildRouter(ctx); err == nil {
		t.Fatal("expected error for empty mount table")
	}
}
