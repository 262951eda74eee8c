package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/workyardhq/workyard/internal/isolation"
	"github.com/workyardhq/workyard/internal/policy"
	"github.com/workyardhq/workyard/internal/runlog"
	"github.com/workyardhq/workyard/internal/runtimeconfig"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires a POSIX shell")
	}
}

func TestExecCommandRunsAndJournals(t *testing.T) {
	requireShell(t)
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	workspace := filepath.Join(t.TempDir(), "ws")
	stdout, read := captureStdout(t)

	cmd := ExecCommand{
		Backend:   "none",
		Workspace: workspace,
		Command:   []string{"/bin/sh", "-c", "printf from-sandbox"},
	}
	err := cmd.Run(&runtimeContext{
		CWD:    t.TempDir(),
		Stdout: stdout,
		Loader: policy.Loader{},
		Config: runtimeconfig.Config{},
		Probe:  doctorProbe("linux"),
	})
	if err != nil {
		t.Fatalf("ExecCommand.Run returned error: %v", err)
	}
	if got := read(); got != "from-sandbox" {
		t.Fatalf("stdout = %q", got)
	}

	journal, err := runlog.New(runlog.Options{})
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	entries, err := journal.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one journaled run, got %d", len(entries))
	}
	if entries[0].Command != "/bin/sh" || !entries[0].Success {
		t.Fatalf("unexpected journal entry: %+v", entries[0])
	}
}

func TestExecCommandPropagatesExitCode(t *testing.T) {
	requireShell(t)
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	stdout, _ := captureStdout(t)
	cmd := ExecCommand{
		Backend:   "none",
		Workspace: filepath.Join(t.TempDir(), "ws"),
		NoJournal: true,
		Command:   []string{"/bin/sh", "-c", "exit 4"},
	}
	err := cmd.Run(&runtimeContext{
		CWD:    t.TempDir(),
		Stdout: stdout,
		Loader: policy.Loader{},
		Probe:  doctorProbe("linux"),
	})
	if err == nil {
		t.Fatal("expected exit-code error")
	}
	if got := ExitCode(err); got != 4 {
		t.Fatalf("exit code = %d, want 4", got)
	}
}

func TestExecCommandNoJournalSkipsRecording(t *testing.T) {
	requireShell(t)
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	stdout, _ := captureStdout(t)
	cmd := ExecCommand{
		Backend:   "none",
		Workspace: filepath.Join(t.TempDir(), "ws"),
		NoJournal: true,
		Command:   []string{"/bin/sh", "-c", "true"},
	}
	if err := cmd.Run(&runtimeContext{
		CWD:    t.TempDir(),
		Stdout: stdout,
		Loader: policy.Loader{},
		Probe:  doctorProbe("linux"),
	}); err != nil {
		t.Fatalf("ExecCommand.Run returned error: %v", err)
	}

	journal, err := runlog.New(runlog.Options{})
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	entries, err := journal.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty journal, got %d entries", len(entries))
	}
}

func TestExecCommandRejectsUnavailableBackend(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	stdout, _ := captureStdout(t)
	cmd := ExecCommand{
		Backend:   "seatbelt",
		Workspace: filepath.Join(t.TempDir(), "ws"),
		NoJournal: true,
		Command:   []string{"true"},
	}
	err := cmd.Run(&runtimeContext{
		CWD:    t.TempDir(),
		Stdout: stdout,
		Loader: policy.Loader{},
		Probe:  doctorProbe("linux", "bwrap"),
	})
	if err == nil || !strings.Contains(err.Error(), string(isolation.BackendSeatbelt)) {
		t.Fatalf("err = %v, want seatbelt unavailability", err)
	}
}

func TestResolveBackendPrecedence(t *testing.T) {
	probe := doctorProbe("linux", "bwrap")

	got, err := resolveBackend("none", "bubblewrap", probe)
	if err != nil || got != isolation.BackendNone {
		t.Fatalf("flag should win: got %q, err %v", got, err)
	}

	got, err = resolveBackend("", "bubblewrap", probe)
	if err != nil || got != isolation.BackendBubblewrap {
		t.Fatalf("config should win over detection: got %q, err %v", got, err)
	}

	got, err = resolveBackend("", "", probe)
	if err != nil || got != isolation.BackendBubblewrap {
		t.Fatalf("detection fallback: got %q, err %v", got, err)
	}

	got, err = resolveBackend("", "", doctorProbe("linux"))
	if err != nil || got != isolation.BackendNone {
		t.Fatalf("unavailable detection falls back to none: got %q, err %v", got, err)
	}
}
