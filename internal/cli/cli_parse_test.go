package cli

import (
	"errors"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
)

func newParserForTest(t *testing.T, c *CLI) *kong.Kong {
	t.Helper()

	parser, err := kong.New(
		c,
		kong.Name("workyard"),
		kong.Description("Sandboxed workspace runner for autonomous agents"),
		kong.Vars{"version": "test"},
	)
	if err != nil {
		t.Fatalf("create parser: %v", err)
	}
	return parser
}

func TestExecCommandRequiresArgs(t *testing.T) {
	c := &CLI{}
	parser := newParserForTest(t, c)

	_, err := parser.Parse([]string{"exec"})
	if err == nil {
		t.Fatal("expected parse error for missing exec command")
	}
	if !strings.Contains(err.Error(), "<command>") {
		t.Fatalf("expected missing command parse error, got %v", err)
	}
}

func TestExecCommandParsesFlagsAndPassthrough(t *testing.T) {
	c := &CLI{}
	parser := newParserForTest(t, c)

	_, err := parser.Parse([]string{
		"exec",
		"--backend", "bubblewrap",
		"--timeout", "90",
		"-e", "CI=true",
		"-w", "/srv/ws",
		"--", "go", "test", "./...",
	})
	if err != nil {
		t.Fatalf("parse exec returned error: %v", err)
	}
	if c.Exec.Backend != "bubblewrap" || c.Exec.Timeout != 90 || c.Exec.Workspace != "/srv/ws" {
		t.Fatalf("unexpected flags: %+v", c.Exec)
	}
	if len(c.Exec.Command) != 3 || c.Exec.Command[0] != "go" {
		t.Fatalf("unexpected passthrough command: %v", c.Exec.Command)
	}
}

func TestFsLsDefaultsToNamespaceRoot(t *testing.T) {
	c := &CLI{}
	parser := newParserForTest(t, c)

	if _, err := parser.Parse([]string{"fs", "ls"}); err != nil {
		t.Fatalf("parse fs ls returned error: %v", err)
	}
	if c.Fs.Ls.Path != "/" {
		t.Fatalf("default fs ls path = %q, want /", c.Fs.Ls.Path)
	}
}

func TestStatusDefaultLimit(t *testing.T) {
	c := &CLI{}
	parser := newParserForTest(t, c)

	if _, err := parser.Parse([]string{"status"}); err != nil {
		t.Fatalf("parse status returned error: %v", err)
	}
	if c.Status.Limit != 20 {
		t.Fatalf("default status limit = %d, want 20", c.Status.Limit)
	}
}

func TestParseEnvPairs(t *testing.T) {
	env, err := parseEnvPairs([]string{"A=1", "B=x=y"})
	if err != nil {
		t.Fatalf("parseEnvPairs returned error: %v", err)
	}
	if env["A"] != "1" || env["B"] != "x=y" {
		t.Fatalf("unexpected env: %v", env)
	}

	if _, err := parseEnvPairs([]string{"NOVALUE"}); err == nil {
		t.Fatal("expected error for pair without '='")
	}
}

func TestExitCodeUnwrapsExitErrors(t *testing.T) {
	wrapped := errors.New("outer")
	if got := ExitCode(wrapped); got != 1 {
		t.Fatalf("generic error exit code = %d, want 1", got)
	}
	if got := ExitCode(exitCodeError{code: 7}); got != 7 {
		t.Fatalf("exit code = %d, want 7", got)
	}
}
