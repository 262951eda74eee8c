package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/workyardhq/workyard/internal/isolation"
	"github.com/workyardhq/workyard/internal/policy"
	"github.com/workyardhq/workyard/internal/runlog"
	"github.com/workyardhq/workyard/internal/runtimeconfig"
	"github.com/workyardhq/workyard/internal/sandbox"
)

type runtimeContext struct {
	CWD        string
	Stdout     *os.File
	Loader     policy.Loader
	Config     runtimeconfig.Config
	ConfigPath string
	Probe      *isolation.Probe
}

type CLI struct {
	Version kong.VersionFlag `help:"Print version and exit"`

	Exec   ExecCommand   `cmd:"" help:"Execute a command in a sandboxed workspace"`
	Policy PolicyCommand `cmd:"" help:"Policy commands"`
	Fs     FsCommand     `cmd:"" help:"Operate on the virtual filesystem namespace"`
	Doctor DoctorCommand `cmd:"" help:"Run environment and isolation diagnostics"`
	Status StatusCommand `cmd:"" help:"Inspect the execution journal"`
}

type PolicyCommand struct {
	Validate PolicyValidateCommand `cmd:"" help:"Validate policy configuration"`
}

type PolicyValidateCommand struct {
	Chdir string `short:"c" help:"Change to this directory before running commands"`
	JSON  bool   `help:"Print compiled policy as JSON"`
}

type ExecCommand struct {
	Chdir     string   `short:"c" help:"Change to this directory before running commands"`
	LogLevel  string   `help:"Log level (debug|info|warn|error)"`
	Backend   string   `help:"Isolation backend (none|seatbelt|bubblewrap; defaults to runtime config or platform detection)"`
	Workspace string   `short:"w" help:"Workspace root the sandbox owns (defaults to runtime config or the current directory)"`
	Timeout   int64    `help:"Command timeout in seconds"`
	Env       []string `short:"e" help:"Extra KEY=VALUE environment for this command"`
	NoJournal bool     `help:"Skip recording this run in the execution journal"`

	Command []string `arg:"" passthrough:"" required:"" help:"Command to execute"`
}

type DoctorCommand struct {
	Chdir   string `short:"c" help:"Change to this directory before running commands"`
	Backend string `help:"Isolation backend to diagnose (defaults to platform detection)"`
	JSON    bool   `help:"Print doctor report as JSON"`
}

type StatusCommand struct {
	Sandbox string `help:"Only show runs for this sandbox ID"`
	Limit   int    `help:"Maximum number of runs to show" default:"20"`
	JSON    bool   `help:"Print journal entries as JSON"`
}

type FsCommand struct {
	Ls    FsLsCommand    `cmd:"" help:"List a directory in the namespace"`
	Cat   FsCatCommand   `cmd:"" help:"Print a file from the namespace"`
	Write FsWriteCommand `cmd:"" help:"Write stdin to a file in the namespace"`
	Stat  FsStatCommand  `cmd:"" help:"Stat a path in the namespace"`
	Mkdir FsMkdirCommand `cmd:"" help:"Create a directory in the namespace"`
	Rm    FsRmCommand    `cmd:"" help:"Remove a path from the namespace"`
	Cp    FsCpCommand    `cmd:"" help:"Copy a file, across mounts if needed"`
	Mv    FsMvCommand    `cmd:"" help:"Move a file, across mounts if needed"`
}

type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("command failed with exit code %d", e.code)
}

func (e exitCodeError) ExitCode() int {
	return e.code
}

type hasExitCode interface {
	ExitCode() int
}

func Run(args []string, version string) error {
	cfg, cfgPath, err := runtimeconfig.Load()
	if err != nil {
		return err
	}

	runtimeCtx := &runtimeContext{
		Stdout:     os.Stdout,
		Loader:     policy.Loader{},
		Config:     cfg,
		ConfigPath: cfgPath,
	}

	cli := CLI{}
	parser, err := kong.New(
		&cli,
		kong.Name("workyard"),
		kong.Description("Sandboxed workspace runner for autonomous agents"),
		kong.Vars{"version": version},
	)
	if err != nil {
		return err
	}

	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	runtimeCtx.CWD = cwd

	return ctx.Run(runtimeCtx)
}

func ExitCode(err error) int {
	var codeErr hasExitCode
	if errors.As(err, &codeErr) {
		return codeErr.ExitCode()
	}
	return 1
}

func (c *PolicyValidateCommand) Run(ctx *runtimeContext) error {
	cwd, err := resolveCWD(ctx.CWD, c.Chdir)
	if err != nil {
		return err
	}
	compiled, source, err := ctx.Loader.LoadAndCompile(cwd)
	if err != nil {
		return err
	}

	if c.JSON {
		payload := map[string]any{
			"source": source,
			"policy": compiled,
		}
		enc := json.NewEncoder(ctx.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	_, err = fmt.Fprintf(ctx.Stdout, "policy valid: %s\npolicy hash: %s\n", source, compiled.Hash)
	return err
}

func (e *ExecCommand) Run(ctx *runtimeContext) error {
	logger, err := newLogger(e.LogLevel, "exec")
	if err != nil {
		return err
	}
	color := shouldUseANSI(os.Stderr)
	applyPolishedLoggerStyles(logger, color)

	workDir, err := resolveWorkspaceRoot(ctx, e.Workspace, e.Chdir)
	if err != nil {
		return err
	}

	pol, source, err := loadPolicyOrDefault(ctx.Loader, workDir, logger)
	if err != nil {
		return err
	}

	backend, err := resolveBackend(e.Backend, ctx.Config.DefaultBackend, ctx.Probe)
	if err != nil {
		return err
	}

	callEnv, err := parseEnvPairs(e.Env)
	if err != nil {
		return err
	}

	executor, err := sandbox.New(sandbox.Options{
		WorkDir:        workDir,
		Backend:        backend,
		Policy:         pol,
		Env:            ctx.Config.Env,
		DefaultTimeout: time.Duration(ctx.Config.TimeoutSeconds) * time.Second,
		Probe:          ctx.Probe,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	runCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := executor.Start(runCtx); err != nil {
		return err
	}
	defer func() {
		_ = executor.Destroy(context.Background())
	}()

	if shouldShowStartupHeader(os.Stderr) {
		header := startupHeader{
			Title: "workyard",
			Fields: []startupField{
				{Key: "sandbox", Value: executor.ID()},
				{Key: "backend", Value: string(backend)},
				{Key: "workspace", Value: workDir},
				{Key: "policy", Value: source},
			},
		}
		if err := writeStartupHeader(os.Stderr, header, color); err != nil {
			return err
		}
	}

	command := e.Command[0]
	args := append([]string(nil), e.Command[1:]...)

	result, err := executor.Execute(runCtx, command, args, sandbox.ExecOptions{
		Timeout: time.Duration(e.Timeout) * time.Second,
		Env:     callEnv,
		OnStdout: func(chunk []byte) {
			_, _ = ctx.Stdout.Write(chunk)
		},
		OnStderr: func(chunk []byte) {
			_, _ = os.Stderr.Write(chunk)
		},
	})
	if err != nil {
		return err
	}

	if !e.NoJournal {
		if journal, jErr := runlog.New(runlog.Options{}); jErr != nil {
			logger.Warn("execution journal unavailable", "error", jErr)
		} else if _, jErr := journal.Record(context.Background(), executor.ID(), string(backend), command, args, e.Chdir, result); jErr != nil {
			logger.Warn("could not journal run", "error", jErr)
		}
	}

	if result.TimedOut {
		logger.Error("command timed out", "duration", result.Duration)
	}
	if !result.Success {
		return exitCodeError{code: result.ExitCode}
	}
	return nil
}

func (d *DoctorCommand) Run(ctx *runtimeContext) error {
	cwd, err := resolveCWD(ctx.CWD, d.Chdir)
	if err != nil {
		return err
	}
	probe := isolation.DefaultProbe()
	if ctx.Probe != nil {
		probe = *ctx.Probe
	}

	checks := []doctorCheck{
		{Name: "runtime_config", Status: "pass", Message: fmt.Sprintf("using runtime config path %s", ctx.ConfigPath)},
	}

	detection := isolation.Detect(probe)
	detectStatus := "pass"
	if !detection.Available {
		detectStatus = "warn"
	}
	checks = append(checks, doctorCheck{
		Name:    "platform_isolation",
		Status:  detectStatus,
		Message: detection.Message,
	})

	backendName := detection.Backend
	if strings.TrimSpace(d.Backend) != "" {
		requested, parseErr := isolation.ParseBackend(d.Backend)
		if parseErr != nil {
			return parseErr
		}
		backendName = requested
		if isolation.Available(probe, requested) {
			checks = append(checks, doctorCheck{
				Name:    "requested_backend",
				Status:  "pass",
				Message: fmt.Sprintf("backend %s is available on this host", requested),
			})
		} else {
			checks = append(checks, doctorCheck{
				Name:    "requested_backend",
				Status:  "fail",
				Message: fmt.Sprintf("backend %s is not available: %s", requested, detection.Message),
			})
		}
	}

	compiled, source, err := ctx.Loader.LoadAndCompile(cwd)
	if err != nil {
		checks = append(checks, doctorCheck{
			Name:    "workspace_policy",
			Status:  "warn",
			Message: fmt.Sprintf("policy not loaded from %s: %v", cwd, err),
		})
	} else {
		checks = append(checks, doctorCheck{
			Name:    "workspace_policy",
			Status:  "pass",
			Message: fmt.Sprintf("policy loaded from %s (hash %s)", source, compiled.Hash),
		})
	}

	if _, jErr := runlog.New(runlog.Options{}); jErr != nil {
		checks = append(checks, doctorCheck{
			Name:    "execution_journal",
			Status:  "warn",
			Message: fmt.Sprintf("journal unavailable: %v", jErr),
		})
	} else {
		checks = append(checks, doctorCheck{
			Name:    "execution_journal",
			Status:  "pass",
			Message: "journal database is writable",
		})
	}

	if d.JSON {
		payload := map[string]any{
			"backend": string(backendName),
			"checks":  checks,
		}
		enc := json.NewEncoder(ctx.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	_, err = fmt.Fprint(ctx.Stdout, renderDoctorReport(string(backendName), checks, shouldUseANSI(ctx.Stdout)))
	return err
}

func (s *StatusCommand) Run(ctx *runtimeContext) error {
	journal, err := runlog.New(runlog.Options{})
	if err != nil {
		return err
	}

	var entries []runlog.Entry
	if s.Sandbox != "" {
		entries, err = journal.BySandbox(context.Background(), s.Sandbox)
	} else {
		entries, err = journal.Recent(context.Background(), s.Limit)
	}
	if err != nil {
		return err
	}

	if s.JSON {
		enc := json.NewEncoder(ctx.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		_, err := fmt.Fprintln(ctx.Stdout, "no journaled runs")
		return err
	}
	for _, entry := range entries {
		outcome := fmt.Sprintf("exit %d", entry.ExitCode)
		if entry.Success {
			outcome = "ok"
		}
		if entry.TimedOut {
			outcome = "timed out"
		}
		if _, err := fmt.Fprintf(ctx.Stdout, "%s  %s  %-10s %-9s %s\n",
			entry.StartedAt.Format(time.RFC3339),
			entry.RunID,
			entry.Backend,
			outcome,
			strings.Join(append([]string{entry.Command}, entry.Args...), " "),
		); err != nil {
			return err
		}
	}
	return nil
}

func resolveWorkspaceRoot(ctx *runtimeContext, flagRoot, chdir string) (string, error) {
	root := strings.TrimSpace(flagRoot)
	if root == "" {
		root = ctx.Config.WorkspaceRoot
	}
	if root == "" {
		return resolveCWD(ctx.CWD, chdir)
	}
	if !filepath.IsAbs(root) {
		root = filepath.Join(ctx.CWD, root)
	}
	return filepath.Clean(root), nil
}

// loadPolicyOrDefault compiles the workspace policy, falling back to the
// deny-by-default policy when no policy file exists.
func loadPolicyOrDefault(loader policy.Loader, workDir string, logger *log.Logger) (*policy.Policy, string, error) {
	compiled, source, err := loader.LoadAndCompile(workDir)
	if err == nil {
		return compiled, source, nil
	}
	if errors.Is(err, policy.ErrPolicyNotFound) {
		if logger != nil {
			logger.Debug("no policy file found, using defaults", "work_dir", workDir)
		}
		return policy.Default(), "(default)", nil
	}
	return nil, "", err
}

func resolveBackend(requested, configured string, probe *isolation.Probe) (isolation.Backend, error) {
	p := isolation.DefaultProbe()
	if probe != nil {
		p = *probe
	}

	name := strings.TrimSpace(requested)
	if name == "" {
		name = strings.TrimSpace(configured)
	}
	if name == "" {
		detection := isolation.Detect(p)
		if detection.Available {
			return detection.Backend, nil
		}
		return isolation.BackendNone, nil
	}
	return isolation.ParseBackend(name)
}

func parseEnvPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --env %q, expected KEY=VALUE", pair)
		}
		env[key] = value
	}
	return env, nil
}

func resolveCWD(base, chdir string) (string, error) {
	if chdir == "" {
		return base, nil
	}
	if filepath.IsAbs(chdir) {
		return filepath.Clean(chdir), nil
	}
	return filepath.Join(base, chdir), nil
}

func newLogger(rawLevel, component string) (*log.Logger, error) {
	levelName := strings.TrimSpace(strings.ToLower(rawLevel))
	if levelName == "" {
		levelName = "info"
	}
	level, err := log.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", rawLevel, err)
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:     level,
		Formatter: log.TextFormatter,
	})
	return logger.With("component", component), nil
}
