// Package sandbox executes commands inside one bounded working directory,
// confined by an isolation backend. The executor follows the shared
// provider lifecycle; commands only run while the executor is in the
// running state. Execution outcomes are values (Result), never errors:
// errors are reserved for misuse of the executor itself.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/workyardhq/workyard/internal/isolation"
	"github.com/workyardhq/workyard/internal/lifecycle"
	"github.com/workyardhq/workyard/internal/policy"
	"github.com/workyardhq/workyard/internal/vfs"
)

// DefaultTimeout bounds a command that specifies no per-call timeout.
const DefaultTimeout = 30 * time.Second

// ProfileFileName is the fixed relative name of the materialized isolation
// profile inside the working directory, so tooling can locate it for
// debugging.
const ProfileFileName = ".workyard-profile.sb"

var (
	// ErrNotRunning reports an Execute call on an executor that is not in
	// the running state. This is a precondition violation, distinct from a
	// command that merely exits non-zero.
	ErrNotRunning = errors.New("executor is not running")

	// ErrNotMountable reports a Mount call with a filesystem whose driver
	// configuration has no locally addressable path.
	ErrNotMountable = errors.New("filesystem is not mountable")

	// ErrCWDEscapesWorkspace reports a per-call cwd that resolves outside
	// the executor's working directory.
	ErrCWDEscapesWorkspace = errors.New("cwd escapes the working directory")
)

// Options configures an Executor.
type Options struct {
	// WorkDir is the absolute working directory the executor owns.
	WorkDir string
	// Backend selects the isolation mechanism. Defaults to none.
	Backend isolation.Backend
	// Policy is the compiled isolation policy. Defaults to policy.Default.
	Policy *policy.Policy
	// Env is the executor's configured environment. The spawned process
	// sees exactly these variables plus the host PATH; no other host
	// variable leaks in unless the caller spreads it here explicitly.
	Env map[string]string
	// DefaultTimeout overrides DefaultTimeout for calls without their own.
	DefaultTimeout time.Duration
	// Probe overrides platform detection, for tests.
	Probe *isolation.Probe
	// Logger is optional.
	Logger *log.Logger
}

// ExecOptions tunes one Execute call.
type ExecOptions struct {
	// Timeout bounds the command; zero means the executor default.
	Timeout time.Duration
	// Env is merged over the executor's environment, highest precedence.
	Env map[string]string
	// CWD, if set, is resolved relative to the working directory and must
	// not escape it.
	CWD string
	// OnStdout and OnStderr switch the call into streaming mode: chunks
	// are delivered as they arrive, and the final Result still carries
	// the full buffered output.
	OnStdout func([]byte)
	OnStderr func([]byte)
}

// Info is a diagnostic snapshot of an executor.
type Info struct {
	ID         string            `json:"id"`
	State      lifecycle.State   `json:"state"`
	Backend    isolation.Backend `json:"backend"`
	WorkDir    string            `json:"work_dir"`
	MountPath  string            `json:"mount_path,omitempty"`
	PolicyHash string            `json:"policy_hash"`
}

// Executor owns one working directory and one isolation policy. The
// working directory and its profile artifact belong exclusively to this
// instance.
type Executor struct {
	id             string
	backend        isolation.Backend
	policy         *policy.Policy
	env            map[string]string
	defaultTimeout time.Duration
	probe          isolation.Probe
	logger         *log.Logger
	lc             *lifecycle.Machine

	mu        sync.Mutex // guards workDir and mount bookkeeping
	workDir   string
	mountPath string
}

// New validates the requested backend against the platform and constructs
// the executor. Requesting a backend the platform cannot provide fails
// here, immediately and deterministically; there is no silent fallback to
// the none backend.
func New(opts Options) (*Executor, error) {
	if opts.WorkDir == "" {
		return nil, errors.New("executor: work dir is required")
	}
	if !filepath.IsAbs(opts.WorkDir) {
		return nil, fmt.Errorf("executor: work dir %q must be absolute", opts.WorkDir)
	}

	backend := opts.Backend
	if backend == "" {
		backend = isolation.BackendNone
	}
	probe := isolation.DefaultProbe()
	if opts.Probe != nil {
		probe = *opts.Probe
	}
	if !isolation.Available(probe, backend) {
		detection := isolation.Detect(probe)
		return nil, fmt.Errorf("%w: %s requested but %s", isolation.ErrBackendUnavailable, backend, detection.Message)
	}

	pol := opts.Policy
	if pol == nil {
		pol = policy.Default()
	}
	timeout := opts.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	env := make(map[string]string, len(opts.Env))
	for k, v := range opts.Env {
		env[k] = v
	}

	return &Executor{
		id:             newSandboxID(),
		backend:        backend,
		policy:         pol,
		env:            env,
		defaultTimeout: timeout,
		probe:          probe,
		logger:         opts.Logger,
		lc:             lifecycle.New(),
		workDir:        filepath.Clean(opts.WorkDir),
	}, nil
}

func (e *Executor) ID() string {
	return e.id
}

func (e *Executor) State() lifecycle.State {
	return e.lc.State()
}

func (e *Executor) Backend() isolation.Backend {
	return e.backend
}

// WorkDir returns the current working directory, which Mount may have
// repointed at a filesystem's backing path.
func (e *Executor) WorkDir() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.workDir
}

func (e *Executor) Info() Info {
	e.mu.Lock()
	workDir, mountPath := e.workDir, e.mountPath
	e.mu.Unlock()
	return Info{
		ID:         e.id,
		State:      e.lc.State(),
		Backend:    e.backend,
		WorkDir:    workDir,
		MountPath:  mountPath,
		PolicyHash: e.policy.Hash,
	}
}

func (e *Executor) profilePath() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return filepath.Join(e.workDir, ProfileFileName)
}

// Start creates the working directory if absent and, for a real isolation
// backend, materializes the generated profile inside it so tooling can
// inspect what the sandbox enforces.
func (e *Executor) Start(ctx context.Context) error {
	if err := e.lc.Init(ctx, func(context.Context) error {
		workDir := e.WorkDir()
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return fmt.Errorf("create work dir %q: %w", workDir, err)
		}
		if e.backend != isolation.BackendNone {
			if err := e.materializeProfile(); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	return e.lc.Start(ctx, func(context.Context) error {
		if e.logger != nil {
			e.logger.Debug("executor running", "id", e.id, "backend", e.backend, "work_dir", e.WorkDir())
		}
		return nil
	})
}

func (e *Executor) materializeProfile() error {
	profile, err := isolation.Profile(isolation.WrapSpec{
		Backend:       e.backend,
		WorkspaceRoot: e.WorkDir(),
		Policy:        e.policy,
	})
	if err != nil {
		return err
	}
	path := e.profilePath()
	if err := os.WriteFile(path, []byte(profile), 0o600); err != nil {
		return fmt.Errorf("materialize isolation profile %q: %w", path, err)
	}
	return nil
}

// Stop halts execution without releasing the working directory.
func (e *Executor) Stop(ctx context.Context) error {
	return e.lc.Stop(ctx, func(context.Context) error {
		if e.logger != nil {
			e.logger.Debug("executor stopped", "id", e.id)
		}
		return nil
	})
}

// Destroy removes the materialized profile artifact before the executor
// reaches the destroyed state. Removal is best-effort: a profile that was
// never created is not an error.
func (e *Executor) Destroy(ctx context.Context) error {
	return e.lc.Destroy(ctx, func(context.Context) error {
		path := e.profilePath()
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			if e.logger != nil {
				e.logger.Warn("could not remove isolation profile", "path", path, "error", err)
			}
		}
		return nil
	})
}

// SupportsMounting reports whether this executor can mount filesystems at
// all. Callers must check a capability before using it.
func (e *Executor) SupportsMounting() bool {
	return true
}

// CanMount reports whether the filesystem's driver configuration is one
// this executor can back its working directory with.
func (e *Executor) CanMount(fs vfs.FileSystem) bool {
	cfg := fs.Config()
	return cfg.Type == vfs.MountTypeLocal && cfg.LocalPath != ""
}

// Mount repoints the working directory at the filesystem's backing path,
// so writes made through the filesystem interface and files the spawned
// process sees are the same bytes with no copy step. Only drivers with a
// locally addressable configuration qualify; anything else fails fast.
// If the executor already materialized a profile, it is rewritten for the
// new root.
func (e *Executor) Mount(fs vfs.FileSystem, mountPath string) error {
	cfg := fs.Config()
	if !e.CanMount(fs) {
		return fmt.Errorf("%w: driver %q has no locally addressable path; only local filesystems can back a sandbox working directory", ErrNotMountable, cfg.Type)
	}

	e.mu.Lock()
	previous := e.workDir
	e.workDir = filepath.Clean(cfg.LocalPath)
	e.mountPath = vfs.NormalizePath(mountPath)
	e.mu.Unlock()

	if e.backend != isolation.BackendNone {
		switch e.lc.State() {
		case lifecycle.StateReady, lifecycle.StateRunning, lifecycle.StateStopped:
			// The profile embeds the workspace root; regenerate it under
			// the new root and drop the stale artifact.
			if err := os.Remove(filepath.Join(previous, ProfileFileName)); err != nil && !errors.Is(err, os.ErrNotExist) {
				if e.logger != nil {
					e.logger.Warn("could not remove stale isolation profile", "path", previous, "error", err)
				}
			}
			if err := e.materializeProfile(); err != nil {
				return err
			}
		}
	}

	if e.logger != nil {
		e.logger.Debug("filesystem mounted", "id", e.id, "mount_path", mountPath, "work_dir", cfg.LocalPath)
	}
	return nil
}

// Execute runs one command inside the sandbox. The returned error only
// reports misuse; every outcome of an actually attempted command lands in
// the Result.
func (e *Executor) Execute(ctx context.Context, command string, args []string, opts ExecOptions) (Result, error) {
	if state := e.lc.State(); state != lifecycle.StateRunning {
		return Result{}, fmt.Errorf("%w (state %s)", ErrNotRunning, state)
	}

	workDir := e.WorkDir()
	cwd, err := resolveCWD(workDir, opts.CWD)
	if err != nil {
		return Result{}, err
	}

	wrappedCmd, wrappedArgs, err := isolation.WrapCommand(command, args, isolation.WrapSpec{
		Backend:       e.backend,
		WorkspaceRoot: workDir,
		Policy:        e.policy,
		ProfilePath:   filepath.Join(workDir, ProfileFileName),
	})
	if err != nil {
		return Result{}, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	if e.logger != nil {
		e.logger.Debug("executing command", "id", e.id, "command", command, "backend", e.backend, "timeout", timeout)
	}

	result := runCommand(ctx, runRequest{
		Command:  wrappedCmd,
		Args:     wrappedArgs,
		Dir:      cwd,
		Env:      e.composeEnv(opts.Env),
		Timeout:  timeout,
		OnStdout: opts.OnStdout,
		OnStderr: opts.OnStderr,
	})

	if e.logger != nil {
		e.logger.Debug("command finished",
			"id", e.id,
			"command", command,
			"exit_code", result.ExitCode,
			"timed_out", result.TimedOut,
			"duration", result.Duration,
		)
	}
	return result, nil
}

// composeEnv builds the spawned process's environment: host PATH, then
// the executor's configured variables, then per-call overrides, rendered
// in sorted order so wrapped invocations are deterministic.
func (e *Executor) composeEnv(callEnv map[string]string) []string {
	merged := map[string]string{}
	if hostPath, ok := os.LookupEnv("PATH"); ok {
		merged["PATH"] = hostPath
	}
	for k, v := range e.env {
		merged[k] = v
	}
	for k, v := range callEnv {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+merged[k])
	}
	return env
}

func resolveCWD(workDir, cwd string) (string, error) {
	if cwd == "" {
		return workDir, nil
	}
	resolved := filepath.Join(workDir, cwd)
	rel, err := filepath.Rel(workDir, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrCWDEscapesWorkspace, cwd)
	}
	return resolved, nil
}
