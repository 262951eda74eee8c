// Package client is the public Go API for embedding workyard into an
// agent. A Workspace bundles one sandboxed executor, the virtual
// filesystem namespace, and a read-tracking guard behind a single
// handle, so callers get command execution and file access with one
// consistent lifecycle.
package client

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/workyardhq/workyard/internal/isolation"
	"github.com/workyardhq/workyard/internal/lifecycle"
	"github.com/workyardhq/workyard/internal/policy"
	"github.com/workyardhq/workyard/internal/readguard"
	"github.com/workyardhq/workyard/internal/sandbox"
	"github.com/workyardhq/workyard/internal/vfs"
)

// WorkspaceMountPath is where the sandbox working directory appears in
// the virtual namespace.
const WorkspaceMountPath = "/workspace"

// Options configures a Workspace.
type Options struct {
	// WorkspaceRoot is the absolute host directory the sandbox owns.
	WorkspaceRoot string
	// Backend selects the isolation mechanism. Empty means none.
	Backend isolation.Backend
	// Policy is the compiled isolation policy. Nil means the default
	// deny-network policy.
	Policy *policy.Policy
	// Env is injected into every command the workspace executes.
	Env map[string]string
	// DefaultTimeout bounds commands without a per-call timeout.
	DefaultTimeout time.Duration
	// Mounts are additional namespace mounts beyond /workspace.
	Mounts []vfs.Mount
	// Probe overrides platform detection, for tests.
	Probe *isolation.Probe
	// Logger is optional.
	Logger *log.Logger
}

// Workspace is one agent workspace. Not safe to Destroy concurrently
// with in-flight operations on other goroutines; everything else is.
type Workspace struct {
	executor *sandbox.Executor
	router   *vfs.Router
	wsFS     *vfs.Local
	guard    *readguard.Guard
}

// New assembles a workspace. The working directory is not created and
// no provider is initialized until Start.
func New(opts Options) (*Workspace, error) {
	wsFS, err := vfs.NewLocal(vfs.LocalOptions{
		Root:   opts.WorkspaceRoot,
		Name:   "workspace",
		Logger: opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	mounts := append([]vfs.Mount{{Path: WorkspaceMountPath, FS: wsFS}}, opts.Mounts...)
	router, err := vfs.NewRouter(mounts, opts.Logger)
	if err != nil {
		return nil, err
	}

	executor, err := sandbox.New(sandbox.Options{
		WorkDir:        opts.WorkspaceRoot,
		Backend:        opts.Backend,
		Policy:         opts.Policy,
		Env:            opts.Env,
		DefaultTimeout: opts.DefaultTimeout,
		Probe:          opts.Probe,
		Logger:         opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Workspace{
		executor: executor,
		router:   router,
		wsFS:     wsFS,
		guard:    readguard.New(),
	}, nil
}

// ID returns the sandbox identifier.
func (w *Workspace) ID() string {
	return w.executor.ID()
}

// State reports the executor's lifecycle state.
func (w *Workspace) State() lifecycle.State {
	return w.executor.State()
}

// Start initializes every namespace provider and brings the executor to
// running. Safe to call repeatedly and from concurrent goroutines.
func (w *Workspace) Start(ctx context.Context) error {
	if err := w.router.Init(ctx); err != nil {
		return err
	}
	if err := w.executor.Start(ctx); err != nil {
		return err
	}
	// Binding the workspace filesystem keeps executed commands and file
	// operations on the same bytes.
	return w.executor.Mount(w.wsFS, WorkspaceMountPath)
}

// Stop halts command execution without releasing any state. Files and
// read records survive a stop/start cycle.
func (w *Workspace) Stop(ctx context.Context) error {
	return w.executor.Stop(ctx)
}

// Destroy tears down the executor and every namespace provider. Partial
// failures are joined; teardown continues past them.
func (w *Workspace) Destroy(ctx context.Context) error {
	w.guard.Clear()
	return errors.Join(
		w.executor.Destroy(ctx),
		w.router.Destroy(ctx),
	)
}

// Exec runs one command in the sandbox. The error reports misuse only;
// command outcomes, including failures and timeouts, land in the Result.
func (w *Workspace) Exec(ctx context.Context, command string, args []string, opts ExecOptions) (Result, error) {
	return w.executor.Execute(ctx, command, args, opts)
}

// ReadFile reads through the namespace and records the read, so a later
// guarded write can detect concurrent modification.
func (w *Workspace) ReadFile(ctx context.Context, path string) ([]byte, error) {
	data, err := w.router.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if info, statErr := w.router.Stat(ctx, path); statErr == nil {
		w.guard.RecordRead(path, info.ModTime)
	}
	return data, nil
}

// WriteFile writes through the namespace without any staleness check and
// drops the path's read record: the next guarded write must re-read.
func (w *Workspace) WriteFile(ctx context.Context, path string, data []byte) error {
	if err := w.router.WriteFile(ctx, path, data); err != nil {
		return err
	}
	w.guard.ClearReadRecord(path)
	return nil
}

// List lists a namespace directory.
func (w *Workspace) List(ctx context.Context, path string) ([]DirEntry, error) {
	return w.router.List(ctx, path)
}

// Stat stats a namespace path.
func (w *Workspace) Stat(ctx context.Context, path string) (FileInfo, error) {
	return w.router.Stat(ctx, path)
}

// Mkdir creates a namespace directory, parents included.
func (w *Workspace) Mkdir(ctx context.Context, path string) error {
	return w.router.Mkdir(ctx, path)
}

// Remove removes a namespace path and clears its read record.
func (w *Workspace) Remove(ctx context.Context, path string) error {
	if err := w.router.Remove(ctx, path); err != nil {
		return err
	}
	w.guard.ClearReadRecord(path)
	return nil
}

// Copy copies a file, across mounts if the endpoints live on different
// providers.
func (w *Workspace) Copy(ctx context.Context, src, dst string) error {
	return w.router.Copy(ctx, src, dst)
}

// Move moves a file, across mounts if needed. The source's read record
// is dropped.
func (w *Workspace) Move(ctx context.Context, src, dst string) error {
	if err := w.router.Move(ctx, src, dst); err != nil {
		return err
	}
	w.guard.ClearReadRecord(src)
	return nil
}

// NeedsReRead reports whether the path must be re-read before a guarded
// write would be allowed to proceed.
func (w *Workspace) NeedsReRead(ctx context.Context, path string) (bool, string, error) {
	info, err := w.router.Stat(ctx, path)
	if err != nil {
		return false, "", err
	}
	decision := w.guard.NeedsReRead(path, info.ModTime)
	return decision.NeedsReRead, decision.Reason, nil
}
