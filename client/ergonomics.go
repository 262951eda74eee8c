package client

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrStaleRead reports a guarded write against a path whose current
// content the caller has not seen.
var ErrStaleRead = errors.New("stale read")

type staleReadError struct {
	path   string
	reason string
}

func (e staleReadError) Error() string {
	return fmt.Sprintf("refusing to write %s: %s", e.path, e.reason)
}

func (e staleReadError) Is(target error) bool {
	return target == ErrStaleRead
}

// EditFile is the guarded write: it refuses to overwrite an existing
// file unless the caller has read it since its last modification.
// Creating a file that does not exist yet is always allowed.
func (w *Workspace) EditFile(ctx context.Context, path string, data []byte) error {
	info, err := w.router.Stat(ctx, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return w.WriteFile(ctx, path, data)
		}
		return err
	}

	decision := w.guard.NeedsReRead(path, info.ModTime)
	if decision.NeedsReRead {
		return staleReadError{path: path, reason: decision.Reason}
	}
	return w.WriteFile(ctx, path, data)
}

// ExecShell runs a script through /bin/sh -c inside the sandbox.
func (w *Workspace) ExecShell(ctx context.Context, script string, opts ExecOptions) (Result, error) {
	return w.Exec(ctx, "/bin/sh", []string{"-c", script}, opts)
}

// CombinedOutput joins a result's stdout and stderr, stdout first. Handy
// for feeding command output back to a model in one block.
func CombinedOutput(res Result) string {
	if res.Stderr == "" {
		return res.Stdout
	}
	if res.Stdout == "" {
		return res.Stderr
	}
	return res.Stdout + "\n" + res.Stderr
}
