package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type runRequest struct {
	Command  string
	Args     []string
	Dir      string
	Env      []string
	Timeout  time.Duration
	OnStdout func([]byte)
	OnStderr func([]byte)
}

// runCommand spawns the wrapped command and reduces whatever happens to a
// Result. Buffered and streaming mode differ only in whether output chunks
// are delivered incrementally; the final Result is identical either way.
func runCommand(ctx context.Context, req runRequest) Result {
	cmd := exec.Command(req.Command, req.Args...)
	cmd.Dir = req.Dir
	cmd.Env = req.Env
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	var pumps sync.WaitGroup

	streaming := req.OnStdout != nil || req.OnStderr != nil
	if streaming {
		stdoutPipe, err := cmd.StdoutPipe()
		if err != nil {
			return spawnFailure(err)
		}
		stderrPipe, err := cmd.StderrPipe()
		if err != nil {
			return spawnFailure(err)
		}
		pumps.Add(2)
		go pump(&pumps, stdoutPipe, &stdout, req.OnStdout)
		go pump(&pumps, stderrPipe, &stderr, req.OnStderr)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return spawnFailure(err)
	}

	var timedOut atomic.Bool
	timer := time.AfterFunc(req.Timeout, func() {
		timedOut.Store(true)
		killTree(cmd)
	})
	defer timer.Stop()

	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			killTree(cmd)
		case <-watchDone:
		}
	}()

	// The pipes must be drained before Wait closes them.
	pumps.Wait()
	waitErr := cmd.Wait()
	close(watchDone)

	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	switch {
	case timedOut.Load():
		result.ExitCode = ExitCodeTimedOut
		result.TimedOut = true
		result.Stderr = appendLine(result.Stderr, fmt.Sprintf("command timed out after %s", req.Timeout))
	case waitErr == nil:
		result.Success = true
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = ExitCodeStartFailed
			result.Stderr = appendLine(result.Stderr, waitErr.Error())
		}
	}
	return result
}

func spawnFailure(err error) Result {
	return Result{
		ExitCode: ExitCodeStartFailed,
		Stderr:   fmt.Sprintf("failed to start command: %v", err),
	}
}

func pump(wg *sync.WaitGroup, r io.Reader, buf *bytes.Buffer, onChunk func([]byte)) {
	defer wg.Done()
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if onChunk != nil {
				copied := make([]byte, n)
				copy(copied, chunk[:n])
				onChunk(copied)
			}
		}
		if err != nil {
			return
		}
	}
}

func appendLine(s, line string) string {
	if s == "" {
		return line
	}
	return strings.TrimRight(s, "\n") + "\n" + line
}
