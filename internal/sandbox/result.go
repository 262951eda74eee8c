package sandbox

import "time"

// Reserved exit codes for outcomes where the command produced no real exit
// status. Negative values cannot collide with anything a process reports.
const (
	// ExitCodeStartFailed marks a command that could not be spawned at all.
	ExitCodeStartFailed = -1
	// ExitCodeTimedOut marks a command killed by the per-call timeout.
	ExitCodeTimedOut = -2
)

// Result is the outcome of one command execution. Anything that is a
// property of the command — non-zero exit, spawn failure, timeout — lands
// here with Success=false; Execute only returns a Go error for misuse
// (executor not running, escaping cwd, unknown backend).
type Result struct {
	Success  bool          `json:"success"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out,omitempty"`
}
