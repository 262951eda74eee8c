package isolation

import (
	"errors"
	"strings"
)

const bubblewrapBinary = "bwrap"

// wrapBubblewrap rewrites the command to run under bwrap. Unlike seatbelt
// there is no profile file to consume; the policy is expressed entirely as
// command-line flags. A policy ProfileOverride is split on whitespace and
// used verbatim in place of the synthesized flags.
func wrapBubblewrap(command string, args []string, spec WrapSpec) (string, []string, error) {
	if spec.WorkspaceRoot == "" {
		return "", nil, errors.New("bubblewrap: workspace root is required")
	}

	var bwrapArgs []string
	if spec.Policy != nil && spec.Policy.ProfileOverride != "" {
		bwrapArgs = strings.Fields(spec.Policy.ProfileOverride)
	} else {
		bwrapArgs = bubblewrapArgs(spec)
	}

	wrapped := make([]string, 0, len(bwrapArgs)+len(args)+2)
	wrapped = append(wrapped, bwrapArgs...)
	wrapped = append(wrapped, "--", command)
	wrapped = append(wrapped, args...)
	return bubblewrapBinary, wrapped, nil
}

// bubblewrapArgs synthesizes the bind-mount declarations for the policy:
// the host filesystem read-only, fresh /dev, /proc and /tmp, the workspace
// root writable, the policy's extra paths bound with their access mode,
// and a detached network namespace unless the policy allows network. Path
// lists in the compiled policy are sorted, so the output is deterministic
// for identical inputs.
func bubblewrapArgs(spec WrapSpec) []string {
	args := []string{
		"--ro-bind", "/", "/",
		"--dev", "/dev",
		"--proc", "/proc",
		"--tmpfs", "/tmp",
		"--bind", spec.WorkspaceRoot, spec.WorkspaceRoot,
	}

	if spec.Policy != nil {
		for _, p := range spec.Policy.ReadOnlyPaths {
			args = append(args, "--ro-bind", p, p)
		}
		for _, p := range spec.Policy.ReadWritePaths {
			args = append(args, "--bind", p, p)
		}
	}

	if spec.Policy == nil || !spec.Policy.AllowNetwork {
		args = append(args, "--unshare-net")
	}

	args = append(args, "--die-with-parent")
	return args
}
