// Package isolation confines spawned processes with OS-level sandboxing.
//
// Two real backends are supported: seatbelt (macOS sandbox-exec with a
// generated SBPL profile) and bubblewrap (Linux bwrap with bind-mount
// flags). The none backend leaves commands untouched. Backend detection is
// a pure function of an injectable platform probe so tests can simulate
// every platform/backend combination without touching the real OS.
package isolation

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/workyardhq/workyard/internal/policy"
)

// Backend identifies the isolation mechanism used to confine a process.
type Backend string

const (
	BackendNone       Backend = "none"
	BackendSeatbelt   Backend = "seatbelt"
	BackendBubblewrap Backend = "bubblewrap"
)

// ErrBackendUnavailable reports a request for an isolation backend that the
// current platform cannot provide. Requesting an unavailable backend is a
// configuration error; workyard never silently downgrades to none.
var ErrBackendUnavailable = errors.New("isolation backend unavailable")

// ErrUnknownBackend reports a backend name outside the supported set.
var ErrUnknownBackend = errors.New("unknown isolation backend")

// Probe answers the platform questions detection depends on. The zero
// value is not usable; construct with DefaultProbe or fill both fields.
type Probe struct {
	// GOOS is the operating system target, as in runtime.GOOS.
	GOOS string
	// LookPath reports where a helper binary lives on the search path.
	LookPath func(name string) (string, error)
}

// DefaultProbe queries the real host.
func DefaultProbe() Probe {
	return Probe{GOOS: runtime.GOOS, LookPath: exec.LookPath}
}

// Detection describes the isolation backend the platform offers. Message
// is always populated, including on success, for operator diagnostics.
type Detection struct {
	Backend   Backend `json:"backend"`
	Available bool    `json:"available"`
	Message   string  `json:"message"`
}

// Detect maps the probed platform to its isolation backend: macOS to
// seatbelt (sandbox-exec ships with the OS), Linux to bubblewrap when the
// bwrap binary is discoverable, and everything else to none/unavailable.
func Detect(probe Probe) Detection {
	switch probe.GOOS {
	case "darwin":
		return Detection{
			Backend:   BackendSeatbelt,
			Available: true,
			Message:   "seatbelt: sandbox-exec ships with macOS",
		}
	case "linux":
		path, err := probe.LookPath("bwrap")
		if err != nil {
			return Detection{
				Backend:   BackendBubblewrap,
				Available: false,
				Message:   "bubblewrap: bwrap not found in PATH (install the bubblewrap package)",
			}
		}
		return Detection{
			Backend:   BackendBubblewrap,
			Available: true,
			Message:   fmt.Sprintf("bubblewrap: found bwrap at %s", path),
		}
	default:
		return Detection{
			Backend:   BackendNone,
			Available: false,
			Message:   fmt.Sprintf("no isolation backend for %s", probe.GOOS),
		}
	}
}

// Available reports whether the named backend can actually confine
// processes on the probed platform. The none backend is always available.
func Available(probe Probe, backend Backend) bool {
	switch backend {
	case BackendNone:
		return true
	case BackendSeatbelt:
		return probe.GOOS == "darwin"
	case BackendBubblewrap:
		if probe.GOOS != "linux" {
			return false
		}
		_, err := probe.LookPath("bwrap")
		return err == nil
	default:
		return false
	}
}

// ParseBackend validates a backend name from configuration or flags.
func ParseBackend(name string) (Backend, error) {
	switch Backend(strings.TrimSpace(strings.ToLower(name))) {
	case BackendNone:
		return BackendNone, nil
	case BackendSeatbelt:
		return BackendSeatbelt, nil
	case BackendBubblewrap:
		return BackendBubblewrap, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

// WrapSpec carries everything a backend needs to rewrite a command into
// its isolated form.
type WrapSpec struct {
	Backend       Backend
	WorkspaceRoot string
	Policy        *policy.Policy

	// ProfilePath is where the executor materialized the generated
	// profile. Consumed by the seatbelt backend, which passes the profile
	// to sandbox-exec by file path.
	ProfilePath string
}

// WrapCommand rewrites (command, args) into an isolated invocation. The
// none backend is the identity. The mapping is deterministic: identical
// specs always produce identical wrapped commands.
func WrapCommand(command string, args []string, spec WrapSpec) (string, []string, error) {
	switch spec.Backend {
	case BackendNone:
		return command, args, nil
	case BackendSeatbelt:
		return wrapSeatbelt(command, args, spec)
	case BackendBubblewrap:
		return wrapBubblewrap(command, args, spec)
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownBackend, spec.Backend)
	}
}

// Profile renders the textual isolation profile for the spec's backend:
// SBPL for seatbelt, the bwrap argument list for bubblewrap. The rendering
// is what the executor materializes under the working directory for
// inspection. A policy ProfileOverride replaces the synthesized text
// verbatim.
func Profile(spec WrapSpec) (string, error) {
	if spec.Policy != nil && spec.Policy.ProfileOverride != "" {
		return spec.Policy.ProfileOverride, nil
	}
	switch spec.Backend {
	case BackendNone:
		return "", nil
	case BackendSeatbelt:
		return seatbeltProfile(spec), nil
	case BackendBubblewrap:
		return strings.Join(bubblewrapArgs(spec), "\n") + "\n", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, spec.Backend)
	}
}
