package isolation

import (
	"errors"
	"fmt"
	"strings"
)

const seatbeltBinary = "/usr/bin/sandbox-exec"

// wrapSeatbelt rewrites the command to run under sandbox-exec with the
// materialized SBPL profile. The profile itself is generated by
// seatbeltProfile and written to disk by the executor; seatbelt consumes
// it by path.
func wrapSeatbelt(command string, args []string, spec WrapSpec) (string, []string, error) {
	if spec.ProfilePath == "" {
		return "", nil, errors.New("seatbelt: profile path is required")
	}
	wrapped := make([]string, 0, len(args)+3)
	wrapped = append(wrapped, "-f", spec.ProfilePath, command)
	wrapped = append(wrapped, args...)
	return seatbeltBinary, wrapped, nil
}

// seatbeltProfile synthesizes the SBPL access-control profile for the
// policy: default deny, read anywhere, write only under the workspace root
// and the policy's read-write paths, network per the policy (denied unless
// allowed). Path lists in the compiled policy are sorted, so the output is
// deterministic for identical inputs.
func seatbeltProfile(spec WrapSpec) string {
	var b strings.Builder
	b.WriteString("(version 1)\n")
	b.WriteString("(deny default)\n")
	b.WriteString("(allow process-fork)\n")
	b.WriteString("(allow process-exec)\n")
	b.WriteString("(allow signal (target same-sandbox))\n")
	b.WriteString("(allow sysctl-read)\n")
	b.WriteString("(allow mach-lookup)\n")
	b.WriteString("(allow file-read*)\n")

	fmt.Fprintf(&b, "(allow file-write* (subpath %s))\n", sbplString(spec.WorkspaceRoot))
	if spec.Policy != nil {
		for _, p := range spec.Policy.ReadWritePaths {
			fmt.Fprintf(&b, "(allow file-write* (subpath %s))\n", sbplString(p))
		}
		// Reads are already allowed everywhere; the read-only grants are
		// still emitted so the profile records the policy's full intent
		// and stays symmetric with the bubblewrap rendering.
		for _, p := range spec.Policy.ReadOnlyPaths {
			fmt.Fprintf(&b, "(allow file-read* (subpath %s))\n", sbplString(p))
		}
	}

	if spec.Policy != nil && spec.Policy.AllowNetwork {
		b.WriteString("(allow network-outbound)\n")
		b.WriteString("(allow network-inbound (local ip \"localhost:*\"))\n")
		b.WriteString("(allow system-socket)\n")
	}

	return b.String()
}

// sbplString quotes a path for embedding in an SBPL expression.
func sbplString(path string) string {
	escaped := strings.ReplaceAll(path, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}
