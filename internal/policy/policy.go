// Package policy loads and compiles isolation policies. A policy declares
// what a sandboxed command may touch: whether outbound network is allowed,
// extra read-only paths, and extra read-write paths beyond the workspace
// root. Policies are compiled into a normalized, hashed value before they
// reach the isolation layer so that identical inputs always produce the
// identical generated profile.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	PrimaryPolicyPath  = "workyard.yaml"
	FallbackPolicyPath = ".workyard/policy.yaml"
)

// ErrPolicyNotFound reports that neither policy location exists under the
// workspace root. Callers may treat this as "use the default policy".
var ErrPolicyNotFound = errors.New("policy not found")

type Loader struct{}

type rawPolicy struct {
	Version int `yaml:"version"`
	Sandbox struct {
		Network struct {
			Default string `yaml:"default"`
		} `yaml:"network"`
		Paths struct {
			Read  []string `yaml:"read"`
			Write []string `yaml:"write"`
		} `yaml:"paths"`
		ProfileOverride string `yaml:"profile_override"`
	} `yaml:"sandbox"`
}

// Policy is the compiled, immutable form consumed by the isolation layer.
type Policy struct {
	Version         int      `json:"version"`
	AllowNetwork    bool     `json:"allow_network"`
	ReadOnlyPaths   []string `json:"read_only_paths"`
	ReadWritePaths  []string `json:"read_write_paths"`
	ProfileOverride string   `json:"profile_override,omitempty"`
	Hash            string   `json:"hash"`
}

// Default returns the policy used when no policy file exists: network
// denied, no access beyond the workspace root.
func Default() *Policy {
	compiled, err := Compile(rawPolicy{Version: 1})
	if err != nil {
		// Compiling the empty raw policy cannot fail.
		panic(err)
	}
	return compiled
}

func (l Loader) LoadAndCompile(root string) (*Policy, string, error) {
	raw, source, err := l.Load(root)
	if err != nil {
		return nil, "", err
	}

	compiled, err := Compile(raw)
	if err != nil {
		return nil, source, err
	}

	return compiled, source, nil
}

func (l Loader) Load(root string) (rawPolicy, string, error) {
	primary := filepath.Join(root, PrimaryPolicyPath)
	fallback := filepath.Join(root, filepath.FromSlash(FallbackPolicyPath))

	primaryExists, err := exists(primary)
	if err != nil {
		return rawPolicy{}, "", fmt.Errorf("check policy %s: %w", primary, err)
	}
	if primaryExists {
		p, err := readPolicy(primary)
		return p, primary, err
	}

	fallbackExists, err := exists(fallback)
	if err != nil {
		return rawPolicy{}, "", fmt.Errorf("check policy %s: %w", fallback, err)
	}
	if fallbackExists {
		p, err := readPolicy(fallback)
		return p, fallback, err
	}

	return rawPolicy{}, "", fmt.Errorf("%w: expected %s or %s", ErrPolicyNotFound, primary, fallback)
}

// CompileYAML parses and compiles a policy document from raw YAML bytes.
func CompileYAML(b []byte) (*Policy, error) {
	var raw rawPolicy
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	return Compile(raw)
}

func Compile(raw rawPolicy) (*Policy, error) {
	if raw.Version == 0 {
		raw.Version = 1
	}
	if raw.Version != 1 {
		return nil, fmt.Errorf("unsupported policy version %d", raw.Version)
	}

	networkDefault := strings.TrimSpace(strings.ToLower(raw.Sandbox.Network.Default))
	if networkDefault == "" {
		networkDefault = "deny"
	}
	var allowNetwork bool
	switch networkDefault {
	case "deny":
		allowNetwork = false
	case "allow":
		allowNetwork = true
	default:
		return nil, fmt.Errorf("unsupported sandbox.network.default %q: expected deny or allow", networkDefault)
	}

	readOnly, err := compilePaths(raw.Sandbox.Paths.Read, "sandbox.paths.read")
	if err != nil {
		return nil, err
	}
	readWrite, err := compilePaths(raw.Sandbox.Paths.Write, "sandbox.paths.write")
	if err != nil {
		return nil, err
	}

	compiled := &Policy{
		Version:         raw.Version,
		AllowNetwork:    allowNetwork,
		ReadOnlyPaths:   readOnly,
		ReadWritePaths:  readWrite,
		ProfileOverride: raw.Sandbox.ProfileOverride,
	}

	hash, err := hashPolicy(compiled)
	if err != nil {
		return nil, err
	}
	compiled.Hash = hash

	return compiled, nil
}

// compilePaths normalizes a path list: entries must be absolute and free of
// traversal segments; duplicates are dropped and the result is sorted so
// the compiled policy is deterministic.
func compilePaths(paths []string, field string) ([]string, error) {
	out := make([]string, 0, len(paths))
	seen := map[string]struct{}{}
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("%s contains an empty path", field)
		}
		if !filepath.IsAbs(p) {
			return nil, fmt.Errorf("%s entry %q must be absolute", field, p)
		}
		cleaned := filepath.Clean(p)
		for _, segment := range strings.Split(filepath.ToSlash(cleaned), "/") {
			if segment == ".." {
				return nil, fmt.Errorf("%s entry %q must not contain '..'", field, p)
			}
		}
		if _, ok := seen[cleaned]; ok {
			continue
		}
		seen[cleaned] = struct{}{}
		out = append(out, cleaned)
	}
	sort.Strings(out)
	return out, nil
}

func readPolicy(path string) (rawPolicy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return rawPolicy{}, err
	}

	var raw rawPolicy
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return rawPolicy{}, fmt.Errorf("parse %s: %w", path, err)
	}

	return raw, nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func hashPolicy(p *Policy) (string, error) {
	clone := *p
	clone.Hash = ""

	payload, err := json.Marshal(clone)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
