// Package vfs routes one unified path namespace onto independent storage
// backends. A Router owns an immutable table of mounts, resolves every
// request path to the mount with the longest matching prefix, and
// synthesizes virtual directories for the path structure above the mounts.
// The Local backend stores files on the host disk and is the only driver
// whose configuration an executor can mount directly.
package vfs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoMount reports a path outside every configured mount namespace.
// This is a caller error, not a runtime outcome; check with errors.Is.
var ErrNoMount = errors.New("no mount for path")

// Mount driver discriminators. Only local is implemented in-tree; the
// cloud types define the configuration shape a remote driver must produce.
const (
	MountTypeLocal = "local"
	MountTypeS3    = "s3"
	MountTypeGCS   = "gcs"
	MountTypeR2    = "r2"
)

// MountConfig is the discriminated configuration a filesystem driver
// reports. Type selects the driver; only that driver's fields are
// meaningful. A sandboxed executor may mount a filesystem only when it
// recognizes and supports the Type.
type MountConfig struct {
	Type string `json:"type" yaml:"type"`

	// local
	LocalPath string `json:"local_path,omitempty" yaml:"local_path,omitempty"`

	// s3 / gcs / r2
	Bucket    string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Region    string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Prefix    string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	AccountID string `json:"account_id,omitempty" yaml:"account_id,omitempty"`
}

// ProviderInfo is display metadata for a filesystem backend, surfaced in
// virtual directory listings so a UI can tell real mount roots apart from
// intermediate path segments.
type ProviderInfo struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Icon     string `json:"icon"`
}

// FileInfo describes one file or directory.
type FileInfo struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	IsDir   bool      `json:"is_dir"`
	ModTime time.Time `json:"mod_time"`
}

// DirEntry is one row of a directory listing. Mount is set on entries
// that are mount roots in a synthesized listing.
type DirEntry struct {
	Name    string        `json:"name"`
	IsDir   bool          `json:"is_dir"`
	Size    int64         `json:"size"`
	ModTime time.Time     `json:"mod_time"`
	Mount   *ProviderInfo `json:"mount,omitempty"`
}

// FileSystem is the operation surface every backend implements. Paths are
// absolute within the backend's own namespace ("/" is the backend root).
type FileSystem interface {
	Info() ProviderInfo
	Config() MountConfig

	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
	List(ctx context.Context, path string) ([]DirEntry, error)
	Stat(ctx context.Context, path string) (FileInfo, error)
	Mkdir(ctx context.Context, path string) error
	Remove(ctx context.Context, path string) error
	Copy(ctx context.Context, src, dst string) error
	Move(ctx context.Context, src, dst string) error
}

// Initializer is the optional setup capability. Callers must check for it
// before invoking; not every backend has setup work.
type Initializer interface {
	Init(ctx context.Context) error
}

// Destroyer is the optional teardown capability.
type Destroyer interface {
	Destroy(ctx context.Context) error
}

// NormalizePath collapses duplicate separators, drops "." segments, and
// strips the trailing separator except for the root path. It does not
// resolve ".." segments; backends reject those. Equivalent spellings of a
// path normalize identically, which the read-tracking guard relies on.
func NormalizePath(p string) string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if s == "" || s == "." {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/")
}

// rejectTraversal guards backends against ".." escapes.
func rejectTraversal(p string) error {
	for _, segment := range strings.Split(p, "/") {
		if segment == ".." {
			return fmt.Errorf("path %q must not contain '..'", p)
		}
	}
	return nil
}
