package vfs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Mount associates an absolute virtual path prefix with a backend.
type Mount struct {
	Path string
	FS   FileSystem
}

// Router presents a set of mounts as one filesystem. The mount table is
// fixed at construction; remounting means building a new router. Mount
// paths may nest (/data and /data/archive can both exist): resolution
// always picks the longest matching prefix.
type Router struct {
	mounts []Mount // sorted by descending path length
	logger *log.Logger
}

// NewRouter builds a router over the given mounts. Mount paths are
// normalized; duplicates are rejected.
func NewRouter(mounts []Mount, logger *log.Logger) (*Router, error) {
	if len(mounts) == 0 {
		return nil, errors.New("router requires at least one mount")
	}

	normalized := make([]Mount, 0, len(mounts))
	seen := map[string]struct{}{}
	for _, m := range mounts {
		if m.FS == nil {
			return nil, fmt.Errorf("mount %q has no filesystem", m.Path)
		}
		np := NormalizePath(m.Path)
		if err := rejectTraversal(np); err != nil {
			return nil, fmt.Errorf("mount path %q: %w", m.Path, err)
		}
		if _, dup := seen[np]; dup {
			return nil, fmt.Errorf("duplicate mount path %q", np)
		}
		seen[np] = struct{}{}
		normalized = append(normalized, Mount{Path: np, FS: m.FS})
	}

	sort.Slice(normalized, func(i, j int) bool {
		if len(normalized[i].Path) != len(normalized[j].Path) {
			return len(normalized[i].Path) > len(normalized[j].Path)
		}
		return normalized[i].Path < normalized[j].Path
	})

	return &Router{mounts: normalized, logger: logger}, nil
}

// Mounts returns a copy of the mount table in resolution order.
func (r *Router) Mounts() []Mount {
	out := make([]Mount, len(r.mounts))
	copy(out, r.mounts)
	return out
}

// Resolve maps a namespace path to the backing mount and the path local to
// that backend. Among all mounts whose path equals the request or is a
// proper prefix of it, the longest wins; an empty remainder maps to the
// backend's root. Paths matching no mount fail with ErrNoMount unless they
// are ancestors of mounts, which only List and Stat handle (as virtual
// directories).
func (r *Router) Resolve(p string) (FileSystem, string, error) {
	m, rel, err := r.resolveMount(p)
	if err != nil {
		return nil, "", err
	}
	return m.FS, rel, nil
}

func (r *Router) resolveMount(p string) (Mount, string, error) {
	np := NormalizePath(p)
	for _, m := range r.mounts {
		if np == m.Path {
			return m, "/", nil
		}
		prefix := m.Path
		if prefix != "/" {
			prefix += "/"
		}
		if strings.HasPrefix(np, prefix) {
			return m, "/" + np[len(prefix):], nil
		}
	}
	return Mount{}, "", fmt.Errorf("%w: %s", ErrNoMount, np)
}

// isAncestorOfMount reports whether np sits strictly above at least one
// mount path.
func (r *Router) isAncestorOfMount(np string) bool {
	for _, m := range r.mounts {
		if m.Path == np {
			continue
		}
		prefix := np
		if prefix != "/" {
			prefix += "/"
		}
		if strings.HasPrefix(m.Path, prefix) {
			return true
		}
	}
	return false
}

func (r *Router) ReadFile(ctx context.Context, p string) ([]byte, error) {
	fs, rel, err := r.Resolve(p)
	if err != nil {
		return nil, err
	}
	return fs.ReadFile(ctx, rel)
}

func (r *Router) WriteFile(ctx context.Context, p string, data []byte) error {
	fs, rel, err := r.Resolve(p)
	if err != nil {
		return err
	}
	return fs.WriteFile(ctx, rel, data)
}

// List delegates to the resolved mount, or synthesizes a virtual listing
// when the path is an ancestor of one or more mounts: one deduplicated
// entry per immediate child segment, each typed as a directory. A mount
// whose path is an immediate child of the listed path carries its
// backend's provider metadata.
func (r *Router) List(ctx context.Context, p string) ([]DirEntry, error) {
	np := NormalizePath(p)
	fs, rel, err := r.Resolve(np)
	if err == nil {
		return fs.List(ctx, rel)
	}
	if !r.isAncestorOfMount(np) {
		return nil, err
	}
	return r.virtualEntries(np), nil
}

func (r *Router) virtualEntries(np string) []DirEntry {
	prefix := np
	if prefix != "/" {
		prefix += "/"
	}

	now := time.Now()
	byName := map[string]DirEntry{}
	names := []string{}
	for _, m := range r.mounts {
		if !strings.HasPrefix(m.Path, prefix) || m.Path == np {
			continue
		}
		remainder := m.Path[len(prefix):]
		segment, _, nested := strings.Cut(remainder, "/")
		entry, exists := byName[segment]
		if !exists {
			entry = DirEntry{Name: segment, IsDir: true, ModTime: now}
			names = append(names, segment)
		}
		if !nested {
			// The mount root itself: carry its display metadata so a UI
			// can distinguish it from intermediate virtual segments.
			info := m.FS.Info()
			entry.Mount = &info
		}
		byName[segment] = entry
	}

	sort.Strings(names)
	entries := make([]DirEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, byName[name])
	}
	return entries
}

// Stat delegates to the resolved mount, or returns synthetic directory
// metadata for ancestors of mounts.
func (r *Router) Stat(ctx context.Context, p string) (FileInfo, error) {
	np := NormalizePath(p)
	fs, rel, err := r.Resolve(np)
	if err == nil {
		info, statErr := fs.Stat(ctx, rel)
		if statErr != nil {
			return FileInfo{}, statErr
		}
		info.Path = np
		return info, nil
	}
	if !r.isAncestorOfMount(np) {
		return FileInfo{}, err
	}
	return FileInfo{
		Name:    path.Base(np),
		Path:    np,
		IsDir:   true,
		ModTime: time.Now(),
	}, nil
}

func (r *Router) Mkdir(ctx context.Context, p string) error {
	fs, rel, err := r.Resolve(p)
	if err != nil {
		return err
	}
	return fs.Mkdir(ctx, rel)
}

func (r *Router) Remove(ctx context.Context, p string) error {
	fs, rel, err := r.Resolve(p)
	if err != nil {
		return err
	}
	return fs.Remove(ctx, rel)
}

// Copy delegates to the backend's native copy when source and destination
// share a mount. Across mounts it is read-then-write: the backends never
// see each other.
func (r *Router) Copy(ctx context.Context, src, dst string) error {
	sm, srel, err := r.resolveMount(src)
	if err != nil {
		return err
	}
	dm, drel, err := r.resolveMount(dst)
	if err != nil {
		return err
	}

	if sm.Path == dm.Path {
		return sm.FS.Copy(ctx, srel, drel)
	}

	data, err := sm.FS.ReadFile(ctx, srel)
	if err != nil {
		return err
	}
	return dm.FS.WriteFile(ctx, drel, data)
}

// Move delegates natively within one mount. Across mounts it is
// copy-then-delete and therefore not atomic: both copies exist for a
// window, and a crash in between leaves the file in both places.
func (r *Router) Move(ctx context.Context, src, dst string) error {
	sm, srel, err := r.resolveMount(src)
	if err != nil {
		return err
	}
	dm, drel, err := r.resolveMount(dst)
	if err != nil {
		return err
	}

	if sm.Path == dm.Path {
		return sm.FS.Move(ctx, srel, drel)
	}

	if err := r.Copy(ctx, src, dst); err != nil {
		return err
	}
	return sm.FS.Remove(ctx, srel)
}

// Init initializes every mount that has the capability. One mount's
// failure does not skip the others; all failures are joined.
func (r *Router) Init(ctx context.Context) error {
	var errs []error
	for _, m := range r.mounts {
		init, ok := m.FS.(Initializer)
		if !ok {
			continue
		}
		if err := init.Init(ctx); err != nil {
			if r.logger != nil {
				r.logger.Error("mount init failed", "mount", m.Path, "error", err)
			}
			errs = append(errs, fmt.Errorf("init mount %s: %w", m.Path, err))
		}
	}
	return errors.Join(errs...)
}

// Destroy tears down every mount that has the capability, joining
// failures the same way Init does.
func (r *Router) Destroy(ctx context.Context) error {
	var errs []error
	for _, m := range r.mounts {
		destroy, ok := m.FS.(Destroyer)
		if !ok {
			continue
		}
		if err := destroy.Destroy(ctx); err != nil {
			if r.logger != nil {
				r.logger.Error("mount destroy failed", "mount", m.Path, "error", err)
			}
			errs = append(errs, fmt.Errorf("destroy mount %s: %w", m.Path, err))
		}
	}
	return errors.Join(errs...)
}
