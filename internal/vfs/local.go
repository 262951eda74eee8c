package vfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/workyardhq/workyard/internal/lifecycle"
)

// Local stores files under one host directory. Its MountConfig is
// locally addressable, which makes it the one driver a sandboxed executor
// can mount without a copy step.
type Local struct {
	root   string
	name   string
	lc     *lifecycle.Machine
	logger *log.Logger
}

// LocalOptions configures a Local backend. Root must be absolute; Name is
// the display name surfaced in virtual listings and defaults to the last
// path element of Root.
type LocalOptions struct {
	Root   string
	Name   string
	Logger *log.Logger
}

// NewLocal constructs a Local backend. The root directory is not created
// until Init runs.
func NewLocal(opts LocalOptions) (*Local, error) {
	if opts.Root == "" {
		return nil, errors.New("local filesystem: root is required")
	}
	if !filepath.IsAbs(opts.Root) {
		return nil, fmt.Errorf("local filesystem: root %q must be absolute", opts.Root)
	}
	name := opts.Name
	if name == "" {
		name = filepath.Base(opts.Root)
	}
	return &Local{
		root:   filepath.Clean(opts.Root),
		name:   name,
		lc:     lifecycle.New(),
		logger: opts.Logger,
	}, nil
}

// SetLogger injects a logger after construction. Providers are built
// before the logging surface exists in some wiring orders, so this is a
// setter rather than a constructor argument.
func (l *Local) SetLogger(logger *log.Logger) {
	l.logger = logger
}

func (l *Local) Info() ProviderInfo {
	return ProviderInfo{Name: l.name, Provider: "local", Icon: "folder"}
}

func (l *Local) Config() MountConfig {
	return MountConfig{Type: MountTypeLocal, LocalPath: l.root}
}

// State exposes the lifecycle state for diagnostics.
func (l *Local) State() lifecycle.State {
	return l.lc.State()
}

// Init creates the backing directory. Safe under concurrent callers; the
// directory is created exactly once per attempt.
func (l *Local) Init(ctx context.Context) error {
	return l.lc.Init(ctx, func(context.Context) error {
		if err := os.MkdirAll(l.root, 0o755); err != nil {
			return fmt.Errorf("create local root %q: %w", l.root, err)
		}
		if l.logger != nil {
			l.logger.Debug("local filesystem ready", "root", l.root)
		}
		return nil
	})
}

// Destroy releases the provider. The backing directory and its contents
// are left in place: destroying a provider must not delete user data.
func (l *Local) Destroy(ctx context.Context) error {
	return l.lc.Destroy(ctx, func(context.Context) error {
		if l.logger != nil {
			l.logger.Debug("local filesystem destroyed", "root", l.root)
		}
		return nil
	})
}

// hostPath maps a namespace path onto the backing directory.
func (l *Local) hostPath(p string) (string, error) {
	np := NormalizePath(p)
	if err := rejectTraversal(np); err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(np)), nil
}

func (l *Local) ReadFile(_ context.Context, p string) ([]byte, error) {
	host, err := l.hostPath(p)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(host)
}

func (l *Local) WriteFile(_ context.Context, p string, data []byte) error {
	host, err := l.hostPath(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(host), 0o755); err != nil {
		return fmt.Errorf("create parent of %q: %w", p, err)
	}
	return os.WriteFile(host, data, 0o644)
}

func (l *Local) List(_ context.Context, p string) ([]DirEntry, error) {
	host, err := l.hostPath(p)
	if err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(host)
	if err != nil {
		return nil, err
	}
	entries := make([]DirEntry, 0, len(dirents))
	for _, de := range dirents {
		entry := DirEntry{Name: de.Name(), IsDir: de.IsDir()}
		if info, infoErr := de.Info(); infoErr == nil {
			entry.Size = info.Size()
			entry.ModTime = info.ModTime()
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (l *Local) Stat(_ context.Context, p string) (FileInfo, error) {
	host, err := l.hostPath(p)
	if err != nil {
		return FileInfo{}, err
	}
	info, err := os.Stat(host)
	if err != nil {
		return FileInfo{}, err
	}
	np := NormalizePath(p)
	return FileInfo{
		Name:    path.Base(np),
		Path:    np,
		Size:    info.Size(),
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
	}, nil
}

func (l *Local) Mkdir(_ context.Context, p string) error {
	host, err := l.hostPath(p)
	if err != nil {
		return err
	}
	return os.MkdirAll(host, 0o755)
}

func (l *Local) Remove(_ context.Context, p string) error {
	np := NormalizePath(p)
	if np == "/" {
		return errors.New("refusing to remove filesystem root")
	}
	host, err := l.hostPath(np)
	if err != nil {
		return err
	}
	return os.RemoveAll(host)
}

// Copy duplicates a file within this backend. Directories are not copied;
// the router falls back to per-file operations for those.
func (l *Local) Copy(_ context.Context, src, dst string) error {
	srcHost, err := l.hostPath(src)
	if err != nil {
		return err
	}
	dstHost, err := l.hostPath(dst)
	if err != nil {
		return err
	}

	info, err := os.Stat(srcHost)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("copy %q: directories are not copyable", src)
	}

	in, err := os.Open(srcHost)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dstHost), 0o755); err != nil {
		return fmt.Errorf("create parent of %q: %w", dst, err)
	}
	out, err := os.OpenFile(dstHost, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %q to %q: %w", src, dst, err)
	}
	return out.Close()
}

// Move renames within this backend, which is atomic on the same host
// filesystem.
func (l *Local) Move(_ context.Context, src, dst string) error {
	srcHost, err := l.hostPath(src)
	if err != nil {
		return err
	}
	dstHost, err := l.hostPath(dst)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dstHost), 0o755); err != nil {
		return fmt.Errorf("create parent of %q: %w", dst, err)
	}
	return os.Rename(srcHost, dstHost)
}
