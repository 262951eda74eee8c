package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/workyardhq/workyard/internal/runtimeconfig"
	"github.com/workyardhq/workyard/internal/vfs"
)

type FsLsCommand struct {
	Path string `arg:"" optional:"" default:"/" help:"Namespace path to list"`
}

type FsCatCommand struct {
	Path string `arg:"" help:"Namespace path to print"`
}

type FsWriteCommand struct {
	Path string `arg:"" help:"Namespace path to write stdin to"`
}

type FsStatCommand struct {
	Path string `arg:"" help:"Namespace path to stat"`
}

type FsMkdirCommand struct {
	Path string `arg:"" help:"Namespace directory to create"`
}

type FsRmCommand struct {
	Path string `arg:"" help:"Namespace path to remove"`
}

type FsCpCommand struct {
	Src string `arg:"" help:"Source namespace path"`
	Dst string `arg:"" help:"Destination namespace path"`
}

type FsMvCommand struct {
	Src string `arg:"" help:"Source namespace path"`
	Dst string `arg:"" help:"Destination namespace path"`
}

// buildRouter assembles the virtual namespace from the configured mounts
// and initializes every provider so backing directories exist before the
// first operation.
func buildRouter(ctx *runtimeContext) (*vfs.Router, error) {
	if len(ctx.Config.Mounts) == 0 {
		return nil, fmt.Errorf("no mounts configured; declare mounts in %s", ctx.ConfigPath)
	}

	mounts := make([]vfs.Mount, 0, len(ctx.Config.Mounts))
	for _, entry := range ctx.Config.Mounts {
		fs, err := buildMount(ctx.CWD, entry)
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, vfs.Mount{Path: entry.Path, FS: fs})
	}

	router, err := vfs.NewRouter(mounts, nil)
	if err != nil {
		return nil, err
	}
	if err := router.Init(context.Background()); err != nil {
		return nil, err
	}
	return router, nil
}

func buildMount(cwd string, entry runtimeconfig.MountEntry) (vfs.FileSystem, error) {
	switch entry.Type {
	case "local", "":
		root := entry.LocalPath
		if root == "" {
			return nil, fmt.Errorf("mount %q: local mounts require local_path", entry.Path)
		}
		if !filepath.IsAbs(root) {
			root = filepath.Join(cwd, root)
		}
		return vfs.NewLocal(vfs.LocalOptions{Root: root, Name: entry.Name})
	case "s3", "gcs", "r2":
		return nil, fmt.Errorf("mount %q: driver %q is declared but not available in this build", entry.Path, entry.Type)
	default:
		return nil, fmt.Errorf("mount %q: unknown driver %q", entry.Path, entry.Type)
	}
}

func (c *FsLsCommand) Run(ctx *runtimeContext) error {
	router, err := buildRouter(ctx)
	if err != nil {
		return err
	}
	entries, err := router.List(context.Background(), c.Path)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		kind := "file"
		if entry.IsDir {
			kind = "dir"
		}
		annotation := ""
		if entry.Mount != nil {
			annotation = fmt.Sprintf("  [%s: %s]", entry.Mount.Provider, entry.Mount.Name)
		}
		if _, err := fmt.Fprintf(ctx.Stdout, "%-4s %8d  %s%s\n", kind, entry.Size, entry.Name, annotation); err != nil {
			return err
		}
	}
	return nil
}

func (c *FsCatCommand) Run(ctx *runtimeContext) error {
	router, err := buildRouter(ctx)
	if err != nil {
		return err
	}
	data, err := router.ReadFile(context.Background(), c.Path)
	if err != nil {
		return err
	}
	_, err = ctx.Stdout.Write(data)
	return err
}

func (c *FsWriteCommand) Run(ctx *runtimeContext) error {
	router, err := buildRouter(ctx)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	return router.WriteFile(context.Background(), c.Path, data)
}

func (c *FsStatCommand) Run(ctx *runtimeContext) error {
	router, err := buildRouter(ctx)
	if err != nil {
		return err
	}
	info, err := router.Stat(context.Background(), c.Path)
	if err != nil {
		return err
	}
	kind := "file"
	if info.IsDir {
		kind = "dir"
	}
	_, err = fmt.Fprintf(ctx.Stdout, "path: %s\ntype: %s\nsize: %d\nmodified: %s\n",
		info.Path, kind, info.Size, info.ModTime.Format("2006-01-02 15:04:05 MST"))
	return err
}

func (c *FsMkdirCommand) Run(ctx *runtimeContext) error {
	router, err := buildRouter(ctx)
	if err != nil {
		return err
	}
	return router.Mkdir(context.Background(), c.Path)
}

func (c *FsRmCommand) Run(ctx *runtimeContext) error {
	router, err := buildRouter(ctx)
	if err != nil {
		return err
	}
	return router.Remove(context.Background(), c.Path)
}

func (c *FsCpCommand) Run(ctx *runtimeContext) error {
	router, err := buildRouter(ctx)
	if err != nil {
		return err
	}
	return router.Copy(context.Background(), c.Src, c.Dst)
}

func (c *FsMvCommand) Run(ctx *runtimeContext) error {
	router, err := buildRouter(ctx)
	if err != nil {
		return err
	}
	return router.Move(context.Background(), c.Src, c.Dst)
}
