package client

import (
	"github.com/workyardhq/workyard/internal/isolation"
	"github.com/workyardhq/workyard/internal/sandbox"
	"github.com/workyardhq/workyard/internal/vfs"
)

// Aliases so embedders only import this package.
type (
	Result      = sandbox.Result
	ExecOptions = sandbox.ExecOptions
	Backend     = isolation.Backend
	DirEntry    = vfs.DirEntry
	FileInfo    = vfs.FileInfo
	Mount       = vfs.Mount
)

const (
	BackendNone       = isolation.BackendNone
	BackendSeatbelt   = isolation.BackendSeatbelt
	BackendBubblewrap = isolation.BackendBubblewrap

	// ExitCodeStartFailed and ExitCodeTimedOut are the sentinel exit
	// codes a Result carries when the command never ran or was killed on
	// timeout. Both sit outside the 0-255 range real processes can
	// return.
	ExitCodeStartFailed = sandbox.ExitCodeStartFailed
	ExitCodeTimedOut    = sandbox.ExitCodeTimedOut
)

// NewLocalMount builds a local filesystem mount for Options.Mounts.
func NewLocalMount(namespacePath, hostRoot, name string) (Mount, error) {
	fs, err := vfs.NewLocal(vfs.LocalOptions{Root: hostRoot, Name: name})
	if err != nil {
		return Mount{}, err
	}
	return Mount{Path: namespacePath, FS: fs}, nil
}
