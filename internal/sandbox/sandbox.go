// Package sandbox runs candidate projects in isolated remote environments:
// it writes files, installs dependencies, serves a preview and builds.
package sandbox

import (
	"context"
	"errors"
	"fmt"

	"adorable/internal/files"
)

// ErrNotFound is returned by Connect when the sandbox no longer exists.
var ErrNotFound = errors.New("sandbox not found")

// Handle identifies a sandbox. It is stored as-is with the project.
type Handle struct {
	ID      string `json:"id"`
	Port    int    `json:"port"`
	Address string `json:"address"`
}

// BuildResult is the outcome of one production build.
type BuildResult struct {
	Passed   bool
	ExitCode int
	// Log is the combined build output.
	Log string
}

// Adapter is the capability set of a sandbox provider.
type Adapter interface {
	Provision(ctx context.Context) (Handle, error)
	Connect(ctx context.Context, h Handle) (Handle, error)
	WriteFiles(ctx context.Context, h Handle, set files.FileSet) error
	InstallDependencies(ctx context.Context, h Handle) error
	StartServer(ctx context.Context, h Handle) error
	RunBuild(ctx context.Context, h Handle) (BuildResult, error)
}

// ServerChecker is implemented by adapters that can tell whether the
// preview server of a sandbox is listening.
type ServerChecker interface {
	ServerRunning(ctx context.Context, h Handle) (bool, error)
}

// UnavailableError reports that no sandbox could be reached or created.
type UnavailableError struct {
	ID  string
	Err error
}

func (e *UnavailableError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("sandbox unavailable: %v", e.Err)
	}
	return fmt.Sprintf("sandbox %s unavailable: %v", e.ID, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
