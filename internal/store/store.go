// Package store persists projects and their immutable versions.
package store

import (
	"context"
	"errors"
	"time"

	"adorable/internal/files"
	"adorable/internal/sandbox"
)

var (
	// ErrNotFound is returned when a project or version does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExists is returned when a version id is reused.
	ErrExists = errors.New("already exists")
)

// Status is the lifecycle state of a project.
type Status string

const (
	StatusCreating Status = "creating"
	StatusReady    Status = "ready"
	StatusFailed   Status = "failed"
)

// Project is a generated application. CurrentVersionID points at a
// version; files are never copied onto the project.
type Project struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Prompt           string          `json:"prompt"`
	Status           Status          `json:"status"`
	CurrentVersionID string          `json:"currentVersionId,omitempty"`
	Sandbox          *sandbox.Handle `json:"sandbox,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// Version is an immutable snapshot of a project's files.
type Version struct {
	ID          string        `json:"id"`
	ProjectID   string        `json:"projectId"`
	Files       files.FileSet `json:"files"`
	Prompt      string        `json:"prompt"`
	BuildPassed bool          `json:"buildPassed"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// Store is the persistence collaborator of the pipeline. Versions are
// append-only.
type Store interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	SetStatus(ctx context.Context, projectID string, status Status) error
	SetCurrentVersion(ctx context.Context, projectID, versionID string) error
	SetSandbox(ctx context.Context, projectID string, h *sandbox.Handle) error

	CreateVersion(ctx context.Context, v *Version) error
	GetVersion(ctx context.Context, id string) (*Version, error)
	// ListVersions returns a project's versions, oldest first.
	ListVersions(ctx context.Context, projectID string) ([]*Version, error)

	Close() error
}

// CurrentFiles returns the files of a project's current version.
func CurrentFiles(ctx context.Context, s Store, p *Project) (files.FileSet, error) {
	if p.CurrentVersionID == "" {
		return nil, ErrNotFound
	}
	v, err := s.GetVersion(ctx, p.CurrentVersionID)
	if err != nil {
		return nil, err
	}
	return v.Files, nil
}
