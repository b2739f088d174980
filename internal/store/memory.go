package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"adorable/internal/sandbox"
)

// Memory is an in-process Store. Returned values are copies.
type Memory struct {
	mu       sync.RWMutex
	projects map[string]*Project
	versions map[string]*Version
	order    map[string][]string
	now      func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		projects: make(map[string]*Project),
		versions: make(map[string]*Version),
		order:    make(map[string][]string),
		now:      time.Now,
	}
}

func (m *Memory) CreateProject(ctx context.Context, p *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, ok := m.projects[p.ID]; ok {
		return fmt.Errorf("project %s: %w", p.ID, ErrExists)
	}
	if p.Status == "" {
		p.Status = StatusCreating
	}
	now := m.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	m.projects[p.ID] = copyProject(p)
	return nil
}

func (m *Memory) GetProject(ctx context.Context, id string) (*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return copyProject(p), nil
}

func (m *Memory) update(id string, fn func(*Project)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.projects[id]
	if !ok {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	fn(p)
	p.UpdatedAt = m.now().UTC()
	return nil
}

func (m *Memory) SetStatus(ctx context.Context, projectID string, status Status) error {
	return m.update(projectID, func(p *Project) { p.Status = status })
}

func (m *Memory) SetCurrentVersion(ctx context.Context, projectID, versionID string) error {
	m.mu.RLock()
	v, ok := m.versions[versionID]
	m.mu.RUnlock()
	if !ok || v.ProjectID != projectID {
		return fmt.Errorf("version %s: %w", versionID, ErrNotFound)
	}
	return m.update(projectID, func(p *Project) { p.CurrentVersionID = versionID })
}

func (m *Memory) SetSandbox(ctx context.Context, projectID string, h *sandbox.Handle) error {
	return m.update(projectID, func(p *Project) {
		if h == nil {
			p.Sandbox = nil
			return
		}
		hc := *h
		p.Sandbox = &hc
	})
}

func (m *Memory) CreateVersion(ctx context.Context, v *Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[v.ProjectID]; !ok {
		return fmt.Errorf("project %s: %w", v.ProjectID, ErrNotFound)
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if _, ok := m.versions[v.ID]; ok {
		return fmt.Errorf("version %s: %w", v.ID, ErrExists)
	}
	v.CreatedAt = m.now().UTC()
	m.versions[v.ID] = copyVersion(v)
	m.order[v.ProjectID] = append(m.order[v.ProjectID], v.ID)
	return nil
}

func (m *Memory) GetVersion(ctx context.Context, id string) (*Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.versions[id]
	if !ok {
		return nil, fmt.Errorf("version %s: %w", id, ErrNotFound)
	}
	return copyVersion(v), nil
}

func (m *Memory) ListVersions(ctx context.Context, projectID string) ([]*Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.projects[projectID]; !ok {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	ids := m.order[projectID]
	out := make([]*Version, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyVersion(m.versions[id]))
	}
	return out, nil
}

func (m *Memory) Close() error {
	return nil
}

func copyProject(p *Project) *Project {
	c := *p
	if p.Sandbox != nil {
		h := *p.Sandbox
		c.Sandbox = &h
	}
	return &c
}

func copyVersion(v *Version) *Version {
	c := *v
	c.Files = v.Files.Clone()
	return &c
}
