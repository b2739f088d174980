package sandbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"adorable/internal/files"
)

// MemoryAdapter keeps sandboxes in memory. Builds are decided by BuildFunc;
// with no BuildFunc every build passes.
type MemoryAdapter struct {
	// BuildFunc judges the files present at build time.
	BuildFunc func(files.FileSet) BuildResult

	mu        sync.Mutex
	sandboxes map[string]*memorySandbox
	nextPort  int

	Provisions int
	Builds     int
}

type memorySandbox struct {
	handle    Handle
	files     files.FileSet
	installed bool
	running   bool
}

// NewMemoryAdapter creates an empty in-memory adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		sandboxes: make(map[string]*memorySandbox),
		nextPort:  5173,
	}
}

func (m *MemoryAdapter) Provision(ctx context.Context) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := Handle{ID: uuid.NewString(), Port: m.nextPort}
	h.Address = fmt.Sprintf("http://localhost:%d", h.Port)
	m.nextPort++
	m.sandboxes[h.ID] = &memorySandbox{handle: h, files: files.FileSet{}}
	m.Provisions++
	return h, nil
}

func (m *MemoryAdapter) Connect(ctx context.Context, h Handle) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sb, ok := m.sandboxes[h.ID]
	if !ok {
		return Handle{}, ErrNotFound
	}
	return sb.handle, nil
}

func (m *MemoryAdapter) WriteFiles(ctx context.Context, h Handle, set files.FileSet) error {
	sb, err := m.get(h)
	if err != nil {
		return err
	}
	m.mu.Lock()
	sb.files = set.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryAdapter) InstallDependencies(ctx context.Context, h Handle) error {
	sb, err := m.get(h)
	if err != nil {
		return err
	}
	m.mu.Lock()
	sb.installed = true
	m.mu.Unlock()
	return nil
}

func (m *MemoryAdapter) StartServer(ctx context.Context, h Handle) error {
	sb, err := m.get(h)
	if err != nil {
		return err
	}
	m.mu.Lock()
	sb.running = true
	m.mu.Unlock()
	return nil
}

func (m *MemoryAdapter) RunBuild(ctx context.Context, h Handle) (BuildResult, error) {
	sb, err := m.get(h)
	if err != nil {
		return BuildResult{}, err
	}
	m.mu.Lock()
	m.Builds++
	set := sb.files.Clone()
	fn := m.BuildFunc
	m.mu.Unlock()

	if fn == nil {
		return BuildResult{Passed: true, Log: "built in 0ms"}, nil
	}
	return fn(set), nil
}

func (m *MemoryAdapter) ServerRunning(ctx context.Context, h Handle) (bool, error) {
	sb, err := m.get(h)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return sb.running, nil
}

// Files returns the files currently in the sandbox.
func (m *MemoryAdapter) Files(id string) files.FileSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sb, ok := m.sandboxes[id]; ok {
		return sb.files.Clone()
	}
	return nil
}

// Destroy removes a sandbox, as if it had expired.
func (m *MemoryAdapter) Destroy(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sandboxes, id)
}

// StopServer marks a sandbox's preview server as stopped.
func (m *MemoryAdapter) StopServer(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sb, ok := m.sandboxes[id]; ok {
		sb.running = false
	}
}

func (m *MemoryAdapter) get(h Handle) (*memorySandbox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sb, ok := m.sandboxes[h.ID]
	if !ok {
		return nil, ErrNotFound
	}
	return sb, nil
}
