package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adorable/internal/files"
	"adorable/internal/robustness"
)

// failingProvision wraps an adapter whose Provision always fails.
type failingProvision struct {
	*MemoryAdapter
	err error
}

func (f *failingProvision) Provision(ctx context.Context) (Handle, error) {
	return Handle{}, f.err
}

func TestSessionStart(t *testing.T) {
	mem := NewMemoryAdapter()
	s := NewSession(mem, nil, nil, nil)
	set := files.FileSet{"src/App.jsx": "app"}

	h, err := s.Start(context.Background(), set)
	require.NoError(t, err)
	assert.NotEmpty(t, h.ID)
	assert.Equal(t, "http://localhost:5173", h.Address)
	assert.Equal(t, set, mem.Files(h.ID))
	assert.Equal(t, &h, s.Handle())
}

func TestSessionAttachExisting(t *testing.T) {
	mem := NewMemoryAdapter()
	h, err := mem.Provision(context.Background())
	require.NoError(t, err)

	s := NewSession(mem, nil, &h, files.FileSet{"a": "1"})
	got, err := s.Attach(context.Background())
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, 1, mem.Provisions)
}

func TestSessionFallsBackWhenSandboxGone(t *testing.T) {
	mem := NewMemoryAdapter()
	old, err := mem.Provision(context.Background())
	require.NoError(t, err)
	mem.Destroy(old.ID)

	last := files.FileSet{"src/App.jsx": "persisted"}
	s := NewSession(mem, nil, &old, last)

	require.NoError(t, s.Write(context.Background(), files.FileSet{"src/App.jsx": "candidate"}))

	h := s.Handle()
	require.NotNil(t, h)
	assert.NotEqual(t, old.ID, h.ID)
	assert.Equal(t, 2, mem.Provisions)
	assert.Equal(t, "candidate", mem.Files(h.ID)["src/App.jsx"])
}

func TestSessionUnavailableWhenBothFail(t *testing.T) {
	boom := errors.New("host down")
	adapter := &failingProvision{MemoryAdapter: NewMemoryAdapter(), err: boom}
	gone := Handle{ID: "gone", Port: 5173}

	s := NewSession(adapter, nil, &gone, files.FileSet{"a": "1"})
	_, err := s.Build(context.Background())

	var unavailable *UnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, "gone", unavailable.ID)
	assert.ErrorIs(t, err, boom)
}

func TestSessionProvisionBreaker(t *testing.T) {
	adapter := &failingProvision{MemoryAdapter: NewMemoryAdapter(), err: errors.New("quota")}
	breaker := robustness.NewCircuitBreaker("provision", 1, time.Minute)

	_, err := NewSession(adapter, breaker, nil, nil).Start(context.Background(), files.FileSet{})
	require.Error(t, err)
	_, err = NewSession(adapter, breaker, nil, nil).Start(context.Background(), files.FileSet{})
	assert.ErrorIs(t, err, robustness.ErrCircuitOpen)
}

func TestSessionRefreshRestartsStoppedServer(t *testing.T) {
	mem := NewMemoryAdapter()
	s := NewSession(mem, nil, nil, nil)
	h, err := s.Start(context.Background(), files.FileSet{"a": "1"})
	require.NoError(t, err)

	mem.StopServer(h.ID)
	_, err = s.Refresh(context.Background(), files.FileSet{"a": "2"})
	require.NoError(t, err)

	running, err := mem.ServerRunning(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, "2", mem.Files(h.ID)["a"])
}

func TestSessionBuildUsesBuildFunc(t *testing.T) {
	mem := NewMemoryAdapter()
	mem.BuildFunc = func(set files.FileSet) BuildResult {
		if _, ok := set["src/Missing.jsx"]; !ok {
			return BuildResult{ExitCode: 1, Log: "Could not resolve ./Missing"}
		}
		return BuildResult{Passed: true}
	}
	s := NewSession(mem, nil, nil, nil)
	_, err := s.Start(context.Background(), files.FileSet{})
	require.NoError(t, err)

	res, err := s.Build(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Log, "Missing")
}
