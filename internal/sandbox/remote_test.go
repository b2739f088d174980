package sandbox

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adorable/internal/files"
)

// fakeRemote emulates a host: files in a map, commands answered by a
// handler.
type fakeRemote struct {
	mu       sync.Mutex
	files    map[string]string
	commands []string
	handle   func(cmd string) (string, int)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{files: map[string]string{}}
}

func (r *fakeRemote) Execute(ctx context.Context, cmd string) (string, int, error) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	handle := r.handle
	r.mu.Unlock()

	if strings.HasPrefix(cmd, "cat ") {
		r.mu.Lock()
		defer r.mu.Unlock()
		for p, c := range r.files {
			if strings.HasSuffix(p, manifestName) && strings.Contains(cmd, p) {
				return c, 0, nil
			}
		}
		return "", 0, nil
	}
	if handle != nil {
		out, code := handle(cmd)
		return out, code, nil
	}
	if strings.Contains(cmd, "lsof") {
		return "port_not_open", 0, nil
	}
	return "", 0, nil
}

func (r *fakeRemote) WriteFile(ctx context.Context, p string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[p] = string(data)
	return nil
}

func (r *fakeRemote) Remove(ctx context.Context, p string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, p)
	return nil
}

func (r *fakeRemote) Stat(ctx context.Context, p string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.files[p]
	return ok, nil
}

func TestRemoteProvisionAndWrite(t *testing.T) {
	remote := newFakeRemote()
	a := NewRemoteAdapter(remote, RemoteConfig{RootDir: "/sb", PreviewHost: "preview.test"})

	h, err := a.Provision(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5173, h.Port)
	assert.Equal(t, "http://preview.test:5173", h.Address)

	set := files.FileSet{"package.json": "{}", "src/App.jsx": "app", "src/old.jsx": "old"}
	require.NoError(t, a.WriteFiles(context.Background(), h, set))
	assert.Equal(t, "app", remote.files["/sb/"+h.ID+"/src/App.jsx"])

	delete(set, "src/old.jsx")
	require.NoError(t, a.WriteFiles(context.Background(), h, set))
	assert.NotContains(t, remote.files, "/sb/"+h.ID+"/src/old.jsx")

	got, err := a.Connect(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestRemoteConnectMissing(t *testing.T) {
	a := NewRemoteAdapter(newFakeRemote(), RemoteConfig{})
	_, err := a.Connect(context.Background(), Handle{ID: "nope", Port: 5173})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemotePortSkipsBusy(t *testing.T) {
	remote := newFakeRemote()
	remote.handle = func(cmd string) (string, int) {
		if strings.Contains(cmd, "lsof -i :5173") {
			return "node 123 LISTEN", 0
		}
		if strings.Contains(cmd, "lsof") {
			return "port_not_open", 0
		}
		return "", 0
	}
	a := NewRemoteAdapter(remote, RemoteConfig{})

	h, err := a.Provision(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5174, h.Port)
}

func TestRemoteRunBuild(t *testing.T) {
	remote := newFakeRemote()
	remote.handle = func(cmd string) (string, int) {
		if strings.Contains(cmd, "npm run build") {
			return "error: Could not resolve \"./components/Nav\"", 1
		}
		return "port_not_open", 0
	}
	a := NewRemoteAdapter(remote, RemoteConfig{RootDir: "/sb"})
	h := Handle{ID: "abc", Port: 5173}

	res, err := a.RunBuild(context.Background(), h)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, 1, res.ExitCode)
	assert.Contains(t, res.Log, "Could not resolve")

	last := remote.commands[len(remote.commands)-1]
	assert.Equal(t, "cd '/sb/abc' && npm run build 2>&1", last)
}

func TestRemoteInstallFailure(t *testing.T) {
	remote := newFakeRemote()
	remote.handle = func(cmd string) (string, int) {
		return "npm ERR! 404", 1
	}
	a := NewRemoteAdapter(remote, RemoteConfig{})
	err := a.InstallDependencies(context.Background(), Handle{ID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "npm ERR! 404")
}

func TestTail(t *testing.T) {
	assert.Equal(t, "abc", tail("  abc  ", 10))
	assert.Equal(t, "...cde", tail("abcde", 3))
}
