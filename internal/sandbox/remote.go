package sandbox

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"adorable/internal/files"
	"adorable/internal/logging"
	"adorable/internal/ssh"
)

// manifestName lists the files last written to a sandbox, one per line.
const manifestName = ".adorable-manifest"

// maxPortProbes bounds the search for a free preview port.
const maxPortProbes = 200

// Remote is the transport the remote adapter drives. *ssh.SSHClient
// implements it.
type Remote interface {
	Execute(ctx context.Context, command string) (string, int, error)
	WriteFile(ctx context.Context, remotePath string, data []byte) error
	Remove(ctx context.Context, remotePath string) error
	Stat(ctx context.Context, remotePath string) (bool, error)
}

// RemoteConfig configures the remote adapter.
type RemoteConfig struct {
	// RootDir holds one directory per sandbox.
	RootDir string
	// BasePort is the first preview port tried.
	BasePort int
	// PreviewHost is the host name used in preview addresses.
	PreviewHost string

	BuildTimeout   time.Duration
	InstallTimeout time.Duration
	// StartWait is how long StartServer waits for the dev server to bind.
	StartWait time.Duration
}

// RemoteAdapter keeps each sandbox in a directory on one host reached over
// SSH. Dev servers listen on distinct ports.
type RemoteAdapter struct {
	remote Remote
	config RemoteConfig

	mu       sync.Mutex
	nextPort int
}

// NewRemoteAdapter creates an adapter over remote.
func NewRemoteAdapter(remote Remote, config RemoteConfig) *RemoteAdapter {
	if config.RootDir == "" {
		config.RootDir = "/srv/adorable/sandboxes"
	}
	if config.BasePort == 0 {
		config.BasePort = 5173
	}
	if config.PreviewHost == "" {
		config.PreviewHost = "localhost"
	}
	if config.BuildTimeout == 0 {
		config.BuildTimeout = 60 * time.Second
	}
	if config.InstallTimeout == 0 {
		config.InstallTimeout = 5 * time.Minute
	}
	return &RemoteAdapter{
		remote:   remote,
		config:   config,
		nextPort: config.BasePort,
	}
}

// NewSSHAdapter creates a remote adapter over an SSH connection.
func NewSSHAdapter(client *ssh.SSHClient, config RemoteConfig) *RemoteAdapter {
	return NewRemoteAdapter(client, config)
}

func (a *RemoteAdapter) dir(h Handle) string {
	return path.Join(a.config.RootDir, h.ID)
}

func (a *RemoteAdapter) address(port int) string {
	return fmt.Sprintf("http://%s:%d", a.config.PreviewHost, port)
}

// Provision creates an empty sandbox directory and reserves a port.
func (a *RemoteAdapter) Provision(ctx context.Context) (Handle, error) {
	id := uuid.NewString()
	h := Handle{ID: id}

	if _, err := a.run(ctx, "mkdir -p "+ssh.Quote(a.dir(h))); err != nil {
		return Handle{}, fmt.Errorf("provision %s: %w", id, err)
	}

	port, err := a.allocatePort(ctx)
	if err != nil {
		return Handle{}, fmt.Errorf("provision %s: %w", id, err)
	}
	h.Port = port
	h.Address = a.address(port)

	logging.Info("sandbox provisioned", "sandbox", id, "port", port)
	return h, nil
}

func (a *RemoteAdapter) allocatePort(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := 0; i < maxPortProbes; i++ {
		port := a.nextPort
		a.nextPort++
		if a.nextPort >= a.config.BasePort+maxPortProbes {
			a.nextPort = a.config.BasePort
		}

		listening, err := a.portListening(ctx, port)
		if err != nil {
			return 0, err
		}
		if !listening {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no free port from %d", a.config.BasePort)
}

// Connect checks that the sandbox directory still exists.
func (a *RemoteAdapter) Connect(ctx context.Context, h Handle) (Handle, error) {
	if h.ID == "" {
		return Handle{}, ErrNotFound
	}
	ok, err := a.remote.Stat(ctx, path.Join(a.dir(h), "package.json"))
	if err != nil {
		return Handle{}, fmt.Errorf("connect %s: %w", h.ID, err)
	}
	if !ok {
		return Handle{}, ErrNotFound
	}
	if h.Address == "" && h.Port != 0 {
		h.Address = a.address(h.Port)
	}
	return h, nil
}

// WriteFiles makes the sandbox contain exactly set. Files written by a
// previous call and absent from set are removed.
func (a *RemoteAdapter) WriteFiles(ctx context.Context, h Handle, set files.FileSet) error {
	root := a.dir(h)

	previous, err := a.manifest(ctx, h)
	if err != nil {
		return err
	}
	for _, p := range previous {
		if _, ok := set[p]; ok {
			continue
		}
		if err := a.remote.Remove(ctx, path.Join(root, p)); err != nil {
			return err
		}
		logging.Debug("sandbox file removed", "sandbox", h.ID, "path", p)
	}

	paths := set.Paths()
	for _, p := range paths {
		clean, ok := files.CleanPath(p)
		if !ok {
			logging.Warn("skipping unsafe sandbox path", "sandbox", h.ID, "path", p)
			continue
		}
		if err := a.remote.WriteFile(ctx, path.Join(root, clean), []byte(set[p])); err != nil {
			return fmt.Errorf("write %s: %w", clean, err)
		}
	}

	if err := a.remote.WriteFile(ctx, path.Join(root, manifestName), []byte(strings.Join(paths, "\n"))); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	logging.Info("sandbox files written", "sandbox", h.ID, "files", len(paths))
	return nil
}

func (a *RemoteAdapter) manifest(ctx context.Context, h Handle) ([]string, error) {
	out, err := a.run(ctx, "cat "+ssh.Quote(path.Join(a.dir(h), manifestName))+" 2>/dev/null || true")
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

// InstallDependencies runs npm install.
func (a *RemoteAdapter) InstallDependencies(ctx context.Context, h Handle) error {
	ctx, cancel := context.WithTimeout(ctx, a.config.InstallTimeout)
	defer cancel()

	out, code, err := a.remote.Execute(ctx, a.inDir(h, "npm install --no-audit --no-fund"))
	if err != nil {
		return fmt.Errorf("npm install: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("npm install exited with %d: %s", code, tail(out, 2000))
	}
	return nil
}

// StartServer launches the dev server in the background on the handle's
// port.
func (a *RemoteAdapter) StartServer(ctx context.Context, h Handle) error {
	cmd := fmt.Sprintf("nohup npx vite --host 0.0.0.0 --port %d --strictPort > dev.log 2>&1 &", h.Port)
	if _, err := a.run(ctx, a.inDir(h, cmd)); err != nil {
		return fmt.Errorf("start dev server: %w", err)
	}

	if a.config.StartWait > 0 {
		select {
		case <-time.After(a.config.StartWait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	logging.Info("dev server started", "sandbox", h.ID, "address", h.Address)
	return nil
}

// RunBuild runs the production build. A failing build is a result, not an
// error.
func (a *RemoteAdapter) RunBuild(ctx context.Context, h Handle) (BuildResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.BuildTimeout)
	defer cancel()

	out, code, err := a.remote.Execute(ctx, a.inDir(h, "npm run build 2>&1"))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return BuildResult{ExitCode: -1, Log: out + "\nbuild timed out after " + a.config.BuildTimeout.String()}, nil
		}
		return BuildResult{}, fmt.Errorf("npm run build: %w", err)
	}

	logging.Info("build finished", "sandbox", h.ID, "exit_code", code)
	return BuildResult{Passed: code == 0, ExitCode: code, Log: out}, nil
}

// ServerRunning reports whether something listens on the handle's port.
func (a *RemoteAdapter) ServerRunning(ctx context.Context, h Handle) (bool, error) {
	return a.portListening(ctx, h.Port)
}

func (a *RemoteAdapter) portListening(ctx context.Context, port int) (bool, error) {
	p := strconv.Itoa(port)
	cmd := "lsof -i :" + p + " 2>/dev/null || netstat -tln 2>/dev/null | grep ':" + p + " ' || echo port_not_open"
	out, err := a.run(ctx, cmd)
	if err != nil {
		return false, err
	}
	out = strings.TrimSpace(out)
	return out != "" && !strings.Contains(out, "port_not_open"), nil
}

func (a *RemoteAdapter) inDir(h Handle, cmd string) string {
	return "cd " + ssh.Quote(a.dir(h)) + " && " + cmd
}

// run executes cmd and treats a non-zero exit as an error.
func (a *RemoteAdapter) run(ctx context.Context, cmd string) (string, error) {
	out, code, err := a.remote.Execute(ctx, cmd)
	if err != nil {
		return out, err
	}
	if code != 0 {
		return out, fmt.Errorf("%q exited with %d: %s", cmd, code, tail(out, 500))
	}
	return out, nil
}

// tail returns the last n bytes of s.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
