// Package ssh is the remote command and file transport used by the sandbox
// adapter.
package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"adorable/internal/logging"
)

// SSHConfig holds connection configuration.
type SSHConfig struct {
	Host           string
	Port           int
	User           string
	KeyPath        string
	KeyPassphrase  string
	Password       string // Fallback if no key
	Timeout        time.Duration
	KnownHostsPath string
}

// DefaultSSHConfig returns a configuration with sensible defaults.
func DefaultSSHConfig() *SSHConfig {
	currentUser, _ := user.Current()
	username := "root"
	homeDir := ""
	if currentUser != nil {
		username = currentUser.Username
		homeDir = currentUser.HomeDir
	}

	return &SSHConfig{
		Port:           22,
		User:           username,
		KeyPath:        filepath.Join(homeDir, ".ssh", "id_ed25519"),
		Timeout:        30 * time.Second,
		KnownHostsPath: filepath.Join(homeDir, ".ssh", "known_hosts"),
	}
}

// SSHClient runs commands and writes files on one host. The connection is
// opened lazily and re-established when it drops.
type SSHClient struct {
	config  *SSHConfig
	conn    *ssh.Client
	sftp    *sftp.Client
	mu      sync.Mutex
	lastUse time.Time
}

// NewSSHClient creates a new SSH client.
func NewSSHClient(config *SSHConfig) *SSHClient {
	return &SSHClient{
		config:  config,
		lastUse: time.Now(),
	}
}

// Connect establishes the SSH connection if it is not already alive.
func (c *SSHClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *SSHClient) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		// Check if connection is still alive
		_, _, err := c.conn.SendRequest("keepalive@openssh.com", true, nil)
		if err == nil {
			c.lastUse = time.Now()
			return nil
		}
		c.closeLocked()
	}

	sshConfig, err := c.buildSSHConfig()
	if err != nil {
		return fmt.Errorf("failed to build SSH config: %w", err)
	}

	addr := net.JoinHostPort(c.config.Host, fmt.Sprint(c.config.Port))
	logging.Info("connecting to SSH", "addr", addr, "user", c.config.User)

	dialer := &net.Dialer{Timeout: c.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SSH handshake failed: %w", err)
	}

	c.conn = ssh.NewClient(sshConn, chans, reqs)
	c.lastUse = time.Now()

	logging.Info("SSH connection established", "host", c.config.Host)
	return nil
}

// buildSSHConfig creates the ssh.ClientConfig.
func (c *SSHClient) buildSSHConfig() (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	// Try key-based authentication first
	if c.config.KeyPath != "" {
		keyPath := expandPath(c.config.KeyPath)
		if key, err := os.ReadFile(keyPath); err == nil {
			var signer ssh.Signer
			if c.config.KeyPassphrase != "" {
				signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(c.config.KeyPassphrase))
			} else {
				signer, err = ssh.ParsePrivateKey(key)
			}
			if err != nil {
				logging.Warn("failed to parse SSH key", "path", keyPath, "error", err)
			} else {
				authMethods = append(authMethods, ssh.PublicKeys(signer))
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			logging.Warn("failed to read SSH key", "path", keyPath, "error", err)
		}
	}

	// Try other common key files
	if len(authMethods) == 0 {
		for _, keyFile := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
			keyPath := expandPath(filepath.Join("~/.ssh", keyFile))
			if key, err := os.ReadFile(keyPath); err == nil {
				if signer, err := ssh.ParsePrivateKey(key); err == nil {
					authMethods = append(authMethods, ssh.PublicKeys(signer))
					break
				}
			}
		}
	}

	// Fallback to password authentication
	if c.config.Password != "" {
		authMethods = append(authMethods, ssh.Password(c.config.Password))
	}

	if len(authMethods) == 0 {
		return nil, fmt.Errorf("no authentication method available")
	}

	return &ssh.ClientConfig{
		User:            c.config.User,
		Auth:            authMethods,
		HostKeyCallback: c.hostKeyCallback(),
		Timeout:         c.config.Timeout,
	}, nil
}

// hostKeyCallback verifies against known_hosts when the file exists.
func (c *SSHClient) hostKeyCallback() ssh.HostKeyCallback {
	if c.config.KnownHostsPath != "" {
		p := expandPath(c.config.KnownHostsPath)
		if _, err := os.Stat(p); err == nil {
			cb, err := knownhosts.New(p)
			if err == nil {
				return cb
			}
			logging.Warn("failed to load known_hosts", "path", p, "error", err)
		}
	}
	logging.Warn("host key verification disabled", "host", c.config.Host)
	return ssh.InsecureIgnoreHostKey()
}

// Execute runs a command on the remote host. It returns combined output and
// the exit code; a non-zero exit is not an error.
func (c *SSHClient) Execute(ctx context.Context, command string) (string, int, error) {
	c.mu.Lock()
	if err := c.connectLocked(ctx); err != nil {
		c.mu.Unlock()
		return "", -1, err
	}
	conn := c.conn
	c.mu.Unlock()

	session, err := conn.NewSession()
	if err != nil {
		return "", -1, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	var stdout, stderr lockedBuffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		// give the session a moment to flush what the command printed
		select {
		case <-done:
		case <-time.After(killGrace):
		}
		return stdout.String(), -1, ctx.Err()
	case err := <-done:
		c.touch()
		output := stdout.String()
		if stderr.Len() > 0 {
			if output != "" {
				output += "\n"
			}
			output += stderr.String()
		}

		exitCode := 0
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				exitCode = exitErr.ExitStatus()
			} else {
				return output, -1, fmt.Errorf("command failed: %w", err)
			}
		}
		return output, exitCode, nil
	}
}

// WriteFile writes data to remotePath over SFTP, creating parent
// directories.
func (c *SSHClient) WriteFile(ctx context.Context, remotePath string, data []byte) error {
	client, err := c.sftpClient(ctx)
	if err != nil {
		return err
	}

	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := client.MkdirAll(dir); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	f, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", remotePath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", remotePath, err)
	}

	c.touch()
	logging.Debug("file uploaded", "remote", remotePath, "bytes", len(data))
	return nil
}

// Remove deletes a remote file. A missing file is not an error.
func (c *SSHClient) Remove(ctx context.Context, remotePath string) error {
	client, err := c.sftpClient(ctx)
	if err != nil {
		return err
	}
	if err := client.Remove(remotePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", remotePath, err)
	}
	return nil
}

// Stat reports whether remotePath exists.
func (c *SSHClient) Stat(ctx context.Context, remotePath string) (bool, error) {
	client, err := c.sftpClient(ctx)
	if err != nil {
		return false, err
	}
	if _, err := client.Stat(remotePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *SSHClient) sftpClient(ctx context.Context) (*sftp.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}
	if c.sftp == nil {
		client, err := sftp.NewClient(c.conn)
		if err != nil {
			return nil, fmt.Errorf("failed to create SFTP client: %w", err)
		}
		c.sftp = client
	}
	return c.sftp, nil
}

func (c *SSHClient) touch() {
	c.mu.Lock()
	c.lastUse = time.Now()
	c.mu.Unlock()
}

// Close closes the SSH connection.
func (c *SSHClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *SSHClient) closeLocked() error {
	if c.sftp != nil {
		c.sftp.Close()
		c.sftp = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected checks if connection is alive.
func (c *SSHClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return false
	}
	_, _, err := c.conn.SendRequest("keepalive@openssh.com", true, nil)
	return err == nil
}

// LastUse returns the time of last activity.
func (c *SSHClient) LastUse() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUse
}

// SessionKey returns a unique key for this connection.
func (c *SSHClient) SessionKey() string {
	return fmt.Sprintf("%s@%s:%d", c.config.User, c.config.Host, c.config.Port)
}

// expandPath expands ~ to home directory.
func expandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		if usr, err := user.Current(); err == nil {
			return filepath.Join(usr.HomeDir, p[2:])
		}
	}
	return p
}

// Quote single-quotes s for a POSIX shell.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// killGrace bounds the wait for a killed command's session to finish.
const killGrace = 2 * time.Second

// lockedBuffer is an output sink the session goroutine may still write to
// after Execute has returned.
type lockedBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *lockedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}
