package app

import (
	"context"
	"errors"
	"fmt"

	"adorable/internal/client"
	"adorable/internal/config"
	"adorable/internal/files"
	"adorable/internal/logging"
	"adorable/internal/robustness"
	"adorable/internal/sandbox"
	"adorable/internal/ssh"
	"adorable/internal/store"
)

// App is a wired orchestrator together with the resources it owns.
type App struct {
	Orchestrator *Orchestrator
	Store        store.Store

	closers []func() error
}

// Close releases the store, the sandbox connection and the template
// watcher.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Builder constructs an App from configuration. Components set explicitly
// replace the ones the configuration would create.
type Builder struct {
	cfg *config.Config

	gateway   client.Gateway
	store     store.Store
	adapter   sandbox.Adapter
	templates TemplateSource

	closers []func() error
}

// NewBuilder creates a new Builder with the given config.
func NewBuilder(cfg *config.Config) *Builder {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Builder{cfg: cfg}
}

func (b *Builder) WithGateway(gw client.Gateway) *Builder {
	b.gateway = gw
	return b
}

func (b *Builder) WithStore(st store.Store) *Builder {
	b.store = st
	return b
}

func (b *Builder) WithAdapter(a sandbox.Adapter) *Builder {
	b.adapter = a
	return b
}

func (b *Builder) WithTemplates(src TemplateSource) *Builder {
	b.templates = src
	return b
}

// Build creates every missing component and returns the App. On failure
// the components created so far are released.
func (b *Builder) Build(ctx context.Context) (*App, error) {
	app, err := b.build(ctx)
	if err != nil {
		(&App{closers: b.closers}).Close()
		return nil, err
	}
	return app, nil
}

func (b *Builder) build(ctx context.Context) (*App, error) {
	cfg := b.cfg

	merger, err := files.NewMerger(cfg.Files.Protected)
	if err != nil {
		return nil, fmt.Errorf("protected paths: %w", err)
	}

	if b.gateway == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if b.gateway, err = client.New(ctx, cfg); err != nil {
			return nil, fmt.Errorf("model gateway: %w", err)
		}
	}
	if b.store == nil {
		if err := b.initStore(); err != nil {
			return nil, err
		}
	}
	if b.adapter == nil {
		b.initAdapter()
	}
	if b.templates == nil {
		if err := b.initTemplates(); err != nil {
			return nil, err
		}
	}

	breaker := robustness.NewCircuitBreaker("sandbox-provision", cfg.Sandbox.BreakerThreshold, cfg.Sandbox.BreakerReset)
	orch := NewOrchestrator(b.gateway, b.store, b.adapter,
		WithBreaker(breaker),
		WithTemplates(b.templates),
		WithMerger(merger),
		WithMaxTurns(cfg.Agent.MaxTurns),
		WithFixAttempts(cfg.Agent.FixAttempts),
		WithRunDeadline(cfg.Pipeline.RunDeadline),
		WithEventBuffer(cfg.Pipeline.EventBuffer),
	)

	logging.Info("pipeline ready",
		"provider", b.gateway.Name(),
		"store", cfg.Store.Driver,
		"template", b.templates.Current().Source())

	return &App{Orchestrator: orch, Store: b.store, closers: b.closers}, nil
}

func (b *Builder) initStore() error {
	st, err := OpenStore(b.cfg)
	if err != nil {
		return err
	}
	b.store = st
	b.closers = append(b.closers, st.Close)
	return nil
}

// OpenStore opens the version store the configuration selects. Commands
// that only read versions use it without building the rest of the App.
func OpenStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "", "sqlite":
		db, err := store.OpenSQLite(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("version store: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func (b *Builder) initAdapter() {
	sc := b.cfg.Sandbox
	if sc.Driver == "memory" {
		logging.Warn("using in-memory sandboxes; builds always pass and previews are not served")
		b.adapter = sandbox.NewMemoryAdapter()
		return
	}

	sshCfg := ssh.DefaultSSHConfig()
	sshCfg.Host = sc.Host
	if sc.Port != 0 {
		sshCfg.Port = sc.Port
	}
	if sc.User != "" {
		sshCfg.User = sc.User
	}
	if sc.KeyPath != "" {
		sshCfg.KeyPath = sc.KeyPath
	}
	if sc.KnownHostsPath != "" {
		sshCfg.KnownHostsPath = sc.KnownHostsPath
	}
	if sc.ConnectTimeout > 0 {
		sshCfg.Timeout = sc.ConnectTimeout
	}
	sshCfg.KeyPassphrase = sc.KeyPassphrase
	sshCfg.Password = sc.Password

	conn := ssh.NewSSHClient(sshCfg)
	b.closers = append(b.closers, conn.Close)

	preview := sc.PreviewHost
	if preview == "" {
		preview = sc.Host
	}
	b.adapter = sandbox.NewSSHAdapter(conn, sandbox.RemoteConfig{
		RootDir:        sc.RootDir,
		BasePort:       sc.BasePort,
		PreviewHost:    preview,
		BuildTimeout:   sc.BuildTimeout,
		InstallTimeout: sc.InstallTimeout,
	})
	logging.Info("ssh sandbox adapter configured", "host", conn.SessionKey(), "root", sc.RootDir)
}

func (b *Builder) initTemplates() error {
	dir := b.cfg.Files.TemplateDir
	if dir == "" {
		b.templates = StaticTemplate(files.DefaultTemplate())
		return nil
	}
	if !b.cfg.Files.WatchTemplate {
		t, err := files.LoadTemplateDir(dir)
		if err != nil {
			return fmt.Errorf("template: %w", err)
		}
		b.templates = StaticTemplate(t)
		return nil
	}

	w, err := files.NewTemplateWatcher(dir)
	if err != nil {
		return fmt.Errorf("template watcher: %w", err)
	}
	w.OnReload(func(t *files.Template) {
		logging.Info("template reloaded", "source", t.Source(), "files", len(t.Files()))
	})
	b.templates = w
	b.closers = append(b.closers, w.Close)
	return nil
}
