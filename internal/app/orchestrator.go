// Package app wires the agent, the sandbox, the build validator and the
// version store into the generation and edit pipelines.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"adorable/internal/agent"
	"adorable/internal/build"
	"adorable/internal/client"
	"adorable/internal/events"
	"adorable/internal/files"
	"adorable/internal/logging"
	"adorable/internal/robustness"
	"adorable/internal/sandbox"
	"adorable/internal/security"
	"adorable/internal/store"
)

// DefaultRunDeadline bounds one generation or edit request.
const DefaultRunDeadline = 10 * time.Minute

// TemplateSource supplies the base template for new projects.
type TemplateSource interface {
	Current() *files.Template
}

type staticTemplate struct {
	t *files.Template
}

func (s staticTemplate) Current() *files.Template {
	return s.t
}

// StaticTemplate returns a source that always yields t.
func StaticTemplate(t *files.Template) TemplateSource {
	return staticTemplate{t: t}
}

// GenerationResult is the outcome of a generation run without
// persistence.
type GenerationResult struct {
	Success     bool              `json:"success"`
	Files       []files.FileEntry `json:"files,omitempty"`
	ProjectName string            `json:"projectName,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Orchestrator runs generation and edit requests end to end.
type Orchestrator struct {
	gateway   client.Gateway
	store     store.Store
	adapter   sandbox.Adapter
	breaker   *robustness.CircuitBreaker
	templates TemplateSource
	merger    *files.Merger
	redactor  *security.SecretRedactor

	maxTurns    int
	fixAttempts int
	runDeadline time.Duration
	eventBuffer int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithBreaker(cb *robustness.CircuitBreaker) Option {
	return func(o *Orchestrator) { o.breaker = cb }
}

func WithTemplates(src TemplateSource) Option {
	return func(o *Orchestrator) {
		if src != nil {
			o.templates = src
		}
	}
}

func WithMerger(m *files.Merger) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.merger = m
		}
	}
}

func WithMaxTurns(n int) Option {
	return func(o *Orchestrator) { o.maxTurns = n }
}

// WithFixAttempts sets the number of fix cycles after a failed build.
func WithFixAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.fixAttempts = n
		}
	}
}

// WithRunDeadline sets the per-request deadline.
func WithRunDeadline(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.runDeadline = d
		}
	}
}

func WithEventBuffer(n int) Option {
	return func(o *Orchestrator) { o.eventBuffer = n }
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(gw client.Gateway, st store.Store, adapter sandbox.Adapter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateway:     gw,
		store:       st,
		adapter:     adapter,
		templates:   StaticTemplate(files.DefaultTemplate()),
		merger:      files.DefaultMerger(),
		redactor:    security.NewSecretRedactor(),
		maxTurns:    agent.DefaultMaxTurns,
		fixAttempts: build.DefaultFixAttempts,
		runDeadline: DefaultRunDeadline,
		eventBuffer: events.DefaultBuffer,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Store returns the version store.
func (o *Orchestrator) Store() store.Store {
	return o.store
}

// NewStream creates an event stream for one request. Errors finishing the
// stream are rendered with UserMessage.
func (o *Orchestrator) NewStream() *events.Stream {
	return events.NewStream(o.eventBuffer, events.WithErrorText(UserMessage))
}

func (o *Orchestrator) newAgent(emitter events.Emitter) *agent.Agent {
	a := agent.NewAgent(o.gateway, o.merger, o.maxTurns)
	a.SetEmitter(emitter)
	return a
}

// detach returns a context that survives client disconnect but ends at the
// run deadline.
func (o *Orchestrator) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.runDeadline)
}

// RunGeneration runs the generation agent on prompt and returns its files.
// Nothing is persisted and no sandbox is touched.
func (o *Orchestrator) RunGeneration(ctx context.Context, prompt string) GenerationResult {
	entries, name, _, err := o.generateFiles(ctx, prompt, events.Discard)
	if err != nil {
		return GenerationResult{Success: false, Error: UserMessage(err)}
	}
	return GenerationResult{Success: true, Files: entries, ProjectName: name}
}

// RunEdit runs the edit agent against currentFiles and returns the accepted
// changes in order. onEvent may be nil.
func (o *Orchestrator) RunEdit(ctx context.Context, currentFiles files.FileSet, message string, history []client.Message, onEvent func(events.Event)) ([]files.FileChange, error) {
	res, err := o.newAgent(events.EmitterFunc(onEvent)).Run(ctx, agent.AgentTask{
		Mode:        agent.ModeEdit,
		Instruction: message,
		Base:        currentFiles,
		History:     history,
	})
	if err != nil {
		return nil, err
	}
	return res.Changes, nil
}

// generateFiles runs the generation agent and returns its entries, the
// derived project name and the assembled candidate.
func (o *Orchestrator) generateFiles(ctx context.Context, prompt string, emitter events.Emitter) ([]files.FileEntry, string, files.FileSet, error) {
	base := o.templates.Current().Files()
	res, err := o.newAgent(emitter).Run(ctx, agent.AgentTask{
		Mode:        agent.ModeGenerate,
		Instruction: prompt,
		Base:        base,
	})
	if err != nil {
		return nil, "", nil, err
	}
	if len(res.Files) == 0 {
		return nil, "", nil, &NoFilesError{Reply: strings.TrimSpace(res.Output)}
	}

	entries, wired := files.EnsureAppEntry(res.Files)
	candidate := res.Draft
	if wired {
		app := entries[len(entries)-1]
		next, _ := o.merger.ApplyEntries(candidate, []files.FileEntry{app})
		change := files.FileChange{Path: app.Path, Content: next[app.Path], Action: files.ActionCreate}
		emitter.Emit(events.FileUpdate(change, files.LineDiff(candidate[app.Path], change.Content)))
		candidate = next
		logging.Debug("app entry wired", "path", app.Path)
	}
	return entries, files.ProjectName(entries), candidate, nil
}

// Generate creates a project from prompt: it runs the agent, starts a
// sandbox, validates the build and persists the first version. The stream
// is finished before Generate returns.
func (o *Orchestrator) Generate(ctx context.Context, prompt string, stream *events.Stream) (project *store.Project, err error) {
	defer func() {
		if err != nil {
			logging.Warn("generation failed", "error", err)
		}
		stream.Finish(err)
	}()

	ctx, cancel := o.detach(ctx)
	defer cancel()

	stream.Emit(events.Status("generating"))
	_, name, candidate, err := o.generateFiles(ctx, prompt, stream)
	if err != nil {
		return nil, err
	}

	project = &store.Project{Name: name, Prompt: prompt, Status: store.StatusCreating}
	if err := o.store.CreateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	logging.Info("project created", "project", project.ID, "name", name, "files", len(candidate))

	stream.Emit(events.Status("starting sandbox"))
	session := sandbox.NewSession(o.adapter, o.breaker, nil, candidate)
	if _, err := session.Start(ctx, candidate); err != nil {
		o.markFailed(ctx, project.ID)
		if ctx.Err() != nil {
			return project, ctx.Err()
		}
		return project, &sandbox.UnavailableError{Err: err}
	}

	if err := o.validateAndPersist(ctx, project, session, candidate, prompt, stream); err != nil {
		o.markFailed(ctx, project.ID)
		return project, err
	}
	return o.refreshed(ctx, project), nil
}

// Edit applies message to the current version of a project, validates the
// result and persists it as a new version. An edit that changes nothing
// creates no version.
func (o *Orchestrator) Edit(ctx context.Context, projectID, message string, history []client.Message, stream *events.Stream) (project *store.Project, err error) {
	defer func() {
		if err != nil {
			logging.Warn("edit failed", "project", projectID, "error", err)
		}
		stream.Finish(err)
	}()

	ctx, cancel := o.detach(ctx)
	defer cancel()

	project, err = o.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	current, err := store.CurrentFiles(ctx, o.store, project)
	if err != nil {
		return project, fmt.Errorf("load current version: %w", err)
	}

	stream.Emit(events.Status("editing"))
	res, err := o.newAgent(stream).Run(ctx, agent.AgentTask{
		Mode:        agent.ModeEdit,
		Instruction: message,
		Base:        current,
		History:     history,
	})
	if err != nil {
		return project, err
	}
	if len(res.Changes) == 0 || res.Draft.Equal(current) {
		stream.Emit(events.Status("no changes"))
		return project, nil
	}

	session := sandbox.NewSession(o.adapter, o.breaker, project.Sandbox, current)
	if err := o.validateAndPersist(ctx, project, session, res.Draft, message, stream); err != nil {
		return project, err
	}
	return o.refreshed(ctx, project), nil
}

// validateAndPersist runs the build loop on candidate, refreshes the
// preview with the result and records it as the current version. A build
// that never passed is still persisted, flagged as such.
func (o *Orchestrator) validateAndPersist(ctx context.Context, project *store.Project, session *sandbox.Session, candidate files.FileSet, prompt string, stream *events.Stream) error {
	validator := build.NewValidator(o.fixer(stream),
		build.WithMaxFixes(o.fixAttempts),
		build.WithEmitter(stream),
		build.WithStop(stream.Stopped()),
		build.WithMerger(o.merger),
	)
	outcome, err := validator.Validate(ctx, session, candidate)
	if err != nil {
		return err
	}

	if _, err := session.Refresh(ctx, outcome.Files); err != nil {
		var unavailable *sandbox.UnavailableError
		if ctx.Err() != nil || errors.As(err, &unavailable) {
			return err
		}
		logging.Warn("preview refresh failed", "project", project.ID, "error", err)
		stream.Emit(events.Warning("The preview could not be refreshed. Your changes were saved."))
	}

	version := &store.Version{
		ProjectID:   project.ID,
		Files:       outcome.Files,
		Prompt:      prompt,
		BuildPassed: outcome.Passed,
	}
	if err := o.store.CreateVersion(ctx, version); err != nil {
		return fmt.Errorf("create version: %w", err)
	}
	if err := o.store.SetCurrentVersion(ctx, project.ID, version.ID); err != nil {
		return fmt.Errorf("set current version: %w", err)
	}
	var preview string
	if handle := session.Handle(); handle != nil {
		if err := o.store.SetSandbox(ctx, project.ID, handle); err != nil {
			return fmt.Errorf("record sandbox: %w", err)
		}
		preview = handle.Address
	}
	if err := o.store.SetStatus(ctx, project.ID, store.StatusReady); err != nil {
		return fmt.Errorf("set status: %w", err)
	}

	logging.Info("version created",
		"project", project.ID,
		"version", version.ID,
		"build_passed", outcome.Passed,
		"fix_cycles", outcome.FixCycles)
	stream.Emit(events.VersionCreated(project.ID, version.ID, outcome.Files, preview, outcome.Passed))
	return nil
}

// fixer returns a build.Fixer that runs the agent in fix mode. Build logs
// come from the sandbox and are redacted before they reach the provider.
func (o *Orchestrator) fixer(emitter events.Emitter) build.Fixer {
	return build.FixerFunc(func(ctx context.Context, current files.FileSet, log string) ([]files.FileChange, error) {
		res, err := o.newAgent(emitter).Run(ctx, agent.AgentTask{
			Mode:        agent.ModeFix,
			Instruction: o.redactor.Redact(log),
			Base:        current,
		})
		if err != nil {
			return nil, err
		}
		return res.Changes, nil
	})
}

func (o *Orchestrator) markFailed(ctx context.Context, projectID string) {
	if err := o.store.SetStatus(context.WithoutCancel(ctx), projectID, store.StatusFailed); err != nil {
		logging.Warn("failed to mark project failed", "project", projectID, "error", err)
	}
}

func (o *Orchestrator) refreshed(ctx context.Context, p *store.Project) *store.Project {
	latest, err := o.store.GetProject(ctx, p.ID)
	if err != nil {
		return p
	}
	return latest
}
