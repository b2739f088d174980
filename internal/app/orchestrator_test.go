package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adorable/internal/agent"
	"adorable/internal/client"
	"adorable/internal/events"
	"adorable/internal/files"
	"adorable/internal/robustness"
	"adorable/internal/sandbox"
	"adorable/internal/store"
)

type step func(req *client.Request) (*client.AssistantTurn, error)

// scriptedGateway replays one step per call; past the script it ends the
// run with an empty turn.
type scriptedGateway struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (g *scriptedGateway) Name() string { return "scripted" }

func (g *scriptedGateway) Complete(ctx context.Context, req *client.Request) (*client.AssistantTurn, error) {
	g.mu.Lock()
	i := g.calls
	g.calls++
	g.mu.Unlock()
	if i >= len(g.steps) {
		return client.NewTurn("", nil, req.Tools), nil
	}
	return g.steps[i](req)
}

func say(text string) step {
	return func(req *client.Request) (*client.AssistantTurn, error) {
		if req.OnToken != nil {
			req.OnToken(text)
		}
		return client.NewTurn(text, nil, req.Tools), nil
	}
}

func call(name string, args map[string]any) step {
	return func(req *client.Request) (*client.AssistantTurn, error) {
		return client.NewTurn("", []client.RawToolCall{{ID: "call-" + name, Name: name, Args: args}}, req.Tools), nil
	}
}

func fail(err error) step {
	return func(*client.Request) (*client.AssistantTurn, error) {
		return nil, err
	}
}

func entries(pairs ...string) map[string]any {
	list := make([]any, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		list = append(list, map[string]any{"path": pairs[i], "content": pairs[i+1]})
	}
	return map[string]any{"files": list}
}

func changes(items ...map[string]any) map[string]any {
	list := make([]any, len(items))
	for i, it := range items {
		list[i] = it
	}
	return map[string]any{"files": list}
}

const navImport = "import Nav from './components/Nav';\nexport default function App() { return <Nav />; }"

// requires fails the build until path exists.
func requires(path string) func(files.FileSet) sandbox.BuildResult {
	return func(set files.FileSet) sandbox.BuildResult {
		if _, ok := set[path]; ok {
			return sandbox.BuildResult{Passed: true, Log: "built"}
		}
		return sandbox.BuildResult{ExitCode: 1, Log: fmt.Sprintf("Could not resolve %q", path)}
	}
}

type fixture struct {
	gw    *scriptedGateway
	mem   *sandbox.MemoryAdapter
	store *store.Memory
	orch  *Orchestrator
}

func newFixture(steps ...step) *fixture {
	f := &fixture{
		gw:    &scriptedGateway{steps: steps},
		mem:   sandbox.NewMemoryAdapter(),
		store: store.NewMemory(),
	}
	f.orch = NewOrchestrator(f.gw, f.store, f.mem, WithEventBuffer(1024))
	return f
}

func eventTypes(evs []events.Event) []events.Type {
	out := make([]events.Type, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func ofType(evs []events.Event, t events.Type) []events.Event {
	var out []events.Event
	for _, ev := range evs {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func TestGenerateCreatesProject(t *testing.T) {
	f := newFixture(
		call("emit_files", entries(
			"src/components/TodoList.jsx", "export default function TodoList() { return null; }",
			"index.html", "<html><head><title>Todo Board</title></head></html>",
		)),
		say("Your todo app is ready."),
	)
	stream := f.orch.NewStream()

	project, err := f.orch.Generate(context.Background(), "a todo app", stream)
	require.NoError(t, err)
	evs := events.Collect(stream)

	require.NotNil(t, project)
	assert.Equal(t, "Todo Board", project.Name)
	assert.Equal(t, store.StatusReady, project.Status)
	require.NotNil(t, project.Sandbox)
	assert.Equal(t, "http://localhost:5173", project.Sandbox.Address)

	v, err := f.store.GetVersion(context.Background(), project.CurrentVersionID)
	require.NoError(t, err)
	assert.True(t, v.BuildPassed)
	assert.Equal(t, "a todo app", v.Prompt)
	assert.Contains(t, v.Files, "src/App.jsx", "App entry is wired when missing")
	assert.Contains(t, v.Files["src/App.jsx"], "TodoList")
	assert.Contains(t, v.Files, "package.json", "template files are kept")
	assert.Equal(t, v.Files, f.mem.Files(project.Sandbox.ID))

	types := eventTypes(evs)
	assert.Equal(t, events.TypeDone, types[len(types)-1])
	assert.Equal(t, events.TypeVersionCreated, types[len(types)-2])
	assert.Len(t, ofType(evs, events.TypeFileUpdate), 3)
	assert.Empty(t, ofType(evs, events.TypeError))

	created := ofType(evs, events.TypeVersionCreated)[0]
	assert.Equal(t, project.ID, created.ProjectID)
	assert.Equal(t, v.ID, created.VersionID)
	assert.Equal(t, "http://localhost:5173", created.Preview)
	require.NotNil(t, created.Passed)
	assert.True(t, *created.Passed)
}

func TestGenerateRepairsFailingBuild(t *testing.T) {
	f := newFixture(
		call("emit_files", entries("src/App.jsx", navImport)),
		say("done"),
		// fix agent
		call("apply_changes", changes(map[string]any{
			"path": "src/components/Nav.jsx", "content": "export default function Nav() { return null; }", "action": "create",
		})),
		say("added Nav"),
	)
	f.mem.BuildFunc = requires("src/components/Nav.jsx")
	stream := f.orch.NewStream()

	project, err := f.orch.Generate(context.Background(), "a landing page", stream)
	require.NoError(t, err)
	evs := events.Collect(stream)

	v, err := f.store.GetVersion(context.Background(), project.CurrentVersionID)
	require.NoError(t, err)
	assert.True(t, v.BuildPassed)
	assert.Contains(t, v.Files, "src/components/Nav.jsx")
	assert.Equal(t, 2, f.mem.Builds)

	var statuses []string
	for _, ev := range ofType(evs, events.TypeStatus) {
		statuses = append(statuses, ev.Message)
	}
	assert.Contains(t, statuses, "validating")
	assert.Contains(t, statuses, "fixing attempt 1/3")
	assert.Empty(t, ofType(evs, events.TypeWarning))
}

func TestFixAgentSeesRedactedLog(t *testing.T) {
	const key = "sk-or-v1-0123456789abcdef0123456789abcdef01234567"
	var fixPrompt string
	f := newFixture(
		call("emit_files", entries("src/App.jsx", navImport)),
		say("done"),
		func(req *client.Request) (*client.AssistantTurn, error) {
			fixPrompt = req.Messages[len(req.Messages)-1].Content
			return client.NewTurn("", nil, req.Tools), nil
		},
	)
	f.mem.BuildFunc = func(set files.FileSet) sandbox.BuildResult {
		return sandbox.BuildResult{ExitCode: 1, Log: "OPENROUTER_API_KEY=" + key + "\nbuild failed"}
	}

	_, err := f.orch.Generate(context.Background(), "a landing page", f.orch.NewStream())
	require.NoError(t, err)

	assert.Contains(t, fixPrompt, "build failed")
	assert.Contains(t, fixPrompt, "[REDACTED]")
	assert.NotContains(t, fixPrompt, key)
}

func TestGeneratePersistsBuildThatNeverPasses(t *testing.T) {
	f := newFixture(call("emit_files", entries("src/App.jsx", navImport)))
	f.mem.BuildFunc = requires("src/components/Nav.jsx")
	stream := f.orch.NewStream()

	project, err := f.orch.Generate(context.Background(), "a landing page", stream)
	require.NoError(t, err)
	evs := events.Collect(stream)

	v, err := f.store.GetVersion(context.Background(), project.CurrentVersionID)
	require.NoError(t, err)
	assert.False(t, v.BuildPassed)
	assert.Equal(t, 4, f.mem.Builds)
	require.Len(t, ofType(evs, events.TypeWarning), 1)
	require.Len(t, ofType(evs, events.TypeDone), 1)
	assert.Empty(t, ofType(evs, events.TypeError))

	warning, created := -1, -1
	for i, ev := range evs {
		switch ev.Type {
		case events.TypeWarning:
			warning = i
		case events.TypeVersionCreated:
			created = i
		}
	}
	require.NotEqual(t, -1, created)
	assert.Less(t, warning, created)
	require.NotNil(t, evs[created].Passed)
	assert.False(t, *evs[created].Passed)
}

func TestGenerateProviderFailure(t *testing.T) {
	f := newFixture(fail(&client.ProviderError{Provider: "openrouter", StatusCode: 401, Message: "bad key"}))
	stream := f.orch.NewStream()

	project, err := f.orch.Generate(context.Background(), "anything", stream)
	require.Error(t, err)
	assert.Nil(t, project)

	evs := events.Collect(stream)
	require.Len(t, evs, 3)
	assert.Equal(t, []events.Type{events.TypeStatus, events.TypeError, events.TypeDone}, eventTypes(evs))
	assert.Equal(t, "The model provider rejected the configured API key.", evs[1].Message)
}

func TestGenerateNoFiles(t *testing.T) {
	f := newFixture(say("I can't help with that."))
	stream := f.orch.NewStream()

	_, err := f.orch.Generate(context.Background(), "anything", stream)
	assert.ErrorIs(t, err, ErrNoFiles)
	errs := ofType(events.Collect(stream), events.TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, "I can't help with that.", errs[0].Message)
}

// provisionFails wraps an adapter whose Provision always fails.
type provisionFails struct {
	*sandbox.MemoryAdapter
}

func (p provisionFails) Provision(context.Context) (sandbox.Handle, error) {
	return sandbox.Handle{}, errors.New("quota exceeded")
}

func TestGenerateSandboxUnavailable(t *testing.T) {
	gw := &scriptedGateway{steps: []step{call("emit_files", entries("src/App.jsx", "x"))}}
	st := store.NewMemory()
	orch := NewOrchestrator(gw, st, provisionFails{sandbox.NewMemoryAdapter()},
		WithEventBuffer(1024),
		WithBreaker(robustness.NewCircuitBreaker("test", 5, 0)))
	stream := orch.NewStream()

	project, err := orch.Generate(context.Background(), "p", stream)
	var unavailable *sandbox.UnavailableError
	require.True(t, errors.As(err, &unavailable))
	require.NotNil(t, project)

	got, err := st.GetProject(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, got.Status)
	assert.Empty(t, got.CurrentVersionID)

	errs := ofType(events.Collect(stream), events.TypeError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "sandbox is unavailable")
}

func TestEditCreatesVersion(t *testing.T) {
	f := newFixture(
		call("emit_files", entries("src/App.jsx", "export default function App() { return <h1>Hi</h1>; }")),
		say("done"),
		// edit agent
		call("apply_changes", changes(map[string]any{
			"path": "src/App.jsx", "content": "export default function App() { return <h1>Hello</h1>; }",
		})),
		say("Changed the greeting."),
	)
	ctx := context.Background()
	project, err := f.orch.Generate(ctx, "greeting", f.orch.NewStream())
	require.NoError(t, err)
	first := project.CurrentVersionID

	stream := f.orch.NewStream()
	history := []client.Message{{Role: client.RoleUser, Content: "greeting"}, {Role: client.RoleAssistant, Content: "done"}}
	edited, err := f.orch.Edit(ctx, project.ID, "say hello instead", history, stream)
	require.NoError(t, err)
	evs := events.Collect(stream)

	assert.NotEqual(t, first, edited.CurrentVersionID)
	v, err := f.store.GetVersion(ctx, edited.CurrentVersionID)
	require.NoError(t, err)
	assert.Contains(t, v.Files["src/App.jsx"], "Hello")
	assert.Equal(t, "say hello instead", v.Prompt)

	old, err := f.store.GetVersion(ctx, first)
	require.NoError(t, err)
	assert.Contains(t, old.Files["src/App.jsx"], "Hi", "earlier versions are immutable")

	versions, err := f.store.ListVersions(ctx, project.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
	assert.Equal(t, project.Sandbox.ID, edited.Sandbox.ID)
	assert.Equal(t, 1, f.mem.Provisions)
	assert.Len(t, ofType(evs, events.TypeVersionCreated), 1)
	assert.Equal(t, "Changed the greeting.", ofType(evs, events.TypeToken)[0].Content)
}

func TestEditReprovisionsExpiredSandbox(t *testing.T) {
	f := newFixture(
		call("emit_files", entries("src/App.jsx", "v1")),
		say("done"),
		call("apply_changes", changes(map[string]any{"path": "src/App.jsx", "content": "v2"})),
	)
	ctx := context.Background()
	project, err := f.orch.Generate(ctx, "p", f.orch.NewStream())
	require.NoError(t, err)
	f.mem.Destroy(project.Sandbox.ID)

	stream := f.orch.NewStream()
	edited, err := f.orch.Edit(ctx, project.ID, "change", nil, stream)
	require.NoError(t, err)
	assert.Empty(t, ofType(events.Collect(stream), events.TypeError))

	require.NotNil(t, edited.Sandbox)
	assert.NotEqual(t, project.Sandbox.ID, edited.Sandbox.ID)
	assert.Equal(t, 2, f.mem.Provisions)
	assert.Equal(t, "v2", f.mem.Files(edited.Sandbox.ID)["src/App.jsx"])
}

func TestEditWithoutChangesCreatesNoVersion(t *testing.T) {
	f := newFixture(
		call("emit_files", entries("src/App.jsx", "v1")),
		say("done"),
		say("That already looks right."),
	)
	ctx := context.Background()
	project, err := f.orch.Generate(ctx, "p", f.orch.NewStream())
	require.NoError(t, err)

	stream := f.orch.NewStream()
	edited, err := f.orch.Edit(ctx, project.ID, "nothing", nil, stream)
	require.NoError(t, err)
	assert.Equal(t, project.CurrentVersionID, edited.CurrentVersionID)
	assert.Empty(t, ofType(events.Collect(stream), events.TypeVersionCreated))
}

func TestEditUnknownProject(t *testing.T) {
	f := newFixture()
	stream := f.orch.NewStream()
	_, err := f.orch.Edit(context.Background(), "missing", "x", nil, stream)
	assert.ErrorIs(t, err, store.ErrNotFound)
	errs := ofType(events.Collect(stream), events.TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Project not found.", errs[0].Message)
}

func TestGenerateSurvivesClientDisconnect(t *testing.T) {
	f := newFixture(call("emit_files", entries("src/App.jsx", "x")))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stream := f.orch.NewStream()
	stream.Abandon()

	project, err := f.orch.Generate(ctx, "p", stream)
	require.NoError(t, err)
	assert.NotEmpty(t, project.CurrentVersionID)
}

func TestRunGeneration(t *testing.T) {
	f := newFixture(call("emit_files", entries("src/components/PricingTable.jsx", "export default function PricingTable() {}")))
	res := f.orch.RunGeneration(context.Background(), "pricing")
	require.True(t, res.Success)
	assert.Equal(t, "Pricing Table", res.ProjectName)
	require.Len(t, res.Files, 2)
	assert.Equal(t, files.AppEntryPath, res.Files[1].Path)

	f = newFixture(say("I can only build web apps; please describe one."))
	res = f.orch.RunGeneration(context.Background(), "pricing")
	assert.False(t, res.Success)
	assert.Equal(t, "I can only build web apps; please describe one.", res.Error)

	f = newFixture(say(""))
	res = f.orch.RunGeneration(context.Background(), "pricing")
	assert.False(t, res.Success)
	assert.Equal(t, ErrNoFiles.Error(), res.Error)
}

func TestRunEdit(t *testing.T) {
	f := newFixture(call("apply_changes", changes(
		map[string]any{"path": "src/old.jsx", "action": "delete"},
		map[string]any{"path": "src/new.jsx", "content": "new", "action": "create"},
	)))
	var seen []events.Event
	got, err := f.orch.RunEdit(context.Background(), files.FileSet{"src/old.jsx": "old"}, "rename", nil, func(ev events.Event) {
		seen = append(seen, ev)
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, files.ActionDelete, got[0].Action)
	assert.Equal(t, "src/new.jsx", got[1].Path)
	assert.Len(t, ofType(seen, events.TypeFileUpdate), 2)
}

func TestUserMessage(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorCode
	}{
		{&client.ProviderError{Provider: "p", StatusCode: 500}, ErrCodeProvider},
		{fmt.Errorf("model request failed: %w", &client.ProviderError{StatusCode: 403}), ErrCodeAuth},
		{fmt.Errorf("x: %w", agent.ErrAgentExhausted), ErrCodeAgent},
		{&sandbox.UnavailableError{ID: "a", Err: errors.New("b")}, ErrCodeSandbox},
		{robustness.ErrCircuitOpen, ErrCodeSandbox},
		{context.DeadlineExceeded, ErrCodeTimeout},
		{context.Canceled, ErrCodeCancelled},
		{store.ErrNotFound, ErrCodeNotFound},
		{NewAppError(ErrCodeValidation, "prompt is required", nil), ErrCodeValidation},
		{errors.New("boom"), ErrCodeUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.err), c.err.Error())
		assert.NotEmpty(t, UserMessage(c.err))
		assert.NotContains(t, UserMessage(c.err), "boom")
	}
	assert.Equal(t, "prompt is required", UserMessage(NewAppError(ErrCodeValidation, "prompt is required", nil)))
}
