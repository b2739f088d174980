package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adorable/internal/client"
	"adorable/internal/events"
	"adorable/internal/files"
)

// scriptedGateway replays one response per call and records requests.
type scriptedGateway struct {
	mu       sync.Mutex
	script   []func(req *client.Request) (*client.AssistantTurn, error)
	requests [][]client.Message
}

func (g *scriptedGateway) Name() string { return "scripted" }

func (g *scriptedGateway) Complete(ctx context.Context, req *client.Request) (*client.AssistantTurn, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, append([]client.Message(nil), req.Messages...))
	i := len(g.requests) - 1
	if i >= len(g.script) {
		return client.NewTurn("", nil, req.Tools), nil
	}
	return g.script[i](req)
}

func respond(text string, raw ...client.RawToolCall) func(*client.Request) (*client.AssistantTurn, error) {
	return func(req *client.Request) (*client.AssistantTurn, error) {
		if text != "" && req.OnToken != nil {
			req.OnToken(text)
		}
		return client.NewTurn(text, raw, req.Tools), nil
	}
}

func fileArgs(items ...map[string]any) map[string]any {
	list := make([]any, len(items))
	for i, it := range items {
		list[i] = it
	}
	return map[string]any{"files": list}
}

func recorder() (*[]events.Event, events.Emitter) {
	var (
		mu  sync.Mutex
		got []events.Event
	)
	return &got, events.EmitterFunc(func(ev events.Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
}

func countType(evs []events.Event, t events.Type) int {
	n := 0
	for _, ev := range evs {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func TestGenerateRun(t *testing.T) {
	gw := &scriptedGateway{script: []func(*client.Request) (*client.AssistantTurn, error){
		respond("Building a todo app.", client.RawToolCall{ID: "c1", Name: "emit_files", Args: fileArgs(
			map[string]any{"path": "src/components/TodoList.jsx", "content": "export default function TodoList() {}"},
			map[string]any{"path": "src/App.jsx", "content": "import './App.css';\nimport TodoList from './components/TodoList';"},
		)}),
		respond("Done."),
	}}
	got, emitter := recorder()

	a := NewAgent(gw, nil, 0)
	a.SetEmitter(emitter)
	base := files.DefaultTemplate().Files()

	res, err := a.Run(context.Background(), AgentTask{Mode: ModeGenerate, Instruction: "todo app", Base: base})
	require.NoError(t, err)

	assert.True(t, res.IsSuccess())
	assert.Equal(t, AgentStatusCompleted, a.GetStatus())
	assert.Equal(t, 3, res.Turns)
	require.Len(t, res.Files, 2)
	require.Len(t, res.Changes, 2)
	assert.Equal(t, files.ActionCreate, res.Changes[0].Action)
	assert.NotContains(t, res.Draft["src/App.jsx"], "App.css")
	assert.Equal(t, base["package.json"], res.Draft["package.json"])
	assert.Contains(t, res.Output, "Building a todo app.")

	assert.Equal(t, 2, countType(*got, events.TypeFileUpdate))
	assert.Equal(t, 1, countType(*got, events.TypeTool))
	assert.Equal(t, 2, countType(*got, events.TypeToken))

	// the second request answers the call before thinking again
	second := gw.requests[1]
	last := second[len(second)-1]
	assert.Equal(t, client.RoleTool, last.Role)
	assert.Equal(t, "c1", last.ToolCallID)

	// base is untouched
	assert.NotContains(t, base, "src/components/TodoList.jsx")
}

func TestEditDeleteThenCreate(t *testing.T) {
	gw := &scriptedGateway{script: []func(*client.Request) (*client.AssistantTurn, error){
		respond("", client.RawToolCall{ID: "c1", Name: "apply_changes", Args: fileArgs(
			map[string]any{"path": "src/a.jsx", "content": "", "action": "delete"},
			map[string]any{"path": "src/a.jsx", "content": "new", "action": "create"},
		)}),
	}}

	res, err := NewAgent(gw, nil, 0).Run(context.Background(), AgentTask{
		Mode:        ModeEdit,
		Instruction: "rewrite a",
		Base:        files.FileSet{"src/a.jsx": "old"},
	})
	require.NoError(t, err)
	assert.Equal(t, "new", res.Draft["src/a.jsx"])
	require.Len(t, res.Changes, 2)
	assert.Equal(t, files.ActionDelete, res.Changes[0].Action)
}

func TestProtectedPathDropped(t *testing.T) {
	gw := &scriptedGateway{script: []func(*client.Request) (*client.AssistantTurn, error){
		respond("", client.RawToolCall{ID: "c1", Name: "apply_changes", Args: fileArgs(
			map[string]any{"path": "package.json", "content": "{}", "action": "modify"},
		)}),
	}}
	got, emitter := recorder()
	a := NewAgent(gw, nil, 0)
	a.SetEmitter(emitter)

	res, err := a.Run(context.Background(), AgentTask{Mode: ModeEdit, Base: files.FileSet{"package.json": `{"name":"x"}`}})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"x"}`, res.Draft["package.json"])
	assert.Empty(t, res.Changes)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "package.json", res.Warnings[0].Path)
	assert.Zero(t, countType(*got, events.TypeFileUpdate))
}

func TestMalformedCallIsCorrectedInBand(t *testing.T) {
	gw := &scriptedGateway{script: []func(*client.Request) (*client.AssistantTurn, error){
		respond("", client.RawToolCall{ID: "bad", Name: "apply_changes", Args: `{"files": [`}),
		respond("", client.RawToolCall{ID: "good", Name: "apply_changes", Args: fileArgs(
			map[string]any{"path": "src/b.jsx", "content": "b"},
		)}),
		respond("All set."),
	}}

	res, err := NewAgent(gw, nil, 0).Run(context.Background(), AgentTask{Mode: ModeEdit, Instruction: "add b"})
	require.NoError(t, err)
	assert.Equal(t, "b", res.Draft["src/b.jsx"])
	assert.Equal(t, files.ActionModify, res.Changes[0].Action)

	require.Len(t, gw.requests, 3)
	second := gw.requests[1]
	assistant := second[len(second)-2]
	correction := second[len(second)-1]
	assert.Equal(t, client.RoleAssistant, assistant.Role)
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "bad", assistant.ToolCalls[0].ID)
	assert.Equal(t, client.RoleTool, correction.Role)
	assert.Equal(t, "bad", correction.ToolCallID)
}

func TestHalfTurnCeiling(t *testing.T) {
	say := respond("", client.RawToolCall{ID: "s", Name: "say", Args: map[string]any{"message": "again"}})
	script := make([]func(*client.Request) (*client.AssistantTurn, error), 100)
	for i := range script {
		script[i] = say
	}
	gw := &scriptedGateway{script: script}

	res, err := NewAgent(gw, nil, 4).Run(context.Background(), AgentTask{Mode: ModeEdit})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAgentExhausted))
	assert.Equal(t, 4, res.Turns)
	assert.Equal(t, AgentStatusFailed, res.Status)
	assert.Len(t, gw.requests, 2)
}

func TestActPreservesRequestOrder(t *testing.T) {
	gw := &scriptedGateway{script: []func(*client.Request) (*client.AssistantTurn, error){
		respond("",
			client.RawToolCall{ID: "one", Name: "say", Args: map[string]any{"message": "first"}},
			client.RawToolCall{ID: "two", Name: "apply_changes", Args: fileArgs(map[string]any{"path": "x.js", "content": "1"})},
			client.RawToolCall{ID: "three", Name: "say", Args: map[string]any{"message": "third"}},
		),
	}}

	res, err := NewAgent(gw, nil, 0).Run(context.Background(), AgentTask{Mode: ModeEdit})
	require.NoError(t, err)
	assert.Equal(t, "first\nthird", res.Output)

	second := gw.requests[1]
	tail := second[len(second)-3:]
	assert.Equal(t, []string{"one", "two", "three"}, []string{tail[0].ToolCallID, tail[1].ToolCallID, tail[2].ToolCallID})
}

func TestActOrdersCorrectionsWithResults(t *testing.T) {
	gw := &scriptedGateway{script: []func(*client.Request) (*client.AssistantTurn, error){
		respond("",
			client.RawToolCall{ID: "a", Name: "say", Args: map[string]any{"message": "hi"}},
			client.RawToolCall{ID: "b", Name: "say", Args: "not json"},
			client.RawToolCall{ID: "c", Name: "say", Args: map[string]any{"message": "bye"}},
		),
	}}

	_, err := NewAgent(gw, nil, 0).Run(context.Background(), AgentTask{Mode: ModeEdit})
	require.NoError(t, err)

	second := gw.requests[1]
	var ids []string
	for _, m := range second {
		if m.Role == client.RoleTool {
			ids = append(ids, m.ToolCallID)
		}
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Contains(t, second[len(second)-2].Content, `"success":false`)
}

func TestProviderErrorSurfaces(t *testing.T) {
	gw := &scriptedGateway{script: []func(*client.Request) (*client.AssistantTurn, error){
		func(*client.Request) (*client.AssistantTurn, error) {
			return nil, &client.ProviderError{Provider: "scripted", StatusCode: 401, Message: "bad key"}
		},
	}}

	_, err := NewAgent(gw, nil, 0).Run(context.Background(), AgentTask{Mode: ModeGenerate, Instruction: "x"})
	var perr *client.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.True(t, perr.IsAuth())
}

func TestFixModeSeedsBuildLog(t *testing.T) {
	gw := &scriptedGateway{}
	history := []client.Message{
		{Role: client.RoleUser, Content: "make it blue"},
		{Role: client.RoleAssistant, Content: "done"},
		{Role: client.RoleTool, Content: "ignored"},
	}

	_, err := NewAgent(gw, nil, 0).Run(context.Background(), AgentTask{
		Mode:        ModeFix,
		Instruction: "error: Could not resolve ./components/Nav",
		Base:        files.FileSet{"src/App.jsx": "import Nav from './components/Nav'"},
		History:     history,
	})
	require.NoError(t, err)

	first := gw.requests[0]
	require.Len(t, first, 4)
	assert.Equal(t, client.RoleSystem, first[0].Role)
	assert.Contains(t, first[0].Content, "src/App.jsx")
	assert.Equal(t, "make it blue", first[1].Content)
	assert.Contains(t, first[3].Content, "Could not resolve ./components/Nav")
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewAgent(&scriptedGateway{}, nil, 0)
	res, err := a.Run(ctx, AgentTask{Mode: ModeEdit})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, AgentStatusCancelled, res.Status)
}

func TestTransitions(t *testing.T) {
	withCalls := &client.AssistantTurn{ToolCalls: []client.ToolCall{{ID: "a", Name: "say"}}}
	onlyCorrections := &client.AssistantTurn{Corrections: []client.Message{{Role: client.RoleTool}}}
	textOnly := &client.AssistantTurn{Text: "hi"}

	assert.Equal(t, StateAct, next(StateThink, withCalls))
	assert.Equal(t, StateThink, next(StateThink, onlyCorrections))
	assert.Equal(t, StateEnd, next(StateThink, textOnly))
	assert.Equal(t, StateEnd, next(StateThink, nil))
	assert.Equal(t, StateThink, next(StateAct, textOnly))
	assert.Equal(t, StateEnd, next(StateEnd, withCalls))
	assert.Equal(t, "act", StateAct.String())
}

func TestTruncateRunesKeepsValidUTF8(t *testing.T) {
	s := "ab" + "é" + "cd"
	assert.Equal(t, "ab", truncateRunes(s, 3))
	assert.Equal(t, "abé", truncateRunes(s, 4))
	assert.Equal(t, s, truncateRunes(s, 100))

	long := "a" + strings.Repeat("日", maxPromptFileBytes)
	prompt := buildSystemPrompt(ModeEdit, files.FileSet{"src/a.jsx": long})
	assert.True(t, utf8.ValidString(prompt))
	assert.Contains(t, prompt, "... (truncated)")
}
