// Package agent drives the model through Think and Act steps until it stops
// calling tools, folding the tool output into a draft file set.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"adorable/internal/client"
	"adorable/internal/events"
	"adorable/internal/files"
	"adorable/internal/logging"
	"adorable/internal/tools"
)

const (
	// DefaultMaxTurns is the half-turn ceiling of one run. Think and Act
	// each count as one half-turn.
	DefaultMaxTurns = 50

	// maxParallelTools bounds concurrent tool executions in one Act step.
	maxParallelTools = 5
)

// ErrAgentExhausted is returned when a run reaches its half-turn ceiling.
var ErrAgentExhausted = errors.New("agent exhausted its turn budget")

// Agent runs one task against a model.
type Agent struct {
	ID       string
	gateway  client.Gateway
	merger   *files.Merger
	maxTurns int
	emitter  events.Emitter

	status    AgentStatus
	startTime time.Time
	endTime   time.Time
	stateMu   sync.RWMutex
}

// NewAgent creates an agent. A non-positive maxTurns uses DefaultMaxTurns;
// a nil merger uses files.DefaultMerger.
func NewAgent(gw client.Gateway, merger *files.Merger, maxTurns int) *Agent {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	if merger == nil {
		merger = files.DefaultMerger()
	}
	return &Agent{
		ID:       uuid.NewString(),
		gateway:  gw,
		merger:   merger,
		maxTurns: maxTurns,
		emitter:  events.Discard,
		status:   AgentStatusPending,
	}
}

// SetEmitter sets where token, tool and file_update events go.
func (a *Agent) SetEmitter(e events.Emitter) {
	if e == nil {
		e = events.Discard
	}
	a.emitter = e
}

// GetStatus returns the current status of the agent.
func (a *Agent) GetStatus() AgentStatus {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.status
}

func (a *Agent) setStatus(s AgentStatus) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.status = s
	switch s {
	case AgentStatusRunning:
		a.startTime = time.Now()
	case AgentStatusCompleted, AgentStatusFailed, AgentStatusCancelled:
		a.endTime = time.Now()
	}
}

// run holds the mutable state of one Run.
type run struct {
	registry *tools.Registry
	messages []client.Message
	draft    files.FileSet
	output   strings.Builder
	result   *AgentResult
}

// Run executes the task. The partial result is returned with any error.
func (a *Agent) Run(ctx context.Context, task AgentTask) (*AgentResult, error) {
	a.setStatus(AgentStatusRunning)

	if task.Mode == "" {
		task.Mode = ModeEdit
	}
	base := task.Base
	if base == nil {
		base = files.FileSet{}
	}

	r := &run{
		registry: task.Mode.Registry(),
		draft:    base.Clone(),
		result:   &AgentResult{AgentID: a.ID, Mode: task.Mode, Status: AgentStatusRunning},
	}
	r.messages = seed(task, base)

	logging.Debug("agent run started", "agent_id", a.ID, "mode", task.Mode, "base_files", len(base))

	turns, err := a.loop(ctx, r)

	a.stateMu.RLock()
	start := a.startTime
	a.stateMu.RUnlock()

	res := r.result
	res.Turns = turns
	res.Output = r.output.String()
	res.Draft = r.draft
	res.Duration = time.Since(start)

	if err != nil {
		status := AgentStatusFailed
		if ctx.Err() != nil {
			status = AgentStatusCancelled
		}
		a.setStatus(status)
		res.Status = status
		res.Error = err.Error()
		logging.Warn("agent run failed", "agent_id", a.ID, "mode", task.Mode, "turns", turns, "error", err)
		return res, err
	}

	a.setStatus(AgentStatusCompleted)
	res.Status = AgentStatusCompleted
	logging.Info("agent run completed", "agent_id", a.ID, "mode", task.Mode, "turns", turns, "changes", len(res.Changes))
	return res, nil
}

// seed builds the opening conversation: system prompt, prior turns, then
// the new instruction.
func seed(task AgentTask, base files.FileSet) []client.Message {
	msgs := make([]client.Message, 0, len(task.History)+2)
	msgs = append(msgs, client.Message{Role: client.RoleSystem, Content: buildSystemPrompt(task.Mode, base)})
	for _, m := range task.History {
		if m.Role == client.RoleUser || m.Role == client.RoleAssistant {
			msgs = append(msgs, client.Message{Role: m.Role, Content: m.Content})
		}
	}

	instruction := task.Instruction
	if task.Mode == ModeFix {
		instruction = fixInstruction(instruction)
	}
	msgs = append(msgs, client.Message{Role: client.RoleUser, Content: instruction})
	return msgs
}

// loop advances the state machine until End. It returns the number of
// half-turns taken.
func (a *Agent) loop(ctx context.Context, r *run) (int, error) {
	var (
		state = StateThink
		turn  *client.AssistantTurn
		half  int
	)
	decls := r.registry.Declarations()

	for state != StateEnd {
		if err := ctx.Err(); err != nil {
			return half, err
		}
		if half >= a.maxTurns {
			return half, fmt.Errorf("%w after %d half-turns", ErrAgentExhausted, half)
		}
		half++

		switch state {
		case StateThink:
			var err error
			turn, err = a.gateway.Complete(ctx, &client.Request{
				Messages: r.messages,
				Tools:    decls,
				OnToken: func(s string) {
					a.emitter.Emit(events.Token(s))
				},
			})
			if err != nil {
				return half, fmt.Errorf("model request failed: %w", err)
			}
			r.output.WriteString(turn.Text)
			r.messages = append(r.messages, turn.Message())
			if len(turn.ToolCalls) == 0 {
				// nothing to execute; corrections answer the turn now
				r.messages = append(r.messages, turn.Corrections...)
			}
			if len(turn.Corrections) > 0 {
				logging.Debug("tool calls corrected in band", "agent_id", a.ID, "count", len(turn.Corrections))
			}

		case StateAct:
			results, err := a.act(ctx, r.registry, turn.ToolCalls)
			if err != nil {
				return half, err
			}
			a.answer(r, turn, results)
		}

		state = next(state, turn)
	}
	return half, nil
}

// act executes every call concurrently. Results are returned in request
// order.
func (a *Agent) act(ctx context.Context, reg *tools.Registry, calls []client.ToolCall) ([]tools.Result, error) {
	results := make([]tools.Result, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelTools)
	for i, call := range calls {
		g.Go(func() error {
			res, err := reg.Run(gctx, call.ID, call.Name, call.Args)
			if err != nil {
				return fmt.Errorf("tool %s: %w", call.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// answer replies to every issued call in request order, with either its
// correction or its executed result.
func (a *Agent) answer(r *run, turn *client.AssistantTurn, results []tools.Result) {
	corrections := make(map[string]client.Message, len(turn.Corrections))
	for _, c := range turn.Corrections {
		corrections[c.ToolCallID] = c
	}
	executed := make(map[string]tools.Result, len(results))
	for _, res := range results {
		executed[res.ID] = res
	}

	for _, call := range turn.Issued() {
		if c, ok := corrections[call.ID]; ok {
			r.messages = append(r.messages, c)
			continue
		}
		if res, ok := executed[call.ID]; ok {
			a.apply(r, res)
		}
	}
}

// apply answers one call in the conversation and folds its files into the
// draft.
func (a *Agent) apply(r *run, res tools.Result) {
	text := res.Text()
	r.messages = append(r.messages, client.Message{
		Role:       client.RoleTool,
		ToolCallID: res.ID,
		Name:       res.Name,
		Content:    text,
	})
	a.emitter.Emit(events.Tool(res.Name, text))

	if res.Message != "" {
		if r.output.Len() > 0 {
			r.output.WriteString("\n")
		}
		r.output.WriteString(res.Message)
		a.emitter.Emit(events.Token(res.Message))
	}
	for _, rej := range res.Rejected {
		logging.Debug("tool entry rejected", "tool", res.Name, "index", rej.Index, "path", rej.Path, "reason", rej.Reason)
	}

	r.result.Files = append(r.result.Files, res.Files...)

	changes := res.Changes
	if len(res.Files) > 0 {
		changes = append(files.EntriesToChanges(res.Files), changes...)
	}
	for _, c := range changes {
		merged, warnings := a.merger.Apply(r.draft, []files.FileChange{c})
		if len(warnings) > 0 {
			r.result.Warnings = append(r.result.Warnings, warnings...)
			continue
		}

		p, _ := files.CleanPath(c.Path)
		applied := files.FileChange{Path: p, Content: merged[p], Action: c.Action}
		a.emitter.Emit(events.FileUpdate(applied, files.LineDiff(r.draft[p], applied.Content)))

		r.draft = merged
		r.result.Changes = append(r.result.Changes, applied)
	}
}
