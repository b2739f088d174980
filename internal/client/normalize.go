package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"adorable/internal/logging"
	"adorable/internal/tools"
)

// maxArgDecodeDepth bounds how many layers of string encoding are peeled
// off tool arguments.
const maxArgDecodeDepth = 3

type normalizedCall struct {
	call ToolCall
	err  *MalformedToolCallError
}

// Normalize maps provider tool calls onto the declared tool schemas. Calls
// that cannot be normalized are not errors: each produces a tool-role
// correction message answering it. Normalize is pure.
func Normalize(raw []RawToolCall, decls []*genai.FunctionDeclaration) ([]ToolCall, []Message) {
	var (
		calls       []ToolCall
		corrections []Message
	)
	for _, n := range normalizeCalls(raw, decls) {
		if n.err != nil {
			corrections = append(corrections, n.err.Message())
			continue
		}
		calls = append(calls, n.call)
	}
	return calls, corrections
}

// NewTurn builds the canonical turn for assistant text and the raw tool
// calls a provider reported. When no native calls are present, JSON tool
// calls embedded in the text are recognized.
func NewTurn(text string, raw []RawToolCall, decls []*genai.FunctionDeclaration) *AssistantTurn {
	if len(raw) == 0 && text != "" && len(decls) > 0 {
		raw = ParseToolCallsFromText(text, decls)
	}

	turn := &AssistantTurn{Text: text}
	for _, n := range normalizeCalls(raw, decls) {
		turn.issued = append(turn.issued, n.call)
		if n.err != nil {
			turn.Corrections = append(turn.Corrections, n.err.Message())
			continue
		}
		turn.ToolCalls = append(turn.ToolCalls, n.call)
	}
	return turn
}

func normalizeCalls(raw []RawToolCall, decls []*genai.FunctionDeclaration) []normalizedCall {
	byName := make(map[string]*genai.FunctionDeclaration, len(decls))
	for _, d := range decls {
		byName[d.Name] = d
	}

	seen := make(map[string]bool, len(raw))
	out := make([]normalizedCall, 0, len(raw))

	for i, rc := range raw {
		id := strings.TrimSpace(rc.ID)
		if id == "" || seen[id] {
			id = fmt.Sprintf("call_%d", i)
			for seen[id] {
				id += "_"
			}
		}
		seen[id] = true

		name := strings.TrimSpace(rc.Name)
		args, argErr := decodeArgs(rc.Args)
		call := ToolCall{ID: id, Name: name, Args: args}
		if call.Args == nil {
			call.Args = map[string]any{}
		}

		fail := func(reason string) {
			logging.Debug("tool call rejected", "id", id, "tool", name, "reason", reason)
			out = append(out, normalizedCall{call: call, err: &MalformedToolCallError{CallID: id, Tool: name, Reason: reason}})
		}

		decl, ok := byName[name]
		switch {
		case name == "":
			fail("missing tool name")
			continue
		case !ok:
			fail(fmt.Sprintf("unknown tool %q", name))
			continue
		case argErr != nil:
			fail(argErr.Error())
			continue
		}
		if err := tools.CheckArgs(decl, call.Args); err != nil {
			fail(err.Error())
			continue
		}
		out = append(out, normalizedCall{call: call})
	}
	return out
}

// decodeArgs turns the provider's argument encoding into an object.
func decodeArgs(v any) (map[string]any, error) {
	for depth := 0; depth <= maxArgDecodeDepth; depth++ {
		switch a := v.(type) {
		case nil:
			return map[string]any{}, nil
		case map[string]any:
			return a, nil
		case json.RawMessage:
			v = string(a)
		case []byte:
			v = string(a)
		case string:
			s := strings.TrimSpace(a)
			if s == "" {
				return map[string]any{}, nil
			}
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err != nil {
				return nil, fmt.Errorf("arguments are not valid JSON: %v", err)
			}
			v = decoded
		default:
			return nil, fmt.Errorf("arguments must be an object, got %T", v)
		}
	}
	return nil, fmt.Errorf("arguments nest string encoding too deeply")
}
