package client

import (
	"encoding/json"
	"regexp"
	"strings"

	"google.golang.org/genai"

	"adorable/internal/logging"
)

// toolCallFromText represents a tool call written into assistant text.
type toolCallFromText struct {
	Tool      string `json:"tool"`
	Name      string `json:"name"` // alias for "tool"
	Args      any    `json:"args"`
	Arguments any    `json:"arguments"` // alias for "args"
}

// ParseToolCallsFromText extracts tool calls a model wrote as JSON instead
// of using native function calling. Only calls naming a declared tool are
// returned. Supported shapes:
//   - {"tool": "name", "args": {...}}
//   - {"name": "tool_name", "arguments": {...}}
//   - the same inside ```json fenced blocks
func ParseToolCallsFromText(text string, decls []*genai.FunctionDeclaration) []RawToolCall {
	if text == "" {
		return nil
	}
	known := make(map[string]bool, len(decls))
	for _, d := range decls {
		known[d.Name] = true
	}

	candidates := extractFromCodeBlocks(text)
	if len(candidates) == 0 {
		candidates = findJSONObjects(text)
	}

	var calls []RawToolCall
	for _, c := range candidates {
		rc, ok := parseToolCallJSON(c)
		if !ok || !known[rc.Name] {
			continue
		}
		calls = append(calls, rc)
	}
	return calls
}

var codeBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*?\\})\\s*\\n?```")

func extractFromCodeBlocks(text string) []string {
	matches := codeBlockPattern.FindAllStringSubmatch(text, -1)
	var out []string
	for _, match := range matches {
		if len(match) >= 2 {
			out = append(out, match[1])
		}
	}
	return out
}

// findJSONObjects extracts top-level JSON objects from text by matching braces.
func findJSONObjects(text string) []string {
	var objects []string
	i := 0
	for i < len(text) {
		if text[i] != '{' {
			i++
			continue
		}
		depth := 0
		inString := false
		escaped := false
		j := i
		for ; j < len(text); j++ {
			ch := text[j]
			if escaped {
				escaped = false
				continue
			}
			if ch == '\\' && inString {
				escaped = true
				continue
			}
			if ch == '"' {
				inString = !inString
			}
			if inString {
				continue
			}
			if ch == '{' {
				depth++
			} else if ch == '}' {
				depth--
				if depth == 0 {
					break
				}
			}
		}
		if depth != 0 {
			// Unmatched brace, skip
			i++
			continue
		}
		candidate := text[i : j+1]
		if strings.Contains(candidate, `"tool"`) || strings.Contains(candidate, `"name"`) {
			objects = append(objects, candidate)
		}
		i = j + 1
	}
	return objects
}

func parseToolCallJSON(s string) (RawToolCall, bool) {
	var tc toolCallFromText
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &tc); err != nil {
		return RawToolCall{}, false
	}

	name := tc.Tool
	if name == "" {
		name = tc.Name
	}
	if name == "" {
		return RawToolCall{}, false
	}
	args := tc.Args
	if args == nil {
		args = tc.Arguments
	}

	logging.Debug("parsed tool call from text", "tool", name)
	return RawToolCall{Name: name, Args: args}, true
}
