package client

import (
	"encoding/json"
	"fmt"
)

// ProviderError is a transport, authentication or protocol failure talking
// to a model provider. The gateway never retries it.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: API error %d: %s", e.Provider, e.StatusCode, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s: request failed", e.Provider)
	}
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsAuth reports whether the provider rejected the credentials.
func (e *ProviderError) IsAuth() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// MalformedToolCallError describes a tool call that does not match its
// declaration. It is never returned to callers; it is rendered into a
// tool message so the model can correct itself.
type MalformedToolCallError struct {
	CallID string
	Tool   string
	Reason string
}

func (e *MalformedToolCallError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("malformed tool call: %s", e.Reason)
	}
	return fmt.Sprintf("malformed call to %s: %s", e.Tool, e.Reason)
}

// Message renders the error as the tool message answering the call.
func (e *MalformedToolCallError) Message() Message {
	body, _ := json.Marshal(map[string]any{
		"success": false,
		"error":   e.Error() + ". Call the tool again with arguments matching its schema.",
	})
	return Message{
		Role:       RoleTool,
		ToolCallID: e.CallID,
		Name:       e.Tool,
		Content:    string(body),
	}
}
