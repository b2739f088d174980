// Package client is the model gateway: it sends a conversation to a
// provider and returns one canonical assistant turn.
package client

import (
	"context"

	"google.golang.org/genai"
)

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a conversation. Tool messages carry the id of the
// call they answer.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a normalized request from the model to run a tool.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// RawToolCall is a tool call as a provider reported it. Args may be a JSON
// string, a doubly encoded JSON string, or an already decoded map.
type RawToolCall struct {
	ID   string
	Name string
	Args any
}

// AssistantTurn is the canonical result of one completion. Corrections are
// tool-role messages answering calls that could not be normalized.
type AssistantTurn struct {
	Text        string
	ToolCalls   []ToolCall
	Corrections []Message

	// every call the model issued, including rejected ones
	issued []ToolCall
}

// Issued returns every call the model issued, in request order.
func (t *AssistantTurn) Issued() []ToolCall {
	if t.issued == nil {
		return t.ToolCalls
	}
	return t.issued
}

// Message returns the assistant message to append to the conversation.
func (t *AssistantTurn) Message() Message {
	msg := Message{Role: RoleAssistant, Content: t.Text}
	if calls := t.Issued(); len(calls) > 0 {
		msg.ToolCalls = append([]ToolCall(nil), calls...)
	}
	return msg
}

// Request is one completion request.
type Request struct {
	Messages []Message
	Tools    []*genai.FunctionDeclaration

	// OnToken receives assistant text as it streams. May be nil.
	OnToken func(string)
}

// Gateway completes a conversation against a model provider.
type Gateway interface {
	Complete(ctx context.Context, req *Request) (*AssistantTurn, error)
	Name() string
}

// Ptr returns a pointer to the given value.
func Ptr[T any](v T) *T {
	return &v
}
