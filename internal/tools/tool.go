// Package tools declares the functions the model may call and turns their
// raw arguments into file entries and changes.
package tools

import (
	"context"
	"encoding/json"

	"google.golang.org/genai"

	"adorable/internal/files"
)

// Tool defines the interface for all tools.
type Tool interface {
	// Name returns the unique name of the tool.
	Name() string

	// Description returns a human-readable description.
	Description() string

	// Declaration returns the function declaration shared by every provider.
	Declaration() *genai.FunctionDeclaration

	// Execute runs the tool with the given arguments. Tools are pure: they
	// only interpret arguments and never touch the file set.
	Execute(ctx context.Context, args map[string]any) (ToolResult, error)

	// Validate validates the arguments before execution.
	Validate(args map[string]any) error
}

// Rejection is an entry a tool refused, with the reason.
type Rejection struct {
	Index  int    `json:"index"`
	Path   string `json:"path,omitempty"`
	Reason string `json:"reason"`
}

// ToolResult represents the result of a tool execution.
type ToolResult struct {
	// Content is the text returned to the model.
	Content string

	// Error contains an error message if the tool failed.
	Error string

	// Success indicates if the tool executed successfully.
	Success bool

	Files    []files.FileEntry
	Changes  []files.FileChange
	Rejected []Rejection
	Message  string
}

// NewSuccessResult creates a successful tool result.
func NewSuccessResult(content string) ToolResult {
	return ToolResult{
		Content: content,
		Success: true,
	}
}

// NewErrorResult creates a failed tool result.
func NewErrorResult(errMsg string) ToolResult {
	return ToolResult{
		Error:   errMsg,
		Success: false,
	}
}

// ToMap converts the result to a map for a function response.
func (r ToolResult) ToMap() map[string]any {
	result := make(map[string]any)

	if r.Success {
		result["success"] = true
		if r.Content != "" {
			result["content"] = r.Content
		}
		if len(r.Rejected) > 0 {
			result["rejected"] = r.Rejected
		}
	} else {
		result["success"] = false
		result["error"] = r.Error
	}

	return result
}

// Text renders the result as the JSON body of a tool message.
func (r ToolResult) Text() string {
	data, err := json.Marshal(r.ToMap())
	if err != nil {
		return r.Content
	}
	return string(data)
}

// Result is a tool result correlated with the call that produced it.
type Result struct {
	ID   string
	Name string
	ToolResult
}

// ValidationError represents a tool argument validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// GetString extracts a string argument from the args map.
func GetString(args map[string]any, key string) (string, bool) {
	val, ok := args[key]
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetStringDefault extracts a string argument with a default value.
func GetStringDefault(args map[string]any, key, defaultVal string) string {
	if val, ok := GetString(args, key); ok {
		return val
	}
	return defaultVal
}

// GetObjects extracts an array of objects. Non-object items are returned
// as nil so callers can report them by index.
func GetObjects(args map[string]any, key string) ([]map[string]any, bool) {
	val, ok := args[key]
	if !ok {
		return nil, false
	}
	items, ok := val.([]any)
	if !ok {
		return nil, false
	}
	out := make([]map[string]any, len(items))
	for i, item := range items {
		obj, _ := item.(map[string]any)
		out[i] = obj
	}
	return out, true
}
