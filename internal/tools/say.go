package tools

import (
	"context"

	"google.golang.org/genai"
)

// SayTool lets the model answer in prose without touching files.
type SayTool struct{}

// NewSayTool creates a new SayTool instance.
func NewSayTool() *SayTool {
	return &SayTool{}
}

func (t *SayTool) Name() string {
	return "say"
}

func (t *SayTool) Description() string {
	return "Reply to the user with a short message when no file changes are needed."
}

func (t *SayTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"message": {
					Type:        genai.TypeString,
					Description: "The message to show the user",
				},
			},
			Required: []string{"message"},
		},
	}
}

func (t *SayTool) Validate(args map[string]any) error {
	msg, ok := GetString(args, "message")
	if !ok || msg == "" {
		return NewValidationError("message", "is required")
	}
	return nil
}

func (t *SayTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	msg, _ := GetString(args, "message")
	result := NewSuccessResult("Message delivered.")
	result.Message = msg
	return result, nil
}
