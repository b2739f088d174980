package tools

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"adorable/internal/files"
)

// EmitFilesTool receives the complete files of a newly generated project.
type EmitFilesTool struct{}

// NewEmitFilesTool creates a new EmitFilesTool instance.
func NewEmitFilesTool() *EmitFilesTool {
	return &EmitFilesTool{}
}

func (t *EmitFilesTool) Name() string {
	return "emit_files"
}

func (t *EmitFilesTool) Description() string {
	return "Generate project files. ALWAYS call this tool to output code. Each file must contain its complete content."
}

func (t *EmitFilesTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"files": {
					Type:        genai.TypeArray,
					Description: "The files to write",
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"path": {
								Type:        genai.TypeString,
								Description: "The file path relative to the project root, e.g. src/App.jsx",
							},
							"content": {
								Type:        genai.TypeString,
								Description: "The full file content",
							},
						},
						Required: []string{"path", "content"},
					},
				},
			},
			Required: []string{"files"},
		},
	}
}

func (t *EmitFilesTool) Validate(args map[string]any) error {
	if _, ok := GetObjects(args, "files"); !ok {
		return NewValidationError("files", "must be an array of {path, content}")
	}
	return nil
}

func (t *EmitFilesTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	items, _ := GetObjects(args, "files")

	var (
		entries  []files.FileEntry
		rejected []Rejection
	)
	for i, item := range items {
		if item == nil {
			rejected = append(rejected, Rejection{Index: i, Reason: "entry is not an object"})
			continue
		}
		path := strings.TrimSpace(GetStringDefault(item, "path", ""))
		if path == "" {
			rejected = append(rejected, Rejection{Index: i, Reason: "missing path"})
			continue
		}
		content, ok := GetString(item, "content")
		if !ok || content == "" {
			rejected = append(rejected, Rejection{Index: i, Path: path, Reason: "missing content"})
			continue
		}
		entries = append(entries, files.FileEntry{Path: path, Content: unescapeContent(content)})
	}

	result := NewSuccessResult(fmt.Sprintf("Generated %d files.", len(entries)))
	result.Files = entries
	result.Rejected = rejected
	return result, nil
}
