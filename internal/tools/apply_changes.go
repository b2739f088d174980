package tools

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"adorable/internal/files"
)

// ApplyChangesTool receives create, modify and delete operations against an
// existing project.
type ApplyChangesTool struct{}

// NewApplyChangesTool creates a new ApplyChangesTool instance.
func NewApplyChangesTool() *ApplyChangesTool {
	return &ApplyChangesTool{}
}

func (t *ApplyChangesTool) Name() string {
	return "apply_changes"
}

func (t *ApplyChangesTool) Description() string {
	return "Modify, create, or delete files in an existing project. Always output the COMPLETE file content for create/modify actions."
}

func (t *ApplyChangesTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"files": {
					Type:        genai.TypeArray,
					Description: "List of file changes to apply, in order",
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"path": {
								Type:        genai.TypeString,
								Description: "The file path relative to the project root",
							},
							"content": {
								Type:        genai.TypeString,
								Description: "The new full file content, empty for delete",
							},
							"action": {
								Type:        genai.TypeString,
								Description: "The action to perform on this file",
								Enum:        []string{string(files.ActionCreate), string(files.ActionModify), string(files.ActionDelete)},
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

func (t *ApplyChangesTool) Validate(args map[string]any) error {
	if _, ok := GetObjects(args, "files"); !ok {
		return NewValidationError("files", "must be an array of {path, content, action}")
	}
	return nil
}

func (t *ApplyChangesTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	items, _ := GetObjects(args, "files")

	var (
		changes  []files.FileChange
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
		action, err := files.ParseAction(GetStringDefault(item, "action", ""))
		if err != nil {
			rejected = append(rejected, Rejection{Index: i, Path: path, Reason: err.Error()})
			continue
		}

		content := ""
		if action != files.ActionDelete {
			content = unescapeContent(GetStringDefault(item, "content", ""))
		}
		changes = append(changes, files.FileChange{Path: path, Content: content, Action: action})
	}

	result := NewSuccessResult(fmt.Sprintf("Processed %d file changes.", len(changes)))
	result.Changes = changes
	result.Rejected = rejected
	return result, nil
}
