package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adorable/internal/files"
)

func TestEmitFilesRejectsMissingPath(t *testing.T) {
	res, err := NewEmitFilesTool().Execute(context.Background(), map[string]any{
		"files": []any{
			map[string]any{"path": "src/App.jsx", "content": "app"},
			map[string]any{"content": "orphan"},
			"not an object",
		},
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, []files.FileEntry{{Path: "src/App.jsx", Content: "app"}}, res.Files)
	require.Len(t, res.Rejected, 2)
	assert.Equal(t, 1, res.Rejected[0].Index)
	assert.Equal(t, "missing path", res.Rejected[0].Reason)
	assert.Equal(t, 2, res.Rejected[1].Index)
}

func TestEmitFilesUnescapesContent(t *testing.T) {
	res, err := NewEmitFilesTool().Execute(context.Background(), map[string]any{
		"files": []any{
			map[string]any{"path": "a.js", "content": `const s = \"x\";\nexport default s;`},
			map[string]any{"path": "b.js", "content": "const q = \\\"kept\\\";"},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Files, 2)
	assert.Equal(t, "const s = \"x\";\nexport default s;", res.Files[0].Content)
	assert.Equal(t, "const q = \\\"kept\\\";", res.Files[1].Content)
}

func TestApplyChangesActions(t *testing.T) {
	res, err := NewApplyChangesTool().Execute(context.Background(), map[string]any{
		"files": []any{
			map[string]any{"path": "a.js", "content": "a"},
			map[string]any{"path": "b.js", "content": "ignored", "action": "delete"},
			map[string]any{"path": "c.js", "content": "c", "action": "rename"},
			map[string]any{"path": "d.js", "content": "d", "action": "create"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []files.FileChange{
		{Path: "a.js", Content: "a", Action: files.ActionModify},
		{Path: "b.js", Content: "", Action: files.ActionDelete},
		{Path: "d.js", Content: "d", Action: files.ActionCreate},
	}, res.Changes)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "c.js", res.Rejected[0].Path)
}

func TestSayTool(t *testing.T) {
	tool := NewSayTool()
	assert.Error(t, tool.Validate(map[string]any{}))

	res, err := tool.Execute(context.Background(), map[string]any{"message": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Message)
}

func TestRegistriesPerMode(t *testing.T) {
	assert.Equal(t, []string{"emit_files", "say"}, NewGenerationRegistry().Names())
	assert.Equal(t, []string{"apply_changes", "say"}, NewEditRegistry().Names())
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewSayTool()))
	assert.Error(t, r.Register(NewSayTool()))
}

func TestRunReportsFailuresInBand(t *testing.T) {
	r := NewEditRegistry()

	res, err := r.Run(context.Background(), "c1", "emit_files", map[string]any{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "c1", res.ID)
	assert.Contains(t, res.Error, "unknown tool")

	res, err = r.Run(context.Background(), "c2", "apply_changes", map[string]any{"files": "nope"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Text(), "invalid arguments")
}

func TestCheckArgs(t *testing.T) {
	decl := NewApplyChangesTool().Declaration()

	assert.NoError(t, CheckArgs(decl, map[string]any{"files": []any{}}))

	err := CheckArgs(decl, map[string]any{})
	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "files", verr.Field)

	err = CheckArgs(decl, map[string]any{"files": "x"})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "array")

	assert.NoError(t, CheckArgs(NewSayTool().Declaration(), map[string]any{"message": "hi", "extra": 1}))
}
