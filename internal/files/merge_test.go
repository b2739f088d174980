package files

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEmptyChangesIsIdentity(t *testing.T) {
	base := FileSet{"a.txt": "A", "src/b.jsx": "B"}
	out, warnings := DefaultMerger().Apply(base, nil)

	assert.Empty(t, warnings)
	assert.True(t, out.Equal(base))
}

func TestApplyDoesNotMutateBase(t *testing.T) {
	base := FileSet{"a.txt": "A"}
	_, _ = DefaultMerger().Apply(base, []FileChange{
		{Path: "a.txt", Content: "changed", Action: ActionModify},
		{Path: "b.txt", Content: "new", Action: ActionCreate},
	})

	assert.Equal(t, FileSet{"a.txt": "A"}, base)
}

func TestApplyIsDeterministic(t *testing.T) {
	base := DefaultTemplate().Files()
	changes := []FileChange{
		{Path: "src/components/Todo.jsx", Content: "export default function Todo() {}", Action: ActionCreate},
		{Path: "src/App.jsx", Content: "x", Action: ActionModify},
		{Path: "src/index.css", Action: ActionDelete},
	}

	m := DefaultMerger()
	first, _ := m.Apply(base, changes)
	second, _ := m.Apply(base, changes)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, first.Paths(), second.Paths())
}

func TestApplyDeleteThenCreate(t *testing.T) {
	base := FileSet{"x.js": "old"}
	out, _ := DefaultMerger().Apply(base, []FileChange{
		{Path: "x.js", Action: ActionDelete},
		{Path: "x.js", Content: "new", Action: ActionCreate},
	})
	assert.Equal(t, "new", out["x.js"])
}

func TestApplyCreateThenDelete(t *testing.T) {
	out, _ := DefaultMerger().Apply(FileSet{}, []FileChange{
		{Path: "x.js", Content: "new", Action: ActionCreate},
		{Path: "x.js", Action: ActionDelete},
	})
	_, ok := out["x.js"]
	assert.False(t, ok)
}

func TestApplyDeleteMissingIsNoop(t *testing.T) {
	base := FileSet{"a": "1"}
	out, warnings := DefaultMerger().Apply(base, []FileChange{{Path: "missing.js", Action: ActionDelete}})
	assert.Empty(t, warnings)
	assert.True(t, out.Equal(base))
}

func TestApplyLaterChangeWins(t *testing.T) {
	out, _ := DefaultMerger().Apply(FileSet{}, []FileChange{
		{Path: "a.js", Content: "one", Action: ActionCreate},
		{Path: "a.js", Content: "two", Action: ActionModify},
	})
	assert.Equal(t, "two", out["a.js"])
}

func TestApplyProtectedPathDropped(t *testing.T) {
	base := DefaultTemplate().Files()
	out, warnings := DefaultMerger().Apply(base, []FileChange{
		{Path: "package.json", Content: "{}", Action: ActionModify},
		{Path: "vite.config.js", Action: ActionDelete},
		{Path: "src/Counter.jsx", Content: "counter", Action: ActionCreate},
	})

	require.Len(t, warnings, 2)
	assert.Equal(t, "package.json", warnings[0].Path)
	assert.Equal(t, "vite.config.js", warnings[1].Path)
	assert.Equal(t, base["package.json"], out["package.json"])
	assert.Equal(t, base["vite.config.js"], out["vite.config.js"])
	assert.Equal(t, "counter", out["src/Counter.jsx"])
}

func TestApplyProtectedGlob(t *testing.T) {
	m, err := NewMerger([]string{"config/**"})
	require.NoError(t, err)

	out, warnings := m.Apply(FileSet{}, []FileChange{
		{Path: "config/deep/x.json", Content: "{}", Action: ActionCreate},
		{Path: "src/x.json", Content: "{}", Action: ActionCreate},
	})
	assert.Len(t, warnings, 1)
	assert.Contains(t, out, "src/x.json")
	assert.NotContains(t, out, "config/deep/x.json")
}

func TestNewMergerRejectsBadPattern(t *testing.T) {
	_, err := NewMerger([]string{"[abc"})
	assert.Error(t, err)
}

func TestApplyStripsAppCSSImport(t *testing.T) {
	content := "import React from \"react\";\nimport './App.css';\nexport default function App() {}\n"
	out, _ := DefaultMerger().Apply(FileSet{}, []FileChange{
		{Path: "src/App.jsx", Content: content, Action: ActionModify},
	})
	assert.Equal(t, "import React from \"react\";\nexport default function App() {}\n", out["src/App.jsx"])
}

func TestApplyRejectsEscapingPath(t *testing.T) {
	out, warnings := DefaultMerger().Apply(FileSet{}, []FileChange{
		{Path: "../etc/passwd", Content: "x", Action: ActionCreate},
		{Path: "./src/ok.js", Content: "ok", Action: ActionCreate},
	})
	require.Len(t, warnings, 1)
	assert.Equal(t, FileSet{"src/ok.js": "ok"}, out)
}

// An edit that modifies one file and deletes another.
func TestApplyEditSequence(t *testing.T) {
	base := FileSet{
		"src/App.jsx":          "old app",
		"src/components/X.jsx": "x",
		"src/index.css":        "css",
	}
	out, warnings := DefaultMerger().Apply(base, []FileChange{
		{Path: "src/App.jsx", Content: "new app", Action: ActionModify},
		{Path: "src/components/X.jsx", Action: ActionDelete},
	})

	assert.Empty(t, warnings)
	assert.Equal(t, FileSet{"src/App.jsx": "new app", "src/index.css": "css"}, out)
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("")
	require.NoError(t, err)
	assert.Equal(t, ActionModify, a)

	a, err = ParseAction("delete")
	require.NoError(t, err)
	assert.Equal(t, ActionDelete, a)

	_, err = ParseAction("rename")
	assert.Error(t, err)
}
