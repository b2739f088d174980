package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adorable/internal/files"
	"adorable/internal/sandbox"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "adorable.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": db,
	}
}

func TestProjectLifecycle(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := &Project{Name: "Todo App", Prompt: "a todo app"}
			require.NoError(t, s.CreateProject(ctx, p))
			require.NotEmpty(t, p.ID)

			got, err := s.GetProject(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, StatusCreating, got.Status)
			assert.Empty(t, got.CurrentVersionID)
			assert.Nil(t, got.Sandbox)

			require.NoError(t, s.SetStatus(ctx, p.ID, StatusReady))
			h := &sandbox.Handle{ID: "sb-1", Port: 5173, Address: "http://host:5173"}
			require.NoError(t, s.SetSandbox(ctx, p.ID, h))

			got, err = s.GetProject(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, StatusReady, got.Status)
			require.NotNil(t, got.Sandbox)
			assert.Equal(t, *h, *got.Sandbox)
		})
	}
}

func TestVersionsAreAppendOnly(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := &Project{Name: "n", Prompt: "p"}
			require.NoError(t, s.CreateProject(ctx, p))

			v1 := &Version{ProjectID: p.ID, Files: files.FileSet{"src/App.jsx": "one"}, Prompt: "p", BuildPassed: true}
			require.NoError(t, s.CreateVersion(ctx, v1))
			v2 := &Version{ProjectID: p.ID, Files: files.FileSet{"src/App.jsx": "two"}, Prompt: "edit"}
			require.NoError(t, s.CreateVersion(ctx, v2))

			dup := &Version{ID: v1.ID, ProjectID: p.ID}
			assert.ErrorIs(t, s.CreateVersion(ctx, dup), ErrExists)

			require.NoError(t, s.SetCurrentVersion(ctx, p.ID, v2.ID))
			got, err := s.GetProject(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, v2.ID, got.CurrentVersionID)

			current, err := CurrentFiles(ctx, s, got)
			require.NoError(t, err)
			assert.Equal(t, "two", current["src/App.jsx"])

			list, err := s.ListVersions(ctx, p.ID)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, v1.ID, list[0].ID)
			assert.True(t, list[0].BuildPassed)
			assert.False(t, list[1].BuildPassed)
			assert.Equal(t, "one", list[0].Files["src/App.jsx"])
		})
	}
}

func TestReturnedVersionsAreCopies(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := &Project{Name: "n"}
			require.NoError(t, s.CreateProject(ctx, p))
			v := &Version{ProjectID: p.ID, Files: files.FileSet{"a": "1"}}
			require.NoError(t, s.CreateVersion(ctx, v))

			got, err := s.GetVersion(ctx, v.ID)
			require.NoError(t, err)
			got.Files["a"] = "mutated"

			again, err := s.GetVersion(ctx, v.ID)
			require.NoError(t, err)
			assert.Equal(t, "1", again.Files["a"])
		})
	}
}

func TestNotFound(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.GetProject(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.GetVersion(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.ListVersions(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, s.SetStatus(ctx, "missing", StatusFailed), ErrNotFound)
			assert.ErrorIs(t, s.CreateVersion(ctx, &Version{ProjectID: "missing"}), ErrNotFound)

			p := &Project{Name: "n"}
			require.NoError(t, s.CreateProject(ctx, p))
			assert.ErrorIs(t, s.SetCurrentVersion(ctx, p.ID, "missing"), ErrNotFound)
			_, err = CurrentFiles(ctx, s, p)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSQLiteReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.db")
	ctx := context.Background()

	db, err := OpenSQLite(path)
	require.NoError(t, err)
	p := &Project{Name: "n", Sandbox: &sandbox.Handle{ID: "sb", Port: 5174}}
	require.NoError(t, db.CreateProject(ctx, p))
	require.NoError(t, db.Close())

	db, err = OpenSQLite(path)
	require.NoError(t, err)
	defer db.Close()
	got, err := db.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Sandbox)
	assert.Equal(t, 5174, got.Sandbox.Port)
}
