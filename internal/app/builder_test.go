package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adorable/internal/config"
	"adorable/internal/events"
	"adorable/internal/store"
)

func TestBuilderInMemorySandbox(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Driver = "memory"
	cfg.Sandbox.Driver = "memory"

	a, err := NewBuilder(cfg).
		WithGateway(&scriptedGateway{steps: []step{call("emit_files", entries("src/App.jsx", "export default function App() {}"))}}).
		Build(context.Background())
	require.NoError(t, err)
	defer a.Close()

	stream := a.Orchestrator.NewStream()
	go a.Orchestrator.Generate(context.Background(), "hello", stream)
	evs := events.Collect(stream)
	assert.Len(t, ofType(evs, events.TypeVersionCreated), 1)
	assert.Empty(t, ofType(evs, events.TypeError))
}

func TestBuilderRequiresCredentials(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Driver = "memory"

	_, err := NewBuilder(cfg).Build(context.Background())
	assert.ErrorIs(t, err, config.ErrMissingAuth)
}

func TestOpenStore(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "versions.db")

	st, err := OpenStore(cfg)
	require.NoError(t, err)
	require.NoError(t, st.CreateProject(context.Background(), &store.Project{Name: "demo"}))
	require.NoError(t, st.Close())

	cfg.Store.Driver = "postgres"
	_, err = OpenStore(cfg)
	assert.ErrorContains(t, err, "unknown store driver")
}
