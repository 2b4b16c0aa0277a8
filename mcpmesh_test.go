package mcpmesh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/mcpmesh/core"
	"github.com/hupe1980/mcpmesh/internal/testutil"
	"github.com/hupe1980/mcpmesh/mcp"
	"github.com/hupe1980/mcpmesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMesh(t *testing.T, m model.Model) *Mesh {
	t.Helper()
	mesh := New(m, mcp.Catalog{}, func(o *Options) {
		o.Instructions = "You are a helpful assistant."
	})
	t.Cleanup(func() { _ = mesh.Close() })
	return mesh
}

func TestMesh_ChatWithoutSessionUsesFallback(t *testing.T) {
	mesh := newTestMesh(t, model.NewMockModel("mock", "mock"))

	events := testutil.DrainEvents(mesh.Chat(context.Background(), "nobody", "hi there"))

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.True(t, last.IsTurnComplete())
	assert.Equal(t, "Mock response to: hi there", last.Text())
	assert.Equal(t, 0, mesh.Len())
}

func TestMesh_ChatSyncReturnsFinalText(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.EnqueueRound(core.TextPart{Text: "All done."})
	mesh := newTestMesh(t, m)

	final, events, err := mesh.ChatSync(context.Background(), "nobody", "wrap it up")

	require.NoError(t, err)
	assert.Equal(t, "All done.", final)
	assert.NotEmpty(t, events)
}

func TestMesh_ChatSyncSurfacesTerminalError(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.EnqueueError(errors.New("provider down"))
	mesh := newTestMesh(t, m)

	_, _, err := mesh.ChatSync(context.Background(), "nobody", "hello")

	var turnErr *TurnError
	require.ErrorAs(t, err, &turnErr)
	assert.Equal(t, "MODEL_ERROR", turnErr.Code)
	assert.Contains(t, turnErr.Message, "provider down")
}

func TestMesh_ConnectUnknownBackend(t *testing.T) {
	mesh := newTestMesh(t, model.NewMockModel("mock", "mock"))

	err := mesh.Connect(context.Background(), "s1", "missing")
	assert.Error(t, err)
	assert.Equal(t, 0, mesh.Len())
}

func TestMesh_DisconnectUnknownKeyIsNoOp(t *testing.T) {
	mesh := newTestMesh(t, model.NewMockModel("mock", "mock"))
	assert.NoError(t, mesh.Disconnect("ghost"))
}

func TestMesh_SweepOnEmptyRegistry(t *testing.T) {
	mesh := New(model.NewMockModel("mock", "mock"), mcp.Catalog{}, func(o *Options) {
		o.IdleTimeout = time.Minute
	})
	defer mesh.Close()

	assert.Equal(t, 0, mesh.Sweep())
}
