package model

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/mcpmesh/core"
	"github.com/stretchr/testify/assert"
)

func drain(respCh <-chan Response, errCh <-chan error) ([]Response, error) {
	var responses []Response
	for r := range respCh {
		responses = append(responses, r)
	}
	return responses, <-errCh
}

func TestMockModel_ScriptedRounds(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.EnqueueRound(
		core.TextPart{Text: "Looking that up"},
		core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "search", Arguments: `{"q":"x"}`}},
	)

	respCh, errCh := m.Generate(context.Background(), Request{Stream: true})
	responses, err := drain(respCh, errCh)
	assert.NoError(t, err)

	// One partial per text part, then the final response.
	assert.Len(t, responses, 2)
	assert.True(t, responses[0].Partial)
	assert.Equal(t, "Looking that up", responses[0].Content.Text())

	final := responses[1]
	assert.False(t, final.Partial)
	assert.Equal(t, "tool_calls", final.FinishReason)
	calls := final.Content.FunctionCalls()
	assert.Len(t, calls, 1)
	assert.Equal(t, "c1", calls[0].ID)
}

func TestMockModel_ErrorRound(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.EnqueueError(errors.New("provider down"))

	respCh, errCh := m.Generate(context.Background(), Request{})
	responses, err := drain(respCh, errCh)
	assert.Empty(t, responses)
	assert.EqualError(t, err, "provider down")
}

func TestMockModel_EchoFallback(t *testing.T) {
	m := NewMockModel("mock", "mock")

	req := Request{Contents: []core.Content{
		{Role: "user", Parts: []core.Part{core.TextPart{Text: "ping"}}},
	}}
	respCh, errCh := m.Generate(context.Background(), req)
	responses, err := drain(respCh, errCh)
	assert.NoError(t, err)
	assert.Len(t, responses, 1)
	assert.Equal(t, "Mock response to: ping", responses[0].Content.Text())
	assert.Equal(t, "stop", responses[0].FinishReason)
}
