package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvent_Constructors(t *testing.T) {
	delta := NewTextDeltaEvent("sess-1", "Hel")
	assert.True(t, delta.IsPartial())
	assert.Equal(t, "Hel", delta.Text())
	assert.Equal(t, "sess-1", delta.SessionKey)
	assert.NotEmpty(t, delta.ID)

	call := NewFunctionCallEvent("sess-1", FunctionCall{ID: "c1", Name: "search", Arguments: `{"q":"x"}`})
	calls := call.GetFunctionCalls()
	assert.Len(t, calls, 1)
	assert.Equal(t, "c1", calls[0].ID)

	resp := NewFunctionResponseEvent("sess-1", FunctionResponse{ID: "c1", Name: "search", Error: "timeout", IsError: true})
	responses := resp.GetFunctionResponses()
	assert.Len(t, responses, 1)
	assert.True(t, responses[0].IsError)

	errEv := NewErrorEvent("sess-1", "MODEL_ERROR", "provider unavailable")
	assert.True(t, errEv.IsError())
	assert.False(t, errEv.IsTurnComplete())

	done := NewTurnCompleteEvent("sess-1", &Content{Role: "assistant", Parts: []Part{TextPart{Text: "Done"}}})
	assert.True(t, done.IsTurnComplete())
	assert.Equal(t, "Done", done.Text())
}

func TestEvent_NilContentAccessors(t *testing.T) {
	e := NewErrorEvent("", "MODEL_ERROR", "boom")
	assert.Nil(t, e.GetFunctionCalls())
	assert.Nil(t, e.GetFunctionResponses())
	assert.Empty(t, e.Text())
}
