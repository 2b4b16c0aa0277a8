package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/hupe1980/mcpmesh/core"
	"github.com/hupe1980/mcpmesh/internal/testutil"
	"github.com/hupe1980/mcpmesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct {
	mu       sync.Mutex
	executed []string
	failures map[string]string
}

func (s *stubExecutor) Execute(ctx context.Context, call core.FunctionCall) core.FunctionResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executed = append(s.executed, call.ID)
	if msg, ok := s.failures[call.ID]; ok {
		return core.FunctionResponse{ID: call.ID, Name: call.Name, Error: msg, IsError: true}
	}
	return core.FunctionResponse{ID: call.ID, Name: call.Name, Response: "ok"}
}

func collect(ch <-chan core.Event) []core.Event {
	var events []core.Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func deltaText(events []core.Event) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.IsPartial() && len(ev.GetFunctionCalls()) == 0 {
			b.WriteString(ev.Text())
		}
	}
	return b.String()
}

func consumers() map[string]Consumer {
	return map[string]Consumer{
		"incremental": IncrementalConsumer{},
		"completed":   CompletedConsumer{},
	}
}

func TestLoop_TextOnlySingleRound(t *testing.T) {
	for name, consumer := range consumers() {
		t.Run(name, func(t *testing.T) {
			m := model.NewMockModel("mock", "mock")
			m.EnqueueRound(core.TextPart{Text: "Hello"})

			exec := &stubExecutor{}
			loop := NewLoop(m, exec, nil, consumer)
			transcript := core.NewTranscript()
			transcript.AppendUser("hi")

			events := collect(loop.Run(context.Background(), "s1", transcript))

			assert.Equal(t, "Hello", deltaText(events))
			assert.Empty(t, exec.executed)

			last := events[len(events)-1]
			assert.True(t, last.IsTurnComplete())
			assert.Equal(t, "Hello", last.Text())

			turns := transcript.Turns()
			require.Len(t, turns, 2)
			assert.Equal(t, "assistant", turns[1].Role)
			assert.Empty(t, turns[1].FunctionCalls())
		})
	}
}

func TestLoop_ToolCallThenDone(t *testing.T) {
	for name, consumer := range consumers() {
		t.Run(name, func(t *testing.T) {
			m := model.NewMockModel("mock", "mock")
			m.EnqueueRound(core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "search", Arguments: `{"q":"x"}`}})
			m.EnqueueRound(core.TextPart{Text: "Done"})

			exec := &stubExecutor{}
			loop := NewLoop(m, exec, nil, consumer)
			transcript := core.NewTranscript()
			transcript.AppendUser("find x")

			events := collect(loop.Run(context.Background(), "s1", transcript))

			assert.Equal(t, []string{"c1"}, exec.executed)
			assert.Equal(t, "Done", deltaText(events))

			turns := transcript.Turns()
			require.Len(t, turns, 4) // user, assistant(call), tool(result), assistant(text)
			assert.Equal(t, "assistant", turns[1].Role)
			require.Len(t, turns[1].FunctionCalls(), 1)
			assert.Equal(t, "tool", turns[2].Role)
			results := turns[2].FunctionResponses()
			require.Len(t, results, 1)
			assert.Equal(t, "c1", results[0].ID)
			assert.False(t, results[0].IsError)
			assert.Equal(t, "assistant", turns[3].Role)
			assert.Equal(t, "Done", turns[3].Text())
		})
	}
}

func TestLoop_ToolFailureDoesNotAbort(t *testing.T) {
	for name, consumer := range consumers() {
		t.Run(name, func(t *testing.T) {
			m := model.NewMockModel("mock", "mock")
			m.EnqueueRound(core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "search"}})
			m.EnqueueRound(core.TextPart{Text: "Recovered"})

			exec := &stubExecutor{failures: map[string]string{"c1": "backend exploded"}}
			loop := NewLoop(m, exec, nil, consumer)
			transcript := core.NewTranscript()
			transcript.AppendUser("go")

			events := collect(loop.Run(context.Background(), "s1", transcript))

			turns := transcript.Turns()
			require.Len(t, turns, 4)
			results := turns[2].FunctionResponses()
			require.Len(t, results, 1)
			assert.True(t, results[0].IsError)
			assert.NotEmpty(t, results[0].Error)

			// Loop proceeded to round two instead of aborting.
			last := events[len(events)-1]
			assert.True(t, last.IsTurnComplete())
			assert.Equal(t, "Recovered", last.Text())
		})
	}
}

func TestLoop_ResultOrderMatchesRequests(t *testing.T) {
	for name, consumer := range consumers() {
		t.Run(name, func(t *testing.T) {
			m := model.NewMockModel("mock", "mock")
			m.EnqueueRound(
				core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "alpha"}},
				core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c2", Name: "beta"}},
				core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c3", Name: "gamma"}},
			)
			m.EnqueueRound(core.TextPart{Text: "Done"})

			exec := &stubExecutor{failures: map[string]string{"c2": "boom"}}
			loop := NewLoop(m, exec, nil, consumer)
			transcript := core.NewTranscript()
			transcript.AppendUser("go")

			collect(loop.Run(context.Background(), "s1", transcript))

			assert.Equal(t, []string{"c1", "c2", "c3"}, exec.executed)

			turns := transcript.Turns()
			requests := turns[1].FunctionCalls()
			results := turns[2].FunctionResponses()
			require.Len(t, results, len(requests))
			for i := range requests {
				assert.Equal(t, requests[i].ID, results[i].ID)
			}
			assert.True(t, results[1].IsError)
		})
	}
}

func TestLoop_ModelErrorIsTerminal(t *testing.T) {
	for name, consumer := range consumers() {
		t.Run(name, func(t *testing.T) {
			m := model.NewMockModel("mock", "mock")
			m.EnqueueError(errors.New("provider unavailable"))

			loop := NewLoop(m, &stubExecutor{}, nil, consumer)
			transcript := core.NewTranscript()
			transcript.AppendUser("hi")

			events := collect(loop.Run(context.Background(), "s1", transcript))

			require.NotEmpty(t, events)
			last := events[len(events)-1]
			assert.True(t, last.IsError())
			assert.Equal(t, ErrorCodeModel, *last.ErrorCode)
			assert.Contains(t, *last.ErrorMessage, "provider unavailable")

			// No assistant turn was appended for the failed round.
			assert.Equal(t, 1, transcript.Len())
		})
	}
}

func TestLoop_MaxRoundsGuard(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	for i := 0; i < 5; i++ {
		m.EnqueueRound(core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: core.NewID(), Name: "spin"}})
	}

	loop := NewLoop(m, &stubExecutor{}, nil, IncrementalConsumer{}, func(o *Options) {
		o.MaxRounds = 2
	})
	transcript := core.NewTranscript()
	transcript.AppendUser("loop forever")

	events := collect(loop.Run(context.Background(), "s1", transcript))

	last := events[len(events)-1]
	assert.True(t, last.IsError())
	assert.Equal(t, ErrorCodeMaxRounds, *last.ErrorCode)
}

func TestLoop_EmptyAssistantTurnSurfaced(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.EnqueueRound() // no parts at all

	loop := NewLoop(m, &stubExecutor{}, nil, CompletedConsumer{})
	transcript := core.NewTranscript()
	transcript.AppendUser("hi")

	events := collect(loop.Run(context.Background(), "s1", transcript))

	require.Len(t, events, 1)
	assert.True(t, events[0].IsTurnComplete())
	assert.Nil(t, events[0].Content)
	assert.Equal(t, 1, transcript.Len())
}

func TestLoop_ContinuesSeededConversation(t *testing.T) {
	m := model.NewMockModel("mock", "mock")

	transcript := testutil.NewTranscriptBuilder().
		User("look up the weather").
		AssistantCall("", core.FunctionCall{ID: "c1", Name: "weather", Arguments: `{"city":"Berlin"}`}).
		ToolResults(core.FunctionResponse{ID: "c1", Name: "weather", Response: "sunny"}).
		Assistant("It is sunny in Berlin.").
		User("and tomorrow?").
		Build()

	loop := NewLoop(m, &stubExecutor{}, nil, IncrementalConsumer{})
	events := collect(loop.Run(context.Background(), "s1", transcript))

	// Unscripted mock echoes the latest user turn, proving the loop handed the
	// full accumulated history to the model.
	last := events[len(events)-1]
	assert.True(t, last.IsTurnComplete())
	assert.Equal(t, "Mock response to: and tomorrow?", last.Text())
	assert.Equal(t, 6, transcript.Len())
}

func TestCompletedConsumer_ExecutesInlineInContentOrder(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.EnqueueRound(
		core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "alpha"}},
		core.TextPart{Text: "between"},
		core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c2", Name: "beta"}},
	)
	m.EnqueueRound(core.TextPart{Text: "Done"})

	loop := NewLoop(m, &stubExecutor{}, nil, CompletedConsumer{})
	transcript := core.NewTranscript()
	transcript.AppendUser("go")

	events := collect(loop.Run(context.Background(), "s1", transcript))

	// c1's result must be emitted before the text between the calls, which in
	// turn precedes c2's announcement: execution is inline, not deferred.
	var order []string
	for _, ev := range events {
		switch {
		case len(ev.GetFunctionCalls()) == 1:
			order = append(order, "call:"+ev.GetFunctionCalls()[0].ID)
		case len(ev.GetFunctionResponses()) == 1:
			order = append(order, "result:"+ev.GetFunctionResponses()[0].ID)
		case ev.IsPartial() && ev.Text() == "between":
			order = append(order, "text")
		}
	}
	assert.Equal(t, []string{"call:c1", "result:c1", "text", "call:c2", "result:c2"}, order)
}

func TestIncrementalConsumer_DefersExecutionUntilTextCaptured(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.EnqueueRound(
		core.TextPart{Text: "thinking"},
		core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "alpha"}},
	)
	m.EnqueueRound(core.TextPart{Text: "Done"})

	loop := NewLoop(m, &stubExecutor{}, nil, IncrementalConsumer{})
	transcript := core.NewTranscript()
	transcript.AppendUser("go")

	events := collect(loop.Run(context.Background(), "s1", transcript))

	// The announcement for c1 precedes its result, and the round's text
	// fragment precedes the result as well.
	textIdx, callIdx, resultIdx := -1, -1, -1
	for i, ev := range events {
		switch {
		case ev.IsPartial() && ev.Text() == "thinking":
			textIdx = i
		case len(ev.GetFunctionCalls()) == 1 && ev.GetFunctionCalls()[0].ID == "c1":
			callIdx = i
		case len(ev.GetFunctionResponses()) == 1:
			resultIdx = i
		}
	}
	assert.Greater(t, callIdx, textIdx)
	assert.Greater(t, resultIdx, callIdx)
}
