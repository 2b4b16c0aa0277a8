package testutil

import (
	"github.com/hupe1980/mcpmesh/core"
)

// TranscriptBuilder provides a fluent helper for seeding conversation
// transcripts in tests. Example:
//
//	tr := NewTranscriptBuilder().User("hi").Assistant("hello").User("and now?").Build()
//
// Chain only the turns you need; the builder applies them in order.
type TranscriptBuilder struct {
	turns []func(t *core.Transcript)
}

// NewTranscriptBuilder creates an empty builder.
func NewTranscriptBuilder() *TranscriptBuilder { return &TranscriptBuilder{} }

// User appends a user text turn (chainable).
func (b *TranscriptBuilder) User(text string) *TranscriptBuilder {
	b.turns = append(b.turns, func(t *core.Transcript) { t.AppendUser(text) })
	return b
}

// Assistant appends an assistant text turn (chainable).
func (b *TranscriptBuilder) Assistant(text string) *TranscriptBuilder {
	b.turns = append(b.turns, func(t *core.Transcript) { t.AppendAssistant(text, nil) })
	return b
}

// AssistantCall appends an assistant turn carrying text plus tool call
// requests (chainable).
func (b *TranscriptBuilder) AssistantCall(text string, calls ...core.FunctionCall) *TranscriptBuilder {
	b.turns = append(b.turns, func(t *core.Transcript) { t.AppendAssistant(text, calls) })
	return b
}

// ToolResults appends a tool turn carrying the given results (chainable).
func (b *TranscriptBuilder) ToolResults(results ...core.FunctionResponse) *TranscriptBuilder {
	b.turns = append(b.turns, func(t *core.Transcript) { t.AppendToolResults(results) })
	return b
}

// Build constructs the transcript.
func (b *TranscriptBuilder) Build() *core.Transcript {
	t := core.NewTranscript()
	for _, apply := range b.turns {
		apply(t)
	}
	return t
}

// DrainEvents collects every event from ch until it is closed.
func DrainEvents(ch <-chan core.Event) []core.Event {
	var events []core.Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}
