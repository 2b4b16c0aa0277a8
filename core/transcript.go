package core

import (
	"strings"
	"sync"
)

// Transcript is the ordered turn history passed to and extended by the
// conversation loop. It is safe for concurrent access.
//
// Contract:
//   - A tool turn never appears without an immediately preceding assistant
//     turn that issued at least one function call
//   - Turns returns a defensive copy to avoid external mutation
//   - Appends preserve insertion order; round n+1 of a loop never observes a
//     transcript missing round n's turns.
type Transcript struct {
	mu    sync.RWMutex
	turns []Content
}

// NewTranscript constructs an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{turns: []Content{}}
}

// AppendUser appends a free-text user turn.
func (t *Transcript) AppendUser(text string) {
	t.Append(Content{Role: "user", Parts: []Part{TextPart{Text: text}}})
}

// AppendAssistant builds and appends an assistant turn from accumulated text
// (trimmed; omitted entirely when empty) followed by the function call
// requests in production order. It reports whether a turn was appended.
func (t *Transcript) AppendAssistant(text string, calls []FunctionCall) bool {
	parts := make([]Part, 0, len(calls)+1)
	if trimmed := strings.TrimSpace(text); trimmed != "" {
		parts = append(parts, TextPart{Text: trimmed})
	}
	for _, call := range calls {
		parts = append(parts, FunctionCallPart{FunctionCall: call})
	}
	if len(parts) == 0 {
		return false
	}
	t.Append(Content{Role: "assistant", Parts: parts})
	return true
}

// AppendToolResults appends a tool turn whose results must be ordered
// identically to the requests of the immediately preceding assistant turn.
func (t *Transcript) AppendToolResults(results []FunctionResponse) {
	parts := make([]Part, 0, len(results))
	for _, r := range results {
		parts = append(parts, FunctionResponsePart{FunctionResponse: r})
	}
	t.Append(Content{Role: "tool", Parts: parts})
}

// Append adds an arbitrary turn.
func (t *Transcript) Append(c Content) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns, c)
}

// Turns returns a defensive copy of the full turn slice.
func (t *Transcript) Turns() []Content {
	t.mu.RLock()
	defer t.mu.RUnlock()
	turns := make([]Content, len(t.turns))
	copy(turns, t.turns)
	return turns
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// Last returns the most recent turn and true, or a zero Content and false
// when the transcript is empty.
func (t *Transcript) Last() (Content, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.turns) == 0 {
		return Content{}, false
	}
	return t.turns[len(t.turns)-1], true
}
