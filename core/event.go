package core

import (
	"time"

	"github.com/google/uuid"
)

// Event is the unit streamed back to chat callers. After emission it should
// be treated as immutable. It captures:
//
//   - Correlation (ID, SessionKey)
//   - Conversational content (optional role-based Parts)
//   - Streaming state (Partial text deltas vs. assembled turns)
//   - Terminal markers (TurnComplete, ErrorCode / ErrorMessage)
//   - High precision UTC timestamp
//
// Content may be nil for error-only events. A Partial event carries an
// incremental fragment; the assembled assistant turn follows as a
// non-partial event once the round settles.
type Event struct {
	ID           string    `json:"id"`
	SessionKey   string    `json:"session_key,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Content      *Content  `json:"content,omitempty"`
	Partial      *bool     `json:"partial,omitempty"`
	TurnComplete *bool     `json:"turn_complete,omitempty"`
	ErrorCode    *string   `json:"error_code,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
}

// NewEvent creates a bare event bound to a session key. Prefer the helper
// constructors for common semantic categories.
func NewEvent(sessionKey string) Event {
	return Event{
		ID:         NewID(),
		SessionKey: sessionKey,
		Timestamp:  time.Now().UTC(),
	}
}

// NewTextDeltaEvent creates a partial assistant event carrying one streamed
// text fragment. Fragments are delivered in model production order.
func NewTextDeltaEvent(sessionKey, text string) Event {
	e := NewEvent(sessionKey)
	partial := true
	e.Partial = &partial
	e.Content = &Content{Role: "assistant", Parts: []Part{TextPart{Text: text}}}
	return e
}

// NewFunctionCallEvent announces a tool invocation request at the point it
// occurred in the model output, before execution begins.
func NewFunctionCallEvent(sessionKey string, call FunctionCall) Event {
	e := NewEvent(sessionKey)
	partial := true
	e.Partial = &partial
	e.Content = &Content{Role: "assistant", Parts: []Part{FunctionCallPart{FunctionCall: call}}}
	return e
}

// NewFunctionResponseEvent records the completion outcome of a tool call.
func NewFunctionResponseEvent(sessionKey string, resp FunctionResponse) Event {
	e := NewEvent(sessionKey)
	e.Content = &Content{Role: "tool", Parts: []Part{FunctionResponsePart{FunctionResponse: resp}}}
	return e
}

// NewErrorEvent creates a terminal error event. It ends the response stream
// with a visible error marker; no further events follow it.
func NewErrorEvent(sessionKey, code, message string) Event {
	e := NewEvent(sessionKey)
	e.ErrorCode = &code
	e.ErrorMessage = &message
	return e
}

// NewTurnCompleteEvent marks the end of a chat call carrying the final
// assembled assistant content (may be nil when the turn produced no text).
func NewTurnCompleteEvent(sessionKey string, content *Content) Event {
	e := NewEvent(sessionKey)
	complete := true
	e.TurnComplete = &complete
	e.Content = content
	return e
}

// NewID generates a new unique identifier for events and tool calls.
func NewID() string { return uuid.NewString() }

// IsPartial reports whether this event is a streaming fragment that will be
// followed by additional events composing the final assistant turn.
func (e Event) IsPartial() bool { return e.Partial != nil && *e.Partial }

// IsError reports whether this event is a terminal error marker.
func (e Event) IsError() bool { return e.ErrorMessage != nil }

// IsTurnComplete reports whether this event terminates a chat call.
func (e Event) IsTurnComplete() bool { return e.TurnComplete != nil && *e.TurnComplete }

// GetFunctionCalls returns any FunctionCall parts contained within the event
// content preserving their original order.
func (e Event) GetFunctionCalls() []FunctionCall {
	if e.Content == nil {
		return nil
	}
	return e.Content.FunctionCalls()
}

// GetFunctionResponses returns any FunctionResponse parts contained within
// the event content preserving their original order.
func (e Event) GetFunctionResponses() []FunctionResponse {
	if e.Content == nil {
		return nil
	}
	return e.Content.FunctionResponses()
}

// Text returns the concatenated text parts of the event content.
func (e Event) Text() string {
	if e.Content == nil {
		return ""
	}
	return e.Content.Text()
}
