package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/mcpmesh/core"
)

// ToolDefinition declaratively exposes a callable tool to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual tool exposed to the model.
// Parameters is a JSON Schema object passed through opaquely from the tool
// backend; this module never validates arguments against it.
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by the conversation loop.
type Request struct {
	Instructions string           `json:"instructions"` // Instructions for the model
	Contents     []core.Content   `json:"contents"`     // Full transcript converted to provider messages
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model.
// Partial responses carry incremental fragments in production order; the
// final response carries the complete assistant content including any
// function call parts.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required to drive generation. Errors sent
// on the error channel are fatal to the in-flight call; both channels are
// closed once the round settles.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockRound scripts one model round for MockModel: the final content parts
// in production order, or a model-level error.
type MockRound struct {
	Parts []core.Part
	Err   error
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Rounds are consumed in FIFO order; once the script is exhausted it echoes
// the last user text.
type MockModel struct {
	info   Info
	mu     sync.Mutex
	rounds []MockRound
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
	}
}

// EnqueueRound scripts the next round's final content parts.
func (m *MockModel) EnqueueRound(parts ...core.Part) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds = append(m.rounds, MockRound{Parts: parts})
}

// EnqueueError scripts a model-level failure for the next round.
func (m *MockModel) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds = append(m.rounds, MockRound{Err: err})
}

func (m *MockModel) nextRound() (MockRound, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rounds) == 0 {
		return MockRound{}, false
	}
	round := m.rounds[0]
	m.rounds = m.rounds[1:]
	return round, true
}

// Generate implements Model; emits optional streaming text chunks then the
// final response carrying all scripted parts.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		round, ok := m.nextRound()
		if !ok {
			round = MockRound{Parts: []core.Part{core.TextPart{Text: m.echo(req)}}}
		}
		if round.Err != nil {
			errCh <- round.Err
			return
		}
		if req.Stream {
			for _, p := range round.Parts {
				tp, ok := p.(core.TextPart)
				if !ok {
					continue
				}
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					Partial: true,
					Content: core.Content{Role: "assistant", Parts: []core.Part{tp}},
				}:
				}
			}
		}
		respCh <- Response{
			Partial:      false,
			Content:      core.Content{Role: "assistant", Parts: round.Parts},
			FinishReason: finishReason(round.Parts),
		}
	}()

	return respCh, errCh
}

func (m *MockModel) echo(req Request) string {
	var inputText string
	if len(req.Contents) > 0 {
		inputText = req.Contents[len(req.Contents)-1].Text()
	}
	return fmt.Sprintf("Mock response to: %s", inputText)
}

func finishReason(parts []core.Part) string {
	for _, p := range parts {
		if _, ok := p.(core.FunctionCallPart); ok {
			return "tool_calls"
		}
	}
	return "stop"
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
