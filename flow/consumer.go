package flow

import (
	"context"
	"strings"

	"github.com/hupe1980/mcpmesh/core"
	"github.com/hupe1980/mcpmesh/model"
)

// Executor runs one tool call. It never fails past its boundary; failures
// arrive as FunctionResponse values with the IsError flag set. Implemented
// by *tool.Gateway.
type Executor interface {
	Execute(ctx context.Context, call core.FunctionCall) core.FunctionResponse
}

// RoundOutcome is what one model round produced: the accumulated text, the
// tool call requests in production order and, when the consumer executed
// tools inline, their results (ordered identically to Calls). A nil Results
// with non-empty Calls tells the loop to execute the batch itself.
type RoundOutcome struct {
	Text    string
	Calls   []core.FunctionCall
	Results []core.FunctionResponse
}

// Consumer drains one model round. Implementations classify the response
// stream into caller-visible events plus the RoundOutcome the loop needs for
// transcript construction. A returned error is a model-level failure, fatal
// to the in-flight chat call.
type Consumer interface {
	// Name identifies the strategy in logs.
	Name() string

	// Streaming reports whether the model should be invoked in streaming mode.
	Streaming() bool

	// Consume drains respCh/errCh until both are closed.
	Consume(ctx context.Context, sessionKey string, respCh <-chan model.Response, errCh <-chan error, emit func(core.Event), exec Executor) (RoundOutcome, error)
}

// drainRound reads both channels to completion, forwarding each response to
// handle. The first model error wins and aborts the round.
func drainRound(ctx context.Context, respCh <-chan model.Response, errCh <-chan error, handle func(model.Response)) error {
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			handle(resp)
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// IncrementalConsumer consumes a sequence of discrete events as they arrive:
// text fragments are forwarded to the caller immediately in arrival order,
// tool call announcements are interleaved at the point they occur, and all
// tool execution is deferred until the full round's text has been captured.
type IncrementalConsumer struct{}

// Name implements Consumer.
func (IncrementalConsumer) Name() string { return "incremental" }

// Streaming implements Consumer.
func (IncrementalConsumer) Streaming() bool { return true }

// Consume implements Consumer. The returned outcome never carries Results;
// execution is the loop's job in this mode.
func (IncrementalConsumer) Consume(
	ctx context.Context,
	sessionKey string,
	respCh <-chan model.Response,
	errCh <-chan error,
	emit func(core.Event),
	_ Executor,
) (RoundOutcome, error) {
	var text strings.Builder
	var final *core.Content
	announced := map[string]bool{}
	sawDelta := false

	err := drainRound(ctx, respCh, errCh, func(resp model.Response) {
		if !resp.Partial {
			content := resp.Content
			final = &content
			return
		}
		for _, p := range resp.Content.Parts {
			switch part := p.(type) {
			case core.TextPart:
				if part.Text == "" {
					continue
				}
				sawDelta = true
				text.WriteString(part.Text)
				emit(core.NewTextDeltaEvent(sessionKey, part.Text))
			case core.FunctionCallPart:
				call := part.FunctionCall
				if call.ID == "" || announced[call.ID] {
					continue
				}
				announced[call.ID] = true
				emit(core.NewFunctionCallEvent(sessionKey, call))
			}
		}
	})
	if err != nil {
		return RoundOutcome{}, err
	}

	outcome := RoundOutcome{Text: text.String()}
	if final == nil {
		return outcome, nil
	}

	// A non-streaming producer behind this consumer delivers its text in the
	// final response only; forward it as a single fragment.
	if !sawDelta {
		if t := final.Text(); t != "" {
			outcome.Text = t
			emit(core.NewTextDeltaEvent(sessionKey, t))
		}
	}
	for _, call := range final.FunctionCalls() {
		outcome.Calls = append(outcome.Calls, call)
		if announced[call.ID] {
			continue
		}
		announced[call.ID] = true
		emit(core.NewFunctionCallEvent(sessionKey, call))
	}
	return outcome, nil
}

// CompletedConsumer receives the round as one final message and walks each
// content item in order: text is appended to output, tool calls are routed
// to execution immediately, inline, before moving to the next content item.
type CompletedConsumer struct{}

// Name implements Consumer.
func (CompletedConsumer) Name() string { return "completed" }

// Streaming implements Consumer.
func (CompletedConsumer) Streaming() bool { return false }

// Consume implements Consumer. Results are always populated in call order;
// the loop appends them without executing anything itself.
func (CompletedConsumer) Consume(
	ctx context.Context,
	sessionKey string,
	respCh <-chan model.Response,
	errCh <-chan error,
	emit func(core.Event),
	exec Executor,
) (RoundOutcome, error) {
	var final *core.Content

	err := drainRound(ctx, respCh, errCh, func(resp model.Response) {
		if resp.Partial {
			return // completed mode ignores stray fragments
		}
		content := resp.Content
		final = &content
	})
	if err != nil {
		return RoundOutcome{}, err
	}
	if final == nil {
		return RoundOutcome{}, nil
	}

	var text strings.Builder
	outcome := RoundOutcome{Results: []core.FunctionResponse{}}
	for _, p := range final.Parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text == "" {
				continue
			}
			text.WriteString(part.Text)
			emit(core.NewTextDeltaEvent(sessionKey, part.Text))
		case core.FunctionCallPart:
			call := part.FunctionCall
			emit(core.NewFunctionCallEvent(sessionKey, call))
			result := exec.Execute(ctx, call)
			emit(core.NewFunctionResponseEvent(sessionKey, result))
			outcome.Calls = append(outcome.Calls, call)
			outcome.Results = append(outcome.Results, result)
		}
	}
	outcome.Text = text.String()
	return outcome, nil
}
