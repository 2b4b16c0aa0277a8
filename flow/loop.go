package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/mcpmesh/core"
	"github.com/hupe1980/mcpmesh/logging"
	"github.com/hupe1980/mcpmesh/model"
)

// Error codes surfaced on terminal error events.
const (
	ErrorCodeModel     = "MODEL_ERROR"
	ErrorCodeMaxRounds = "MAX_ROUNDS_EXCEEDED"
)

// Options configures a Loop.
type Options struct {
	// Instructions are passed to the model on every round.
	Instructions string
	// MaxRounds caps the number of model rounds per chat call. Zero means
	// unbounded, matching the baseline behavior; when set, exceeding the cap
	// produces a terminal error event instead of an endless loop.
	MaxRounds int
	// EventBufferSize sets channel buffering for caller-facing events.
	EventBufferSize int
	// Logger receives round and anomaly diagnostics.
	Logger logging.Logger
}

// Loop drives the turn-by-turn conversation cycle against one backend
// connection. One Loop instance serves one chat invocation at a time; the
// session owns only the connection, so Loop state is re-entrant across calls
// when driven with the same transcript.
type Loop struct {
	model        model.Model
	executor     Executor
	defs         []model.ToolDefinition
	consumer     Consumer
	instructions string
	maxRounds    int
	bufSize      int
	logger       logging.Logger
}

// NewLoop constructs a Loop. The tool definitions are the fixed snapshot of
// the backend the loop will execute against; pass nil for a tool-free loop.
func NewLoop(m model.Model, executor Executor, defs []model.ToolDefinition, consumer Consumer, optFns ...func(o *Options)) *Loop {
	opts := Options{
		EventBufferSize: 100,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Loop{
		model:        m,
		executor:     executor,
		defs:         defs,
		consumer:     consumer,
		instructions: opts.Instructions,
		maxRounds:    opts.MaxRounds,
		bufSize:      opts.EventBufferSize,
		logger:       opts.Logger,
	}
}

// Run launches the loop asynchronously against the given transcript and
// returns a channel of events. The channel is closed when a round produces
// zero tool calls (TurnComplete event) or a terminal error occurs (error
// event). The transcript is mutated in place: round n+1 never begins before
// round n's appends complete.
func (l *Loop) Run(ctx context.Context, sessionKey string, transcript *core.Transcript) <-chan core.Event {
	events := make(chan core.Event, l.bufSize)

	go func() {
		defer close(events)

		emit := func(ev core.Event) {
			select {
			case <-ctx.Done():
			case events <- ev:
			}
		}

		provider := l.model.Info().Provider
		for round := 1; ; round++ {
			if l.maxRounds > 0 && round > l.maxRounds {
				emit(core.NewErrorEvent(sessionKey, ErrorCodeMaxRounds,
					fmt.Sprintf("conversation exceeded %d rounds", l.maxRounds)))
				return
			}

			req := model.Request{
				Instructions: l.instructions,
				Contents:     transcript.Turns(),
				Tools:        l.defs,
				Stream:       l.consumer.Streaming(),
			}

			start := time.Now()
			respCh, errCh := l.model.Generate(ctx, req)
			outcome, err := l.consumer.Consume(ctx, sessionKey, respCh, errCh, emit, l.executor)
			logging.LogModelRound(l.logger, provider, round, time.Since(start), err)

			if err != nil {
				emit(core.NewErrorEvent(sessionKey, ErrorCodeModel, err.Error()))
				return
			}

			appended := transcript.AppendAssistant(outcome.Text, outcome.Calls)

			if len(outcome.Calls) == 0 {
				if !appended {
					// Empty assistant content is an anomaly to surface, not
					// fail on: the caller still gets a completion marker.
					l.logger.Warn("model produced an empty assistant turn", "session_key", sessionKey, "round", round)
					emit(core.NewTurnCompleteEvent(sessionKey, nil))
					return
				}
				last, _ := transcript.Last()
				emit(core.NewTurnCompleteEvent(sessionKey, &last))
				return
			}

			results := outcome.Results
			if results == nil {
				// Incremental mode: the round's text is fully captured, now
				// execute the batch. Each call is independent; a failure is
				// folded into its slot and never aborts the remainder.
				results = make([]core.FunctionResponse, 0, len(outcome.Calls))
				for _, call := range outcome.Calls {
					result := l.executor.Execute(ctx, call)
					emit(core.NewFunctionResponseEvent(sessionKey, result))
					results = append(results, result)
				}
			}
			transcript.AppendToolResults(results)
		}
	}()

	return events
}
