// Package mcpmesh provides a high-level façade over the session registry and
// conversation loop, enabling rapid construction of tool-augmented chat
// services. Most applications interact with this package by:
//  1. Creating a Mesh via New() with a model and a backend catalog
//  2. Connecting session keys to tool backends (Connect)
//  3. Driving conversation turns asynchronously (Chat) or synchronously (ChatSync)
//
// The façade delegates session lifecycle to session.Registry while keeping
// setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a
// structured logger and tune the idle reclamation interval.
package mcpmesh

import (
	"context"
	"time"

	"github.com/hupe1980/mcpmesh/core"
	"github.com/hupe1980/mcpmesh/flow"
	"github.com/hupe1980/mcpmesh/logging"
	"github.com/hupe1980/mcpmesh/mcp"
	"github.com/hupe1980/mcpmesh/model"
	"github.com/hupe1980/mcpmesh/session"
)

// Options configures the Mesh instance.
type Options struct {
	// Instructions are forwarded to the model on every round.
	Instructions string

	// MaxSessions caps the number of concurrently connected sessions.
	MaxSessions int

	// IdleTimeout is the inactivity threshold after which a session becomes
	// eligible for reclamation.
	IdleTimeout time.Duration

	// SweepInterval enables background idle reclamation when positive. Zero
	// leaves reclamation to explicit Sweep calls.
	SweepInterval time.Duration

	// MaxRounds caps model rounds per chat call. Zero means unbounded.
	MaxRounds int

	// Consumer selects how model output is consumed: streamed incrementally
	// with tool execution deferred to the end of the round, or walked from the
	// completed message with inline execution. Defaults to IncrementalConsumer.
	Consumer flow.Consumer

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Mesh is the high-level façade aggregating the model, the backend catalog and
// the session registry.
type Mesh struct {
	registry *session.Registry
}

// New creates a new Mesh over a model and a catalog of launchable tool
// backends. Unset options fall back to the registry defaults.
func New(m model.Model, catalog mcp.Catalog, optFns ...func(o *Options)) *Mesh {
	opts := Options{
		MaxSessions: 10,
		IdleTimeout: 10 * time.Minute,
		Consumer:    flow.IncrementalConsumer{},
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	registry := session.NewRegistry(m, catalog, func(o *session.Options) {
		o.MaxSessions = opts.MaxSessions
		o.IdleTimeout = opts.IdleTimeout
		o.SweepInterval = opts.SweepInterval
		o.MaxRounds = opts.MaxRounds
		o.Instructions = opts.Instructions
		o.Consumer = opts.Consumer
		o.Logger = opts.Logger
	})

	return &Mesh{registry: registry}
}

// Connect binds the session key to the named backend, launching it if needed.
// Reconnecting to the same backend is an idempotent no-op.
func (m *Mesh) Connect(ctx context.Context, sessionKey, backendID string) error {
	return m.registry.Connect(ctx, sessionKey, backendID)
}

// Disconnect releases the session's backend connection. Unknown keys succeed.
func (m *Mesh) Disconnect(sessionKey string) error {
	return m.registry.Disconnect(sessionKey)
}

// Chat starts an asynchronous conversation turn returning an event channel.
// The channel is closed when the turn completes or a terminal error is
// emitted. Keys without a connected session are served by a stateless
// tool-free fallback.
func (m *Mesh) Chat(ctx context.Context, sessionKey, text string) <-chan core.Event {
	return m.registry.Chat(ctx, sessionKey, text)
}

// ChatSync is a synchronous helper that drains the event channel, accumulates
// events and returns the final assistant text.
func (m *Mesh) ChatSync(ctx context.Context, sessionKey, text string) (string, []core.Event, error) {
	eventsCh := m.Chat(ctx, sessionKey, text)

	var events []core.Event
	var final string
	for {
		select {
		case <-ctx.Done():
			// Context cancelled - return events collected so far
			return final, events, ctx.Err()

		case event, ok := <-eventsCh:
			if !ok {
				return final, events, nil
			}
			events = append(events, event)
			if event.IsError() {
				return final, events, &TurnError{Code: *event.ErrorCode, Message: *event.ErrorMessage}
			}
			if event.IsTurnComplete() {
				final = event.Text()
			}
		}
	}
}

// TurnError is the terminal failure of a chat turn, carrying the machine
// readable code from the error event.
type TurnError struct {
	Code    string
	Message string
}

func (e *TurnError) Error() string { return e.Code + ": " + e.Message }

// SessionStatus returns a snapshot of the session for key, if present.
func (m *Mesh) SessionStatus(sessionKey string) (session.Status, bool) {
	return m.registry.SessionStatus(sessionKey)
}

// Len returns the number of active sessions.
func (m *Mesh) Len() int { return m.registry.Len() }

// Sweep reclaims idle sessions immediately and returns the number removed.
func (m *Mesh) Sweep() int { return m.registry.Sweep() }

// Close stops background reclamation and tears down all sessions.
func (m *Mesh) Close() error { return m.registry.Close() }
