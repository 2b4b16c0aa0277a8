package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/mcpmesh/core"
	"github.com/hupe1980/mcpmesh/flow"
	"github.com/hupe1980/mcpmesh/logging"
	"github.com/hupe1980/mcpmesh/mcp"
	"github.com/hupe1980/mcpmesh/model"
	"github.com/hupe1980/mcpmesh/tool"
)

// ErrCapacity is returned by Connect when the registry already holds the
// configured maximum of sessions. No resources are allocated in that case.
var ErrCapacity = errors.New("session registry at capacity")

// ErrUnknownBackend is returned by Connect for a backend id missing from the catalog.
var ErrUnknownBackend = errors.New("unknown backend id")

// Conn abstracts the backend connection owned by a session. Implemented by
// *mcp.Conn; narrowed so tests can substitute fakes.
type Conn interface {
	Tools() []mcp.Tool
	Call(ctx context.Context, name string, args map[string]any) (string, error)
	Close() error
}

// DialFunc establishes a connection from a resolved launch specification.
type DialFunc func(ctx context.Context, spec mcp.LaunchSpec) (Conn, error)

// Session binds an opaque key to one exclusively-owned backend connection,
// its fixed tool snapshot and the conversation transcript accumulated across
// chat calls. lastActive is refreshed on every chat call and drives idle
// reclamation.
type Session struct {
	key        string
	backendID  string
	conn       Conn
	defs       []model.ToolDefinition
	transcript *core.Transcript
	lastActive time.Time

	// mu serializes a chat call against disconnect on the same key so the
	// connection is never torn down mid-round.
	mu sync.Mutex
}

// Status is a point-in-time snapshot of one session for introspection.
type Status struct {
	Key        string    `json:"key"`
	BackendID  string    `json:"backend_id"`
	ToolCount  int       `json:"tool_count"`
	LastActive time.Time `json:"last_active"`
}

// Options configures a Registry.
type Options struct {
	// MaxSessions is the fixed concurrent session ceiling. There is no
	// eviction-on-demand: Connect beyond the ceiling fails with ErrCapacity.
	MaxSessions int
	// IdleTimeout is the inactivity threshold after which a session becomes
	// eligible for reclamation by Sweep.
	IdleTimeout time.Duration
	// SweepInterval enables the background sweeper when positive.
	SweepInterval time.Duration
	// MaxRounds caps model rounds per chat call (0 = unbounded).
	MaxRounds int
	// Instructions are forwarded to the model on every round.
	Instructions string
	// Consumer selects the response consumption strategy shared by all chat
	// calls. Defaults to IncrementalConsumer.
	Consumer flow.Consumer
	// Dial overrides the connection factory. Defaults to mcp.Dial.
	Dial DialFunc
	// Logger receives lifecycle and teardown diagnostics.
	Logger logging.Logger
}

// Registry maps opaque session keys to active connection-plus-transcript
// pairs. Public methods are safe for concurrent use.
type Registry struct {
	model        model.Model
	catalog      mcp.Catalog
	maxSessions  int
	idleTimeout  time.Duration
	maxRounds    int
	instructions string
	consumer     flow.Consumer
	dial         DialFunc
	logger       logging.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	done      chan struct{}
	closeOnce sync.Once
}

// NewRegistry constructs a Registry over a backend catalog. The catalog is
// treated as immutable; resolving and launching entries is the registry's
// only use of it.
func NewRegistry(m model.Model, catalog mcp.Catalog, optFns ...func(o *Options)) *Registry {
	opts := Options{
		MaxSessions: 10,
		IdleTimeout: 10 * time.Minute,
		Consumer:    flow.IncrementalConsumer{},
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Dial == nil {
		logger := opts.Logger
		opts.Dial = func(ctx context.Context, spec mcp.LaunchSpec) (Conn, error) {
			return mcp.Dial(ctx, spec, func(o *mcp.DialOptions) { o.Logger = logger })
		}
	}

	r := &Registry{
		model:        m,
		catalog:      catalog,
		maxSessions:  opts.MaxSessions,
		idleTimeout:  opts.IdleTimeout,
		maxRounds:    opts.MaxRounds,
		instructions: opts.Instructions,
		consumer:     opts.Consumer,
		dial:         opts.Dial,
		logger:       opts.Logger,
		sessions:     make(map[string]*Session),
		done:         make(chan struct{}),
	}

	if opts.SweepInterval > 0 {
		go r.sweeper(opts.SweepInterval)
	}

	return r
}

// Connect resolves or establishes the session for key against the given
// backend. Reconnecting an existing session to the same backend is an
// idempotent success that refreshes the activity timestamp without creating
// new resources. Switching backends tears the old connection down first;
// teardown failures are logged, never fatal to the new connect.
func (r *Registry) Connect(ctx context.Context, key, backendID string) error {
	spec, ok := r.catalog.Resolve(backendID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBackend, backendID)
	}

	// A backend switch removes the old session under the registry lock but
	// tears it down outside of it: teardown waits on the session mutex, which
	// an in-flight chat can hold for a whole turn, and that wait must not
	// stall operations on unrelated keys. Re-check after re-acquiring in case
	// the key was re-registered in the meantime.
	r.mu.Lock()
	for {
		existing, ok := r.sessions[key]
		if !ok {
			break
		}
		if existing.backendID == backendID {
			existing.lastActive = time.Now()
			r.mu.Unlock()
			return nil
		}
		delete(r.sessions, key)
		r.mu.Unlock()
		if err := r.teardown(existing); err != nil {
			r.logger.Warn("teardown of replaced session failed", "session_key", key, "backend", existing.backendID, "error", err.Error())
		}
		r.mu.Lock()
	}
	defer r.mu.Unlock()

	if len(r.sessions) >= r.maxSessions {
		return fmt.Errorf("%w (%d sessions)", ErrCapacity, r.maxSessions)
	}

	conn, err := r.dial(ctx, spec)
	if err != nil {
		return fmt.Errorf("connect backend %q: %w", backendID, err)
	}

	r.sessions[key] = &Session{
		key:        key,
		backendID:  backendID,
		conn:       conn,
		defs:       tool.Definitions(conn.Tools()),
		transcript: core.NewTranscript(),
		lastActive: time.Now(),
	}
	r.logger.Info("session connected", "session_key", key, "backend", backendID, "tools", len(r.sessions[key].defs))
	return nil
}

// Disconnect removes the session for key and releases its connection. It is
// idempotent: an unknown key is a success no-op. The session is removed from
// the registry even when the underlying teardown reports an error, so a
// failing backend can never leak a registry slot.
func (r *Registry) Disconnect(key string) error {
	r.mu.Lock()
	s, ok := r.sessions[key]
	if ok {
		delete(r.sessions, key)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	if err := r.teardown(s); err != nil {
		r.logger.Warn("session teardown failed", "session_key", key, "error", err.Error())
		return err
	}
	return nil
}

// teardown releases a session's connection, waiting out any in-flight chat
// call on the same session first.
func (r *Registry) teardown(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Chat drives one conversation turn for key. A key with no session is routed
// to the stateless tool-free fallback rather than failing: chat always
// produces some response. The returned channel is closed once the turn
// completes or a terminal error is emitted.
func (r *Registry) Chat(ctx context.Context, key, text string) <-chan core.Event {
	r.mu.Lock()
	s, ok := r.sessions[key]
	if ok {
		s.lastActive = time.Now()
	}
	r.mu.Unlock()

	if !ok {
		return r.directChat(ctx, key, text)
	}

	out := make(chan core.Event, 100)
	go func() {
		defer close(out)
		s.mu.Lock()
		defer s.mu.Unlock()

		emit := func(ev core.Event) {
			select {
			case <-ctx.Done():
			case out <- ev:
			}
		}

		s.transcript.AppendUser(text)

		gateway := tool.NewGateway(s.conn, r.logger)
		loop := flow.NewLoop(r.model, gateway, s.defs, r.consumer, func(o *flow.Options) {
			o.Instructions = r.instructions
			o.MaxRounds = r.maxRounds
			o.Logger = r.logger
		})
		for ev := range loop.Run(ctx, key, s.transcript) {
			emit(ev)
		}
	}()
	return out
}

// noExecutor rejects tool calls issued without a backend connection. The
// fallback path exposes no tools, so this only fires for models that invent
// calls anyway; the failure is folded per-slot like any other tool error.
type noExecutor struct{}

func (noExecutor) Execute(_ context.Context, call core.FunctionCall) core.FunctionResponse {
	return core.FunctionResponse{
		ID:      call.ID,
		Name:    call.Name,
		Error:   "no tool backend connected",
		IsError: true,
	}
}

// directChat is the stateless single-turn path: one model invocation with no
// tool registry and no loop, its output forwarded verbatim.
func (r *Registry) directChat(ctx context.Context, key, text string) <-chan core.Event {
	out := make(chan core.Event, 100)
	go func() {
		defer close(out)

		emit := func(ev core.Event) {
			select {
			case <-ctx.Done():
			case out <- ev:
			}
		}

		transcript := core.NewTranscript()
		transcript.AppendUser(text)

		req := model.Request{
			Instructions: r.instructions,
			Contents:     transcript.Turns(),
			Stream:       r.consumer.Streaming(),
		}
		respCh, errCh := r.model.Generate(ctx, req)
		outcome, err := r.consumer.Consume(ctx, key, respCh, errCh, emit, noExecutor{})
		if err != nil {
			emit(core.NewErrorEvent(key, flow.ErrorCodeModel, err.Error()))
			return
		}

		var final *core.Content
		if transcript.AppendAssistant(outcome.Text, nil) {
			last, _ := transcript.Last()
			final = &last
		}
		emit(core.NewTurnCompleteEvent(key, final))
	}()
	return out
}

// Sweep tears down and removes every session whose activity timestamp has
// aged past the idle threshold, freeing registry slots. It uses the same
// teardown path as an explicit disconnect and returns the number of sessions
// reclaimed.
func (r *Registry) Sweep() int {
	cutoff := time.Now().Add(-r.idleTimeout)

	r.mu.Lock()
	var expired []*Session
	for key, s := range r.sessions {
		if s.lastActive.Before(cutoff) {
			delete(r.sessions, key)
			expired = append(expired, s)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		if err := r.teardown(s); err != nil {
			r.logger.Warn("idle session teardown failed", "session_key", s.key, "error", err.Error())
		} else {
			r.logger.Info("idle session reclaimed", "session_key", s.key, "backend", s.backendID)
		}
	}
	return len(expired)
}

// sweeper runs Sweep on a fixed interval until Close.
func (r *Registry) sweeper(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// SessionStatus returns a snapshot of the session for key.
func (r *Registry) SessionStatus(key string) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	if !ok {
		return Status{}, false
	}
	return Status{
		Key:        s.key,
		BackendID:  s.backendID,
		ToolCount:  len(s.defs),
		LastActive: s.lastActive,
	}, true
}

// Close stops the background sweeper and tears down all sessions. Safe to
// call multiple times.
func (r *Registry) Close() error {
	var firstErr error
	r.closeOnce.Do(func() {
		close(r.done)

		r.mu.Lock()
		sessions := make([]*Session, 0, len(r.sessions))
		for _, s := range r.sessions {
			sessions = append(sessions, s)
		}
		r.sessions = make(map[string]*Session)
		r.mu.Unlock()

		for _, s := range sessions {
			if err := r.teardown(s); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}
