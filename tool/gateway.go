package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/mcpmesh/core"
	"github.com/hupe1980/mcpmesh/logging"
)

// Caller invokes a single named tool with structured arguments. Implemented
// by *mcp.Conn; narrowed so tests can substitute fakes.
type Caller interface {
	Call(ctx context.Context, name string, args map[string]any) (string, error)
}

// Gateway executes tool calls against one backend connection and normalizes
// every outcome into a well-formed FunctionResponse. It never returns an
// error to its caller: a single tool failure must not abort the conversation
// loop, so failures are folded into the result slot with the IsError flag.
type Gateway struct {
	caller Caller
	logger logging.Logger
}

// NewGateway constructs a Gateway around a backend connection.
func NewGateway(caller Caller, logger logging.Logger) *Gateway {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Gateway{caller: caller, logger: logger}
}

// Execute runs one tool call. Malformed arguments, transport errors and
// remote tool errors all become failure outcomes carrying a human-readable
// summary; success carries the raw result payload untransformed.
func (g *Gateway) Execute(ctx context.Context, call core.FunctionCall) core.FunctionResponse {
	resp := core.FunctionResponse{ID: call.ID, Name: call.Name}

	args, err := parseArguments(call.Arguments)
	if err != nil {
		resp.IsError = true
		resp.Error = fmt.Sprintf("invalid arguments for tool %s: %v", call.Name, err)
		g.logger.Error("tool arguments rejected", "tool", call.Name, "error", err.Error())
		return resp
	}

	start := time.Now()
	result, err := g.caller.Call(ctx, call.Name, args)
	logging.LogToolCall(g.logger, call.Name, time.Since(start), err != nil)

	if err != nil {
		resp.IsError = true
		resp.Error = fmt.Sprintf("tool %s failed: %v", call.Name, err)
		return resp
	}
	resp.Response = result
	return resp
}

// parseArguments decodes the serialized argument payload. Validation against
// the tool's schema is the remote tool's responsibility, not ours.
func parseArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}
