package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/mcpmesh/logging"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool describes one callable tool advertised by a backend. Immutable after
// the snapshot is taken; InputSchema is passed opaquely to the model layer.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// transportSession is the subset of the SDK client session the Conn relies
// on. Narrowed for fakes in tests.
type transportSession interface {
	ListTools(ctx context.Context, params *sdkmcp.ListToolsParams) (*sdkmcp.ListToolsResult, error)
	CallTool(ctx context.Context, params *sdkmcp.CallToolParams) (*sdkmcp.CallToolResult, error)
	Close() error
}

// DialOptions configures Dial.
type DialOptions struct {
	// ClientName / ClientVersion identify this client during the MCP handshake.
	ClientName    string
	ClientVersion string
	// Timeout bounds process startup, handshake and the tool listing.
	Timeout time.Duration
	// Logger receives the non-fatal tool listing failure, if any.
	Logger logging.Logger
}

// Conn wraps one live stdio connection to a backend plus the snapshot of its
// advertised tools. It is owned exclusively by at most one session and must
// be released with Close before being discarded; Close is idempotent.
type Conn struct {
	session   transportSession
	tools     []Tool
	closeOnce sync.Once
	closeErr  error
}

// Dial launches the backend described by spec and performs the MCP
// handshake. A handshake or startup failure is fatal. A tool listing failure
// is not: the connection still succeeds with an empty tool snapshot, leaving
// the session usable for plain conversation.
func Dial(ctx context.Context, spec LaunchSpec, optFns ...func(o *DialOptions)) (*Conn, error) {
	opts := DialOptions{
		ClientName:    "mcpmesh",
		ClientVersion: "1.0.0",
		Timeout:       10 * time.Second,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	client := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    opts.ClientName,
		Version: opts.ClientVersion,
	}, nil)

	connectCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	session, err := client.Connect(connectCtx, &sdkmcp.CommandTransport{Command: spec.cmd()}, nil)
	if err != nil {
		return nil, fmt.Errorf("connect %q: %w", spec.Command, err)
	}

	conn := &Conn{session: session}

	listCtx, listCancel := context.WithTimeout(ctx, opts.Timeout)
	defer listCancel()
	if err := conn.snapshotTools(listCtx); err != nil {
		opts.Logger.Warn("tool listing failed, continuing with empty tool set", "command", spec.Command, "error", err.Error())
	}

	return conn, nil
}

// snapshotTools fetches the advertised tool list once. Called at dial time only.
func (c *Conn) snapshotTools(ctx context.Context) error {
	result, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return err
	}
	tools := make([]Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schemaToMap(t.InputSchema),
		})
	}
	c.tools = tools
	return nil
}

// schemaToMap converts the SDK's schema representation into the opaque map
// shape the model layer expects.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return map[string]any{"type": "object"}
	}
	return out
}

// Tools returns a copy of the tool snapshot taken at dial time.
func (c *Conn) Tools() []Tool {
	tools := make([]Tool, len(c.tools))
	copy(tools, c.tools)
	return tools
}

// Call invokes the named tool with the given arguments. The remote signaling
// an application-level tool error surfaces as a regular error carrying the
// remote's text; the raw text payload is returned untransformed on success.
func (c *Conn) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	result, err := c.session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", err
	}

	text := textContent(result.Content)
	if result.IsError {
		if text == "" {
			text = "tool execution failed"
		}
		return "", fmt.Errorf("tool error: %s", text)
	}
	return text, nil
}

func textContent(contents []sdkmcp.Content) string {
	var out strings.Builder
	for _, content := range contents {
		if tc, ok := content.(*sdkmcp.TextContent); ok {
			out.WriteString(tc.Text)
		}
	}
	return out.String()
}

// Close shuts down the backend transport. Safe to call multiple times; only
// the first call releases resources.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.session.Close()
	})
	return c.closeErr
}
