// Package tool bridges a backend's advertised tool snapshot into the model
// layer's calling convention and executes individual tool calls against the
// backend connection with consistent error folding.
package tool

import (
	"github.com/hupe1980/mcpmesh/mcp"
	"github.com/hupe1980/mcpmesh/model"
)

// Definitions translates a connection's tool snapshot into the declarative
// form the model expects. The result is immutable by convention; a
// connection's tool set is fixed for its lifetime, so this is computed once
// per connection.
func Definitions(tools []mcp.Tool) []model.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	defs := make([]model.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		}
	}
	return defs
}
