// Package mcp provides the Model Context Protocol transport used to reach
// tool backends. A backend is an external process exposing a fixed set of
// callable tools over stdio; Dial launches it from a resolved LaunchSpec,
// snapshots its advertised tools once, and returns an exclusively-owned Conn
// whose tool set is fixed for its lifetime.
package mcp
