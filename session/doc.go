// Package session manages the lifecycle of tool-backend connections keyed by
// an opaque session identifier. The Registry enforces a fixed concurrent
// session ceiling, reclaims idle sessions through the same teardown path as
// an explicit disconnect, and routes chat calls for unknown keys to a
// stateless tool-free fallback so the absence of a connection never blocks
// basic conversation.
package session
