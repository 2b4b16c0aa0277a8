// Package core provides the foundational domain types used by mcpmesh. It
// defines the core abstractions for:
//
//   - Content / Parts (role-based conversation segments: text, data,
//     function calls and function responses)
//   - Transcripts (the ordered turn history driven and extended by the
//     conversation loop)
//   - Events (the units streamed back to chat callers: text deltas, tool
//     call notices, tool results, turn completion and terminal errors)
//
// The package intentionally keeps implementation concerns (model providers,
// MCP transport, session bookkeeping) out of scope so higher layers can
// depend on a small, stable vocabulary.
package core
