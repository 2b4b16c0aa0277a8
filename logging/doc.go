// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. Domain helpers cover the hot paths of this module: tool
// execution and model round logging.
package logging
