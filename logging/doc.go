// Package logging provides a minimal logging interface and adapters for the bridge.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn,
// Error) that the registry, sessions and engine adapters use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - BridgeLogger with contextual helpers for sessions, tasks and tool calls
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	br := bridge.New(func(o *bridge.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging
