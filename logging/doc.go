// Package logging provides a minimal logging interface and adapters for roundtable.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the engine, gateway and agents use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - RoundtableLogger with run/component context and domain helpers
//   - ZerologAdapter for human friendly console output
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	rt := roundtable.New(model, func(o *roundtable.Options) { o.Logger = logger })
//
// Arguments after the message are key/value pairs in slog style.
package logging
