// Package log provides structured trace logging for service sessions.
//
// It is separate from operational logging (slog): a trace is a complete,
// machine-readable record of what a session asked the daemon to do, which
// replies came back and how its state changed.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	cfg.Trace = log.NewSlogAdapter(slog.Default())
//
//	// For later analysis: write to a binary file
//	cfg.Trace, _ = log.NewFileLogger("/tmp/printer.dlog")
//
//	// Both
//	cfg.Trace = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Every event carries exactly one payload:
//   - Operation: a request sent to the daemon (OperationEvent)
//   - Reply: a reply processed for a reference (ReplyEvent)
//   - State: a session state transition (StateChangeEvent)
//   - Error: a failed request or reply (ErrorEventData)
//
// # File Format
//
// Trace files are CBOR streams with integer map keys. The dnssd-trace CLI
// views, filters and summarises them.
package log
