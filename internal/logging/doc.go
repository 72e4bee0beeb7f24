// Package logging provides structured logging for sensorlink.
//
// This package wraps a zap logger with package-level helpers so the
// connection core, the CLI and the stub server share one logger without
// passing it around.
//
// # Log Levels
//
//   - Debug: HTTP exchanges, stats snapshots
//   - Info: provisioning, parameter overrides, lifecycle events
//   - Warn: rejected requests, transport failures, skipped override sources
//   - Error: fatal startup problems
//
// # Configuration
//
// Logging is silent until initialized:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// When Initialize is called with an empty level the SENSORLINK_LOG_LEVEL
// environment variable is consulted. Output goes to stderr so that command
// output on stdout stays machine readable.
package logging
