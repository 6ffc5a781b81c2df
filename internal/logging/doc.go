// Package logging provides structured logging for neopixel-ctl.
//
// This package wraps a process-wide zap logger with package-level helpers so
// the discovery, pixel and device packages can log without threading a logger
// through every constructor.
//
// # Log Levels
//
//   - Debug: discovery events, per-pixel request outcomes
//   - Info: selection changes, server connections
//   - Warn: browse restarts that failed, dropped presentation clients
//   - Error: startup failures
//
// # Silent Default
//
// Logging is off unless a level is given on the command line (--log-level)
// or through NEOPIXEL_LOG_LEVEL. The pixel path never reports errors to the
// user, so the log is the only place a failed request is visible:
//
//	NEOPIXEL_LOG_LEVEL=debug neopixel-ctl serve
//
// The terminal UI owns stdout, so it logs to a file instead:
//
//	logging.InitializeToFile("debug", "/tmp/neopixel-ctl.log")
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. Initialize and SetLogger
// are meant to be called once at startup (or from a test) before any
// goroutines log.
package logging
