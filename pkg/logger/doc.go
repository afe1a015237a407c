// Package logger provides the structured logging interface used across ttscraper.
//
// It wraps zerolog and supports:
//   - leveled logging with structured fields
//   - colored console output for the CLI and JSON lines for the server
//   - an optional log file
//   - a global logger for command entrypoints
//
// Components receive a Logger through their constructors and fall back to
// GetLogger when given nil:
//
//	log := logger.GetLogger().WithField("component", "scraper")
//	log.InfoWithFields("fetch completed", map[string]interface{}{
//	    "handle": "someone",
//	    "posts":  42,
//	})
//
// Tests use NewTestLogger to capture messages or NewNopLogger to discard them.
package logger
