// Package logging provides structured logging for stationcfg.
//
// This package wraps a global zap logger with convenience functions for
// the logging patterns used by the session core, the bridge and the CLI.
// The logger is silent until Initialize is called with a level or the
// STATIONCFG_LOG_LEVEL environment variable is set, so library callers
// never print unexpectedly.
//
// # Log Levels
//
//   - Debug: attribute payload dumps, section phase transitions, bridge frames
//   - Info: connections, scans, writes sent
//   - Warn: dropped connections, verification mismatches
//   - Error: startup failures
//
// # Structured Logging
//
//	logging.Info("Section written",
//	    zap.String("device_id", dev.ID),
//	    zap.String("namespace", "lorawan"),
//	)
//
// # Specialized Logging
//
//	logging.LogAttribute("read", dev.ID, loc.String(), payload)
//	logging.LogPhase(dev.ID, "lorawan", "validating")
//	logging.LogBridgeFrame(remoteAddr, "sent", websocket.TextMessage, frame)
//
// # Output Format
//
// Logs go to stderr in console format so they never mix with command
// output on stdout:
//
//	2026-10-19T10:30:45.123+0200  DEBUG  Attribute operation  {"op": "read", "locator": "180A/2A41"}
package logging
