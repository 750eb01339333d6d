// Package logging provides structured logging using uber/zap.
//
// Two modes are available:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Session code logs through a child logger that carries the session ID
// and the client's remote address on every entry.
//
// Example Usage:
//
//	logger, err := logging.New(logging.Config{Level: "info"})
//	logger.Info("Server starting", zap.String("addr", cfg.Addr()))
//
//	sessLog := logger.ForSession(sessionID, remote)
//	sessLog.Warn("Transport write failed", zap.Error(err))
package logging
