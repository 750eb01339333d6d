// Package config provides 12-factor configuration management for the PTY broker.
//
// Configuration is loaded from environment variables with sensible defaults.
// An optional YAML file can be layered on top, and CLI flags in cmd/server
// override both.
//
// Configuration Sections:
//   - Server: HTTP listener, static assets, allowed CORS origins
//   - Terminal: shell override, initial geometry, session cap, I/O timeouts, spawn breaker
//   - Logging: Log level and output format
//   - RateLimit: Per-IP limits on new terminal connections
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Broker listening on %s\n", cfg.Addr())
//
// Environment Variables:
//   - PORT, HOST, STATIC_DIR, CORS_ORIGINS
//   - TERM_SHELL, TERM_NAME, TERM_COLS, TERM_ROWS, TERM_WORKDIR, MAX_SESSIONS
//   - TERM_READ_BUFFER, TERM_MAX_MESSAGE, TERM_WRITE_TIMEOUT, TERM_KILL_GRACE, TERM_EXIT_FLUSH
//   - TERM_SPAWN_FAILURES, TERM_SPAWN_COOLDOWN
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
