// Package main is the entry point for the PTY broker.
//
// The broker serves an in-browser terminal: every WebSocket connection gets
// its own shell on a pseudo-terminal, and bytes flow both ways until either
// side goes away.
//
// The server provides:
//   - WebSocket terminal sessions (/ws, or / with an Upgrade header)
//   - The terminal page itself (/)
//   - Session listing and termination (/sessions)
//   - Health and Prometheus metrics (/health, /metrics)
//
// Configuration:
//   - Environment variables (12-factor)
//   - Optional YAML file (-config), which wins over the environment
//   - CLI flags (override both)
//
// Usage:
//
//	# Production mode
//	./server -port 3000
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
//	# With a config file
//	./server -config /etc/ptybroker.yaml
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown; live sessions are closed
package main
