// Package server assembles the PTY broker: configuration, logging, metrics,
// the session broker and the gin router with every endpoint.
//
// Routes:
//   - GET /, GET /ws: terminal sessions over WebSocket (GET / also serves
//     the terminal page to plain requests)
//   - GET /health: liveness and live session count
//   - GET, DELETE /sessions[/:id]: session introspection and termination
//   - GET /metrics: Prometheus exposition
//   - GET /static/*: assets from STATIC_DIR, when set
package server
