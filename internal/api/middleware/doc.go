// Package middleware provides the HTTP middleware for the PTY broker.
//
// Middleware stack includes:
//   - CORS: Cross-origin resource sharing with configurable origins
//   - RateLimit: Per-IP token bucket limiting of new terminal connections
//   - RequestID: Request correlation IDs (X-Request-ID)
//   - Logger: One structured zap entry per request
//
// Rate Limiting:
//   - Per-IP tracking with idle eviction
//   - Token bucket algorithm
//   - Applied to the upgrade endpoints only; input inside a session is
//     never limited
//
// Example Usage:
//
//	router.Use(middleware.RequestID(), middleware.Logger(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins...)))
//	router.GET("/ws", middleware.RateLimit(middleware.DefaultRateLimitConfig()), wsHandler.HandleConnection)
package middleware
