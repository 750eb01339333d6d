/*
Package monitoring provides Prometheus metrics for the PTY broker.

# Overview

Metrics are registered on a caller-supplied registry so that the server and
each test own an isolated set of collectors.

# Features

- HTTP request metrics (count, latency) labelled by route template
- Live session gauge and per-outcome connection counter
- Session lifetime histogram
- Forwarded byte counters per direction
- WebSocket message counters
- Resize directive counter

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	metrics.SessionOpened()
	defer metrics.SessionClosed(time.Since(start))
*/
package monitoring
