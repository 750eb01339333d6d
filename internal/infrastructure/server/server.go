package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"time"

	httpapi "github.com/GriffinCanCode/ptybroker/internal/api/http"
	"github.com/GriffinCanCode/ptybroker/internal/api/middleware"
	"github.com/GriffinCanCode/ptybroker/internal/api/ws"
	"github.com/GriffinCanCode/ptybroker/internal/infrastructure/config"
	"github.com/GriffinCanCode/ptybroker/internal/infrastructure/logging"
	"github.com/GriffinCanCode/ptybroker/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ptybroker/internal/session"
	"github.com/GriffinCanCode/ptybroker/internal/shell"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	broker     *session.Broker
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Initializing PTY broker",
		zap.String("addr", cfg.Addr()),
		zap.String("shell_override", cfg.Terminal.Shell),
		zap.Int("max_sessions", cfg.Terminal.MaxSessions),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	resolver := shell.NewResolver(runtime.GOOS, shell.WithOverride(cfg.Terminal.Shell))
	if candidate, err := resolver.Resolve(); err != nil {
		// Not fatal: the shell may be installed later, and clients are told.
		logger.Warn("No shell available yet", zap.Error(err))
	} else {
		logger.Info("Shell resolved", zap.String("shell", candidate.Path))
	}

	broker := session.NewBroker(resolver, session.PTYSpawner, session.NewBrokerConfig(cfg.Terminal), logger, metrics)

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins...)))

	// Create handlers
	wsHandler := ws.NewHandler(broker, ws.Config{
		ReadBufferSize: cfg.Terminal.ReadBufferSize,
		WriteTimeout:   cfg.Terminal.WriteTimeout,
		MaxMessageSize: cfg.Terminal.MaxMessageSize,
		AllowedOrigins: cfg.Server.CORSOrigins,
	}, logger)
	handlers := httpapi.NewHandlers(broker, wsHandler)

	// New terminals are rate limited; traffic inside a session is not.
	connect := []gin.HandlerFunc{}
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		connect = append(connect, middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	// Register routes
	router.GET("/", append(connect, handlers.Index)...)
	router.GET("/ws", append(connect, wsHandler.HandleConnection)...)
	router.GET("/health", handlers.Health)

	// Session endpoints
	router.GET("/sessions", handlers.ListSessions)
	router.GET("/sessions/:id", handlers.GetSession)
	router.DELETE("/sessions/:id", handlers.KillSession)

	// Metrics
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.Server.StaticDir != "" {
		router.Static("/static", cfg.Server.StaticDir)
		logger.Info("Serving static assets", zap.String("dir", cfg.Server.StaticDir))
	}

	logger.Info("Server initialized successfully")

	return &Server{
		router: router,
		httpServer: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		broker:  broker,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Broker returns the session broker.
func (s *Server) Broker() *session.Broker {
	return s.broker
}

// Run starts the HTTP server and blocks until it stops. It returns nil
// after a graceful Shutdown.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and closes every live session.
// Hijacked WebSocket connections are not tracked by http.Server, so the
// broker closes them.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	httpErr := s.httpServer.Shutdown(ctx)
	if httpErr != nil {
		s.logger.Error("HTTP server shutdown failed", zap.Error(httpErr))
	}

	brokerErr := s.broker.Shutdown(ctx)
	if brokerErr != nil {
		s.logger.Error("Sessions did not close in time", zap.Error(brokerErr))
	} else {
		s.logger.Info("All sessions closed")
	}

	return errors.Join(httpErr, brokerErr)
}

// Close flushes the logger.
func (s *Server) Close() error {
	_ = s.logger.Sync()
	return nil
}
