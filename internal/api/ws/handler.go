package ws

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/GriffinCanCode/ptybroker/internal/infrastructure/logging"
	"github.com/GriffinCanCode/ptybroker/internal/pty"
	"github.com/GriffinCanCode/ptybroker/internal/session"
	"github.com/GriffinCanCode/ptybroker/internal/shell"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config controls the WebSocket endpoint.
type Config struct {
	ReadBufferSize int
	WriteTimeout   time.Duration
	MaxMessageSize int64

	// AllowedOrigins lists browser origins allowed to open a terminal.
	// "*" or an empty list allows any origin.
	AllowedOrigins []string
}

// Handler upgrades requests to WebSocket and hands them to the broker.
type Handler struct {
	broker   *session.Broker
	upgrader websocket.Upgrader
	cfg      Config
	logger   *logging.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(broker *session.Broker, cfg Config, logger *logging.Logger) *Handler {
	h := &Handler{
		broker: broker,
		cfg:    cfg,
		logger: logger.Named("ws"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.ReadBufferSize,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// HandleConnection runs one terminal session over the upgraded connection.
// Optional cols and rows query parameters set the initial geometry.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		h.logger.Warn("WebSocket upgrade failed",
			zap.String("remote", c.ClientIP()),
			zap.Error(err),
		)
		return
	}

	transport := NewConn(conn, h.cfg.WriteTimeout, h.cfg.MaxMessageSize)
	cols, rows := queryInt(c, "cols"), queryInt(c, "rows")

	err = h.broker.Serve(c.Request.Context(), transport, c.ClientIP(), session.WithSize(cols, rows))
	switch {
	case err == nil:
	case errors.Is(err, shell.ErrNoShellAvailable), errors.Is(err, pty.ErrSpawnFailed):
		h.logger.Error("Could not start terminal session", zap.String("remote", c.ClientIP()), zap.Error(err))
	default:
		h.logger.Info("Terminal connection refused", zap.String("remote", c.ClientIP()), zap.Error(err))
	}
}

// IsUpgrade reports whether the request asks for a WebSocket.
func IsUpgrade(c *gin.Context) bool {
	return websocket.IsWebSocketUpgrade(c.Request)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 || slices.Contains(h.cfg.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, origin)
}

func queryInt(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}
