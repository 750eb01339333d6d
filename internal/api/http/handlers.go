package http

import (
	_ "embed"
	"errors"
	"net/http"

	"github.com/GriffinCanCode/ptybroker/internal/api/ws"
	"github.com/GriffinCanCode/ptybroker/internal/session"
	"github.com/GriffinCanCode/ptybroker/internal/shared/id"
	"github.com/gin-gonic/gin"
)

//go:embed static/index.html
var indexPage []byte

// Handlers contains all HTTP handlers
type Handlers struct {
	broker    *session.Broker
	wsHandler *ws.Handler
}

// NewHandlers creates a new handler set
func NewHandlers(broker *session.Broker, wsHandler *ws.Handler) *Handlers {
	return &Handlers{
		broker:    broker,
		wsHandler: wsHandler,
	}
}

// Index serves the terminal page, or a terminal session when the request
// is a WebSocket upgrade.
func (h *Handlers) Index(c *gin.Context) {
	if ws.IsUpgrade(c) {
		h.wsHandler.HandleConnection(c)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexPage)
}

// Health handles health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": h.broker.Count(),
	})
}

// ListSessions lists all live sessions
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions := h.broker.List()

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetSession returns one session
func (h *Handlers) GetSession(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	s, ok := h.broker.Get(sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	c.JSON(http.StatusOK, s.Info())
}

// KillSession terminates a session
func (h *Handlers) KillSession(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	if err := h.broker.Kill(sessionID); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id":     sessionID,
		"status": "closing",
	})
}

// sessionParam reads the :id route parameter, answering 400 if it is not a
// well-formed session ID.
func sessionParam(c *gin.Context) (string, bool) {
	sessionID, err := id.ParseSessionID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return "", false
	}
	return sessionID.String(), true
}
