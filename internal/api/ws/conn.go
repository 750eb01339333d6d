package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/GriffinCanCode/ptybroker/internal/session"
	"github.com/gorilla/websocket"
)

// maxCloseReason is the most a close frame can carry after its status code.
const maxCloseReason = 123

const closeWriteWait = time.Second

// Conn adapts a gorilla connection to session.Transport.
type Conn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps conn. Inbound messages larger than maxMessage end the
// connection; writes that stall longer than writeTimeout fail.
func NewConn(conn *websocket.Conn, writeTimeout time.Duration, maxMessage int64) *Conn {
	if maxMessage > 0 {
		conn.SetReadLimit(maxMessage)
	}
	return &Conn{conn: conn, writeTimeout: writeTimeout}
}

// ReadMessage returns the next data frame.
func (c *Conn) ReadMessage() (session.FrameKind, []byte, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return 0, nil, err
		}
		switch mt {
		case websocket.TextMessage:
			return session.FrameText, data, nil
		case websocket.BinaryMessage:
			return session.FrameBinary, data, nil
		}
	}
}

// WriteBinary sends terminal output.
func (c *Conn) WriteBinary(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

// WriteText sends a diagnostic line.
func (c *Conn) WriteText(data []byte) error {
	return c.write(websocket.TextMessage, data)
}

func (c *Conn) write(mt int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(mt, data)
}

// Close sends a close frame and closes the underlying connection. It may
// run concurrently with a blocked write, which it unblocks.
func (c *Conn) Close(status session.CloseStatus, reason string) error {
	c.closeOnce.Do(func() {
		if len(reason) > maxCloseReason {
			reason = reason[:maxCloseReason]
		}
		msg := websocket.FormatCloseMessage(closeCode(status), reason)
		err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
		if err != nil && errors.Is(err, websocket.ErrCloseSent) {
			err = nil
		}
		c.closeErr = errors.Join(err, c.conn.Close())
	})
	return c.closeErr
}

func closeCode(status session.CloseStatus) int {
	switch status {
	case session.CloseGoingAway:
		return websocket.CloseGoingAway
	case session.CloseTryAgainLater:
		return websocket.CloseTryAgainLater
	case session.CloseInternalError:
		return websocket.CloseInternalServerErr
	default:
		return websocket.CloseNormalClosure
	}
}
