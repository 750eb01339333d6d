package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"golang.org/x/term"
)

type resizeDirective struct {
	Action string `json:"action"`
	Cols   int    `json:"cols"`
	Rows   int    `json:"rows"`
}

// wsWriter serialises writes from the input and resize goroutines.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) write(mt int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(mt, data)
}

func (w *wsWriter) resize(cols, rows int) error {
	data, err := sonic.Marshal(resizeDirective{Action: "resize", Cols: cols, Rows: rows})
	if err != nil {
		return err
	}
	return w.write(websocket.TextMessage, data)
}

// attach bridges stdin/stdout to a broker session until the session ends.
func attach(ctx context.Context, wsURL string, stdin *os.File, stdout, stderr io.Writer) error {
	fd := int(stdin.Fd())
	interactive := term.IsTerminal(fd)

	u, err := url.Parse(wsURL)
	if err != nil {
		return err
	}
	if interactive {
		if cols, rows, err := term.GetSize(fd); err == nil {
			q := u.Query()
			q.Set("cols", strconv.Itoa(cols))
			q.Set("rows", strconv.Itoa(rows))
			u.RawQuery = q.Encode()
		}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}
	defer conn.Close()

	if interactive {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("failed to enter raw mode: %w", err)
		}
		defer term.Restore(fd, oldState)
	}

	w := &wsWriter{conn: conn}

	// Keystrokes go as binary frames so they are never taken for a
	// resize directive.
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := stdin.Read(buf)
			if n > 0 {
				if werr := w.write(websocket.BinaryMessage, buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	if interactive {
		stop := watchResize(func() {
			if cols, rows, err := term.GetSize(fd); err == nil {
				_ = w.resize(cols, rows)
			}
		})
		defer stop()
	}

	done := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				done <- err
				return
			}
			if _, err := stdout.Write(data); err != nil {
				done <- err
				return
			}
		}
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client exiting")
		_ = w.write(websocket.CloseMessage, msg)
		return nil
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			if closeErr.Text != "" {
				fmt.Fprintf(stderr, "\r\n[%s]\r\n", closeErr.Text)
			}
			return nil
		}
		return fmt.Errorf("session closed: %s (code %d)", closeErr.Text, closeErr.Code)
	}
	return err
}
