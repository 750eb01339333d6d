package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalURL(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		want    string
		wantErr bool
	}{
		{name: "http", base: "http://localhost:3000", want: "ws://localhost:3000/ws"},
		{name: "https with slash", base: "https://term.example/", want: "wss://term.example/ws"},
		{name: "already ws", base: "ws://localhost:3000/ws", want: "ws://localhost:3000/ws"},
		{name: "prefix path", base: "http://host/broker", want: "ws://host/broker/ws"},
		{name: "query dropped", base: "http://host/?cols=1", want: "ws://host/ws"},
		{name: "bad scheme", base: "ftp://host", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := terminalURL(tt.base)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAPIURL(t *testing.T) {
	got, err := apiURL("wss://term.example/ws", "/sessions")
	require.NoError(t, err)
	assert.Equal(t, "https://term.example/sessions", got)

	got, err = apiURL("http://localhost:3000", "/sessions/sess_1")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/sessions/sess_1", got)
}

func TestResizeDirectiveEncoding(t *testing.T) {
	data, err := sonic.Marshal(resizeDirective{Action: "resize", Cols: 120, Rows: 40})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"resize","cols":120,"rows":40}`, string(data))
}

// echoBroker echoes binary frames and closes normally once it sees "exit".
type echoBroker struct {
	mu     sync.Mutex
	kinds  []int
	closed chan struct{}
}

func (b *echoBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	defer close(b.closed)

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		b.mu.Lock()
		b.kinds = append(b.kinds, mt)
		b.mu.Unlock()

		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return
		}
		if strings.Contains(string(data), "exit") {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shell exited with code 0")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}
	}
}

func TestAttachBridgesStdio(t *testing.T) {
	broker := &echoBroker{closed: make(chan struct{})}
	srv := httptest.NewServer(broker)
	defer srv.Close()

	stdinR, stdinW, err := os.Pipe()
	require.NoError(t, err)
	defer stdinR.Close()
	defer stdinW.Close()

	var stdout, stderr bytes.Buffer
	wsURL, err := terminalURL(srv.URL)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- attach(context.Background(), wsURL, stdinR, &stdout, &stderr)
	}()

	_, err = stdinW.Write([]byte("echo hi\n"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, err = stdinW.Write([]byte("exit\n"))
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("attach did not return after the broker closed")
	}

	assert.Equal(t, "echo hi\nexit\n", stdout.String())
	assert.Contains(t, stderr.String(), "shell exited with code 0")

	<-broker.closed
	broker.mu.Lock()
	defer broker.mu.Unlock()
	for _, mt := range broker.kinds {
		assert.Equal(t, websocket.BinaryMessage, mt)
	}
}

func TestAttachReportsAbnormalClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "Too many active sessions, try again later.")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}))
	defer srv.Close()

	stdinR, stdinW, err := os.Pipe()
	require.NoError(t, err)
	defer stdinR.Close()
	defer stdinW.Close()

	wsURL, err := terminalURL(srv.URL)
	require.NoError(t, err)

	err = attach(context.Background(), wsURL, stdinR, &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1013")
}

func TestAttachConnectFailure(t *testing.T) {
	stdinR, stdinW, err := os.Pipe()
	require.NoError(t, err)
	defer stdinR.Close()
	defer stdinW.Close()

	err = attach(context.Background(), "ws://127.0.0.1:1/ws", stdinR, &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect")
}
