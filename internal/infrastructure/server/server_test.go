package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/ptybroker/internal/infrastructure/config"
	"github.com/GriffinCanCode/ptybroker/internal/session"
	"github.com/GriffinCanCode/ptybroker/internal/shared/id"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("pseudo-terminals are not available on windows")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}

	cfg := config.Default()
	cfg.Logging.Level = "error"
	cfg.Terminal.Shell = "/bin/sh"
	cfg.Terminal.WorkDir = t.TempDir()
	cfg.Terminal.KillGrace = 500 * time.Millisecond
	cfg.RateLimit.Enabled = false
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := NewServer(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Broker().Shutdown(ctx)
		ts.Close()
		_ = srv.Close()
	})
	return srv, ts
}

func dial(t *testing.T, baseURL, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(baseURL, "http")+path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads binary frames until the accumulated output contains want.
func readUntil(t *testing.T, conn *websocket.Conn, want string) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var out strings.Builder
	for !strings.Contains(out.String(), want) {
		mt, data, err := conn.ReadMessage()
		require.NoError(t, err, "output so far: %q", out.String())
		assert.Equal(t, websocket.BinaryMessage, mt)
		out.Write(data)
	}
	return out.String()
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp.StatusCode
}

func TestTerminalRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Terminal.WorkDir, "hello.txt"), nil, 0o644))
	_, ts := newTestServer(t, cfg)

	conn := dial(t, ts.URL, "/ws?cols=90&rows=33")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ls\n")))
	readUntil(t, conn, "hello.txt")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("stty size\n")))
	readUntil(t, conn, "33 90")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"resize","cols":100,"rows":40}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("stty size\n")))
	readUntil(t, conn, "40 100")
}

func TestUpgradeOnRoot(t *testing.T) {
	_, ts := newTestServer(t, testConfig(t))

	conn := dial(t, ts.URL, "/")
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("echo root-$((6*7))\n")))
	readUntil(t, conn, "root-42")
}

func TestIndexPage(t *testing.T) {
	_, ts := newTestServer(t, testConfig(t))

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestStaticAssets(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.StaticDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Server.StaticDir, "app.css"), []byte("body{}"), 0o644))
	_, ts := newTestServer(t, cfg)

	resp, err := http.Get(ts.URL + "/static/app.css")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionEndpoints(t *testing.T) {
	srv, ts := newTestServer(t, testConfig(t))

	var health struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &health))
	assert.Equal(t, "ok", health.Status)
	assert.Zero(t, health.Sessions)

	conn := dial(t, ts.URL, "/ws")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("echo ready\n")))
	readUntil(t, conn, "ready")

	var list struct {
		Sessions []session.Info `json:"sessions"`
		Count    int            `json:"count"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/sessions", &list))
	require.Equal(t, 1, list.Count)
	info := list.Sessions[0]
	assert.Equal(t, "/bin/sh", info.Shell)
	assert.Equal(t, 80, info.Cols)
	assert.Equal(t, 30, info.Rows)
	assert.Positive(t, info.Pid)

	var one session.Info
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/sessions/"+info.ID, &one))
	assert.Equal(t, info.ID, one.ID)

	var missing map[string]any
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/sessions/"+id.NewSessionID().String(), &missing))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/sessions/sess_unknown", &missing))
	assert.Equal(t, "invalid session id", missing["error"])

	bad, err := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/not-a-session", nil)
	require.NoError(t, err)
	badResp, err := http.DefaultClient.Do(bad)
	require.NoError(t, err)
	badResp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, badResp.StatusCode)
	assert.Equal(t, 1, srv.Broker().Count(), "a malformed id kills nothing")

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/"+info.ID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
			break
		}
	}
	require.Eventually(t, func() bool {
		getJSON(t, ts.URL+"/health", &health)
		return health.Sessions == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, testConfig(t))

	conn := dial(t, ts.URL, "/ws")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("echo counted\n")))
	readUntil(t, conn, "counted")

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body := new(strings.Builder)
	_, err = io.Copy(body, resp.Body)
	require.NoError(t, err)

	assert.Contains(t, body.String(), "ptybroker_sessions_active 1")
	assert.Contains(t, body.String(), `ptybroker_bytes_total{direction="in"}`)
	assert.Contains(t, body.String(), "go_goroutines")
}

func TestRateLimitedUpgrade(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerSecond = 1
	cfg.RateLimit.Burst = 1
	_, ts := newTestServer(t, cfg)

	dial(t, ts.URL, "/ws")

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Health is never limited.
	var health map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &health))
}

func TestShutdownClosesSessions(t *testing.T) {
	cfg := testConfig(t)
	srv, err := NewServer(cfg)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	conn := dial(t, "http://"+ln.Addr().String(), "/ws")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("echo up\n")))
	readUntil(t, conn, "up")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, <-served)
	assert.Zero(t, srv.Broker().Count())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
			break
		}
	}
}

func TestNewServerRejectsBadLogLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "loud"

	_, err := NewServer(cfg)
	assert.Error(t, err)
}
