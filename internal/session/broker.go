package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/ptybroker/internal/infrastructure/config"
	"github.com/GriffinCanCode/ptybroker/internal/infrastructure/logging"
	"github.com/GriffinCanCode/ptybroker/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ptybroker/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/ptybroker/internal/pty"
	"github.com/GriffinCanCode/ptybroker/internal/shared/id"
	"github.com/GriffinCanCode/ptybroker/internal/shell"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	// ErrTooManySessions is returned when the session cap is reached.
	ErrTooManySessions = errors.New("too many active sessions")
	// ErrSessionNotFound is returned for an unknown session ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrBrokerClosed is returned once Shutdown has started.
	ErrBrokerClosed = errors.New("broker is shut down")
)

// ShellResolver picks the shell for a new session. *shell.Resolver
// implements it.
type ShellResolver interface {
	Resolve() (shell.Candidate, error)
}

// Spawner starts a shell on a pseudo-terminal.
type Spawner interface {
	Spawn(opts pty.SpawnOptions) (Process, error)
}

// SpawnerFunc adapts a function to Spawner.
type SpawnerFunc func(opts pty.SpawnOptions) (Process, error)

// Spawn calls f(opts).
func (f SpawnerFunc) Spawn(opts pty.SpawnOptions) (Process, error) {
	return f(opts)
}

// PTYSpawner spawns real pseudo-terminal processes.
var PTYSpawner = SpawnerFunc(func(opts pty.SpawnOptions) (Process, error) {
	proc, err := pty.Spawn(opts)
	if err != nil {
		return nil, err
	}
	return proc, nil
})

// BrokerConfig holds the parameters every session starts with.
type BrokerConfig struct {
	TermName       string
	Cols           int
	Rows           int
	WorkDir        string
	MaxSessions    int
	ReadBufferSize int
	KillGrace      time.Duration
	ExitFlush      time.Duration

	// SpawnFailures consecutive spawn failures stop further attempts for
	// SpawnCooldown. Zero disables the breaker.
	SpawnFailures int
	SpawnCooldown time.Duration

	// Environ supplies the environment inherited by shells. Defaults to
	// os.Environ.
	Environ func() []string
}

// NewBrokerConfig derives a BrokerConfig from the terminal configuration.
func NewBrokerConfig(cfg config.TerminalConfig) BrokerConfig {
	return BrokerConfig{
		TermName:       cfg.Name,
		Cols:           cfg.Cols,
		Rows:           cfg.Rows,
		WorkDir:        cfg.WorkDir,
		MaxSessions:    cfg.MaxSessions,
		ReadBufferSize: cfg.ReadBufferSize,
		KillGrace:      cfg.KillGrace,
		ExitFlush:      cfg.ExitFlush,
		SpawnFailures:  cfg.SpawnFailures,
		SpawnCooldown:  cfg.SpawnCooldown,
	}
}

func (c *BrokerConfig) applyDefaults() {
	if c.TermName == "" {
		c.TermName = "xterm-color"
	}
	if c.Cols <= 0 {
		c.Cols = 80
	}
	if c.Rows <= 0 {
		c.Rows = 30
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 32 * 1024
	}
	if c.ExitFlush <= 0 {
		c.ExitFlush = time.Second
	}
	if c.Environ == nil {
		c.Environ = os.Environ
	}
}

// Broker creates sessions for incoming connections and tracks the live
// ones.
type Broker struct {
	resolver ShellResolver
	spawner  Spawner
	cfg      BrokerConfig
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	breaker  *resilience.Breaker

	mu       sync.Mutex
	sessions map[string]*Session
	pending  int
	closed   bool
	wg       sync.WaitGroup
}

// NewBroker creates a broker. A nil logger or metrics gets a no-op logger
// or a private registry.
func NewBroker(resolver ShellResolver, spawner Spawner, cfg BrokerConfig, logger *logging.Logger, metrics *monitoring.Metrics) *Broker {
	cfg.applyDefaults()
	if logger == nil {
		logger = logging.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics(prometheus.NewRegistry())
	}
	b := &Broker{
		resolver: resolver,
		spawner:  spawner,
		cfg:      cfg,
		logger:   logger.Named("broker"),
		metrics:  metrics,
		sessions: make(map[string]*Session),
	}
	if cfg.SpawnFailures > 0 {
		b.breaker = resilience.New(resilience.Settings{
			Threshold:     cfg.SpawnFailures,
			Cooldown:      cfg.SpawnCooldown,
			OnStateChange: b.onBreakerChange,
		})
	}
	return b
}

func (b *Broker) onBreakerChange(from, to resilience.State) {
	fields := []zap.Field{zap.Stringer("from", from), zap.Stringer("to", to)}
	if to == resilience.StateOpen {
		b.logger.Error("Shell spawning keeps failing, refusing new sessions",
			append(fields, zap.Duration("cooldown", b.cfg.SpawnCooldown))...)
		return
	}
	b.logger.Info("Spawn breaker changed state", fields...)
}

type serveOptions struct {
	cols int
	rows int
}

// ServeOption adjusts a single connection.
type ServeOption func(*serveOptions)

// WithSize overrides the initial terminal geometry. Non-positive values
// keep the configured default.
func WithSize(cols, rows int) ServeOption {
	return func(o *serveOptions) {
		if cols > 0 && cols <= maxDimension {
			o.cols = cols
		}
		if rows > 0 && rows <= maxDimension {
			o.rows = rows
		}
	}
}

// Serve runs one connection: it picks a shell, spawns it, and bridges it to
// transport until either side goes away. If no session can be started the
// client gets an "Error: ..." line and a close frame, and the cause is
// returned.
func (b *Broker) Serve(ctx context.Context, transport Transport, remote string, opts ...ServeOption) error {
	so := serveOptions{cols: b.cfg.Cols, rows: b.cfg.Rows}
	for _, opt := range opts {
		opt(&so)
	}

	if err := b.reserve(); err != nil {
		result, status := monitoring.ResultRejected, CloseTryAgainLater
		if errors.Is(err, ErrBrokerClosed) {
			status = CloseGoingAway
		}
		b.metrics.SessionRefused(result)
		b.refuse(transport, remote, err, status)
		return err
	}
	defer b.wg.Done()

	candidate, err := b.resolver.Resolve()
	if err != nil {
		b.release()
		b.metrics.SessionRefused(monitoring.ResultNoShell)
		b.refuse(transport, remote, err, CloseInternalError)
		return err
	}

	var env []string
	if candidate.InheritEnv {
		env = b.cfg.Environ()
	}
	proc, err := b.spawn(pty.SpawnOptions{
		Command:   candidate.Path,
		Args:      candidate.Args,
		Cols:      so.cols,
		Rows:      so.rows,
		Dir:       b.cfg.WorkDir,
		Env:       env,
		TermName:  b.cfg.TermName,
		KillGrace: b.cfg.KillGrace,
	})
	if err != nil {
		b.release()
		b.metrics.SessionRefused(monitoring.ResultSpawn)
		b.refuse(transport, remote, err, CloseInternalError)
		return err
	}

	sessionID := id.NewSessionID().String()
	s := newSession(sessionParams{
		id:             sessionID,
		remote:         remote,
		shell:          candidate.Path,
		proc:           proc,
		transport:      transport,
		logger:         b.logger.ForSession(sessionID, remote),
		metrics:        b.metrics,
		readBufferSize: b.cfg.ReadBufferSize,
		exitFlush:      b.cfg.ExitFlush,
		onClosed:       b.unregister,
	})

	if err := b.register(s); err != nil {
		_ = proc.Terminate()
		b.metrics.SessionRefused(monitoring.ResultRejected)
		b.refuse(transport, remote, err, CloseGoingAway)
		return err
	}
	b.metrics.SessionOpened()

	s.Run(ctx)
	return nil
}

func (b *Broker) spawn(opts pty.SpawnOptions) (Process, error) {
	if b.breaker == nil {
		return b.spawner.Spawn(opts)
	}
	if err := b.breaker.Allow(); err != nil {
		return nil, fmt.Errorf("%w: %w", pty.ErrSpawnFailed, err)
	}
	proc, err := b.spawner.Spawn(opts)
	if err != nil {
		b.breaker.Failure()
		return nil, err
	}
	b.breaker.Success()
	return proc, nil
}

// reserve claims a slot under the session cap before any process exists.
func (b *Broker) reserve() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBrokerClosed
	}
	if b.cfg.MaxSessions > 0 && len(b.sessions)+b.pending >= b.cfg.MaxSessions {
		return fmt.Errorf("%w (limit %d)", ErrTooManySessions, b.cfg.MaxSessions)
	}
	b.pending++
	b.wg.Add(1)
	return nil
}

func (b *Broker) release() {
	b.mu.Lock()
	b.pending--
	b.mu.Unlock()
}

func (b *Broker) register(s *Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending--
	if b.closed {
		return ErrBrokerClosed
	}
	b.sessions[s.id] = s
	return nil
}

func (b *Broker) unregister(s *Session) {
	b.mu.Lock()
	delete(b.sessions, s.id)
	b.mu.Unlock()
}

func (b *Broker) refuse(transport Transport, remote string, cause error, status CloseStatus) {
	msg := diagnostic(cause)
	b.logger.Warn("Refused terminal connection",
		zap.String("remote", remote),
		zap.String("reason", msg),
		zap.Error(cause),
	)
	if err := transport.WriteText([]byte("Error: " + msg + "\r\n")); err != nil {
		b.logger.Debug("Failed to send diagnostic", zap.String("remote", remote), zap.Error(err))
	}
	_ = transport.Close(status, strings.TrimSuffix(msg, "."))
}

// diagnostic turns a setup failure into the line shown in the client's
// terminal.
func diagnostic(err error) string {
	switch {
	case errors.Is(err, shell.ErrNoShellAvailable):
		return "No suitable shell found on the server."
	case errors.Is(err, pty.ErrSpawnFailed):
		return "Failed to start a shell on the server."
	case errors.Is(err, ErrTooManySessions):
		return "Too many active sessions, try again later."
	case errors.Is(err, ErrBrokerClosed):
		return "Server is shutting down."
	default:
		return "Internal server error."
	}
}

// Get returns a live session.
func (b *Broker) Get(sessionID string) (*Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionID]
	return s, ok
}

// List returns a snapshot of every live session, oldest first.
func (b *Broker) List() []Info {
	b.mu.Lock()
	sessions := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.mu.Unlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	slices.SortFunc(infos, func(a, b Info) int { return strings.Compare(a.ID, b.ID) })
	return infos
}

// Count returns the number of live sessions.
func (b *Broker) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// Kill closes a live session. It does not wait for teardown to finish.
func (b *Broker) Kill(sessionID string) error {
	s, ok := b.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	s.Close(CloseNormal, ReasonKilled)
	return nil
}

// Shutdown refuses new connections, closes every live session and waits
// for their teardown, or for ctx to expire.
func (b *Broker) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	sessions := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.mu.Unlock()

	b.logger.Info("Closing sessions", zap.Int("count", len(sessions)))
	for _, s := range sessions {
		s.Close(CloseGoingAway, ReasonShutdown)
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sessions to close: %w", ctx.Err())
	}
}
