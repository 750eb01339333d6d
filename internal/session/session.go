package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/ptybroker/internal/infrastructure/logging"
	"github.com/GriffinCanCode/ptybroker/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

// State is a session's lifecycle state. It only moves forward.
type State int32

const (
	StateActive State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Close reasons sent to the client in the close frame.
const (
	ReasonClientClosed = "client disconnected"
	ReasonShellExited  = "shell exited"
	ReasonShutdown     = "server shutting down"
	ReasonKilled       = "session terminated"
	ReasonWriteFailed  = "terminal write failed"
	ReasonInternal     = "internal error"
)

// Process is the shell side of a session. *pty.Process implements it.
type Process interface {
	io.ReadWriter
	Resize(cols, rows int) error
	Size() (cols, rows int)
	Terminate() error
	Done() <-chan struct{}
	ExitCode() int
	Pid() int
}

// Info is a point-in-time view of a session.
type Info struct {
	ID        string    `json:"id"`
	Remote    string    `json:"remote"`
	Shell     string    `json:"shell"`
	Pid       int       `json:"pid"`
	Cols      int       `json:"cols"`
	Rows      int       `json:"rows"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at"`
	BytesIn   int64     `json:"bytes_in"`
	BytesOut  int64     `json:"bytes_out"`
}

// Session bridges one transport to one shell process.
type Session struct {
	id        string
	remote    string
	shell     string
	startedAt time.Time

	proc      Process
	transport Transport
	logger    *logging.Logger
	metrics   *monitoring.Metrics

	readBufferSize int
	exitFlush      time.Duration
	onClosed       func(*Session)

	state    atomic.Int32
	bytesIn  atomic.Int64
	bytesOut atomic.Int64

	closeOnce   sync.Once
	closing     chan struct{}
	closed      chan struct{}
	closeStatus CloseStatus
	closeReason string

	outputDone chan struct{}
	pumps      sync.WaitGroup
}

type sessionParams struct {
	id             string
	remote         string
	shell          string
	proc           Process
	transport      Transport
	logger         *logging.Logger
	metrics        *monitoring.Metrics
	readBufferSize int
	exitFlush      time.Duration
	onClosed       func(*Session)
}

func newSession(p sessionParams) *Session {
	return &Session{
		id:             p.id,
		remote:         p.remote,
		shell:          p.shell,
		startedAt:      time.Now(),
		proc:           p.proc,
		transport:      p.transport,
		logger:         p.logger,
		metrics:        p.metrics,
		readBufferSize: p.readBufferSize,
		exitFlush:      p.exitFlush,
		onClosed:       p.onClosed,
		closing:        make(chan struct{}),
		closed:         make(chan struct{}),
		outputDone:     make(chan struct{}),
	}
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed once the session reaches StateClosed.
func (s *Session) Done() <-chan struct{} { return s.closed }

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	cols, rows := s.proc.Size()
	return Info{
		ID:        s.id,
		Remote:    s.remote,
		Shell:     s.shell,
		Pid:       s.proc.Pid(),
		Cols:      cols,
		Rows:      rows,
		State:     s.State().String(),
		StartedAt: s.startedAt,
		BytesIn:   s.bytesIn.Load(),
		BytesOut:  s.bytesOut.Load(),
	}
}

// Close moves the session to StateClosing. Teardown runs on the goroutine
// inside Run. Only the first call has an effect.
func (s *Session) Close(status CloseStatus, reason string) {
	s.closeOnce.Do(func() {
		s.closeStatus = status
		s.closeReason = reason
		s.state.Store(int32(StateClosing))
		close(s.closing)
	})
}

// Run forwards bytes until either side goes away, then tears the session
// down. It returns once the session is closed.
func (s *Session) Run(ctx context.Context) {
	s.logger.Info("Session started",
		zap.String("shell", s.shell),
		zap.Int("pid", s.proc.Pid()),
	)

	s.pumps.Add(3)
	go s.inputPump()
	go s.outputPump()
	go s.watchExit()

	select {
	case <-s.closing:
	case <-ctx.Done():
		s.Close(CloseGoingAway, ReasonShutdown)
	}

	s.teardown()
}

func (s *Session) teardown() {
	if err := s.proc.Terminate(); err != nil {
		s.logger.Warn("Failed to terminate shell", zap.Error(err))
	}
	if err := s.transport.Close(s.closeStatus, s.closeReason); err != nil {
		s.logger.Debug("Transport close failed", zap.Error(err))
	}
	s.pumps.Wait()

	s.state.Store(int32(StateClosed))
	if s.onClosed != nil {
		s.onClosed(s)
	}

	lifetime := time.Since(s.startedAt)
	s.metrics.SessionClosed(lifetime)
	s.logger.Info("Session closed",
		zap.String("reason", s.closeReason),
		zap.Int("exit_code", s.proc.ExitCode()),
		zap.Duration("duration", lifetime),
		zap.Int64("bytes_in", s.bytesIn.Load()),
		zap.Int64("bytes_out", s.bytesOut.Load()),
	)
	close(s.closed)
}

// inputPump is the only goroutine that writes to or resizes the shell.
func (s *Session) inputPump() {
	defer s.pumps.Done()
	defer s.recoverPump("input")

	for {
		kind, data, err := s.transport.ReadMessage()
		if err != nil {
			if s.State() == StateActive {
				s.logger.Debug("Transport read ended", zap.Error(err))
			}
			s.Close(CloseNormal, ReasonClientClosed)
			return
		}

		switch msg := Decode(kind, data).(type) {
		case Resize:
			s.metrics.RecordWSMessage(monitoring.DirectionIn, "resize")
			s.applyResize(msg)
		case RawInput:
			s.metrics.RecordWSMessage(monitoring.DirectionIn, kind.String())
			if err := s.writeInput(msg.Data); err != nil {
				s.logger.Debug("Shell write failed", zap.Error(err))
				s.Close(CloseNormal, ReasonWriteFailed)
				return
			}
		}
	}
}

func (s *Session) writeInput(data []byte) error {
	for len(data) > 0 {
		n, err := s.proc.Write(data)
		s.bytesIn.Add(int64(n))
		s.metrics.RecordBytes(monitoring.DirectionIn, n)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func (s *Session) applyResize(r Resize) {
	if !r.Valid() {
		s.logger.Debug("Ignoring resize with non-positive size",
			zap.Int("cols", r.Cols),
			zap.Int("rows", r.Rows),
		)
		return
	}
	if err := s.proc.Resize(r.Cols, r.Rows); err != nil {
		s.logger.Warn("Resize failed", zap.Int("cols", r.Cols), zap.Int("rows", r.Rows), zap.Error(err))
		return
	}
	s.metrics.RecordResize()
}

// outputPump hands each chunk to the transport before reading the next,
// so a slow client stalls the shell instead of losing output.
func (s *Session) outputPump() {
	defer s.pumps.Done()
	defer close(s.outputDone)
	defer s.recoverPump("output")

	buf := make([]byte, s.readBufferSize)
	for {
		n, err := s.proc.Read(buf)
		if n > 0 {
			if werr := s.transport.WriteBinary(buf[:n]); werr != nil {
				if s.State() == StateActive {
					s.logger.Warn("Transport write failed", zap.Error(werr))
				}
				s.Close(CloseInternalError, ReasonWriteFailed)
				return
			}
			s.bytesOut.Add(int64(n))
			s.metrics.RecordBytes(monitoring.DirectionOut, n)
			s.metrics.RecordWSMessage(monitoring.DirectionOut, FrameBinary.String())
		}
		if errors.Is(err, io.EOF) {
			// watchExit reports the exit status.
			return
		}
		if err != nil {
			if s.State() == StateActive {
				s.logger.Warn("Shell read failed", zap.Error(err))
			}
			s.Close(CloseInternalError, ReasonInternal)
			return
		}
	}
}

// watchExit closes the session after the shell exits. Output still
// buffered in the terminal gets exitFlush to drain; a background job
// holding the terminal open does not keep the session alive.
func (s *Session) watchExit() {
	defer s.pumps.Done()

	select {
	case <-s.proc.Done():
	case <-s.closing:
		return
	}

	select {
	case <-s.outputDone:
	case <-time.After(s.exitFlush):
		s.logger.Debug("Output flush timed out after shell exit")
	case <-s.closing:
		return
	}
	s.Close(CloseNormal, fmt.Sprintf("%s with code %d", ReasonShellExited, s.proc.ExitCode()))
}

func (s *Session) recoverPump(name string) {
	if r := recover(); r != nil {
		s.logger.Error("Session pump panicked",
			zap.String("pump", name),
			zap.Any("panic", r),
			zap.Stack("stack"),
		)
		s.Close(CloseInternalError, ReasonInternal)
	}
}
