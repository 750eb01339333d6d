package session

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/ptybroker/internal/pty"
	"github.com/GriffinCanCode/ptybroker/internal/shell"
)

var errTransportClosed = errors.New("transport closed")

type frame struct {
	kind FrameKind
	data []byte
}

// fakeTransport records everything the session sends and feeds it frames
// from the test.
type fakeTransport struct {
	in chan frame

	mu     sync.Mutex
	binary bytes.Buffer
	texts  []string
	status CloseStatus
	reason string

	// gate, when set, blocks WriteBinary until a value is received.
	gate chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan frame, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) send(kind FrameKind, data string) {
	f.in <- frame{kind: kind, data: []byte(data)}
}

func (f *fakeTransport) ReadMessage() (FrameKind, []byte, error) {
	select {
	case fr := <-f.in:
		return fr.kind, fr.data, nil
	case <-f.closed:
		return 0, nil, errTransportClosed
	}
}

func (f *fakeTransport) WriteBinary(data []byte) error {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-f.closed:
			return errTransportClosed
		}
	}
	select {
	case <-f.closed:
		return errTransportClosed
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.binary.Write(data)
	return nil
}

func (f *fakeTransport) WriteText(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, string(data))
	return nil
}

func (f *fakeTransport) Close(status CloseStatus, reason string) error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.status = status
		f.reason = reason
		f.mu.Unlock()
		close(f.closed)
	})
	return nil
}

// hangUp simulates the client going away.
func (f *fakeTransport) hangUp() {
	f.closeOnce.Do(func() { close(f.closed) })
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) output() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.binary.String()
}

func (f *fakeTransport) diagnostics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func (f *fakeTransport) closeInfo() (CloseStatus, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.reason
}

// fakeProcess stands in for a shell on a pseudo-terminal.
type fakeProcess struct {
	output chan []byte
	reads  atomic.Int32

	mu      sync.Mutex
	input   bytes.Buffer
	resizes [][2]int
	cols    int
	rows    int

	panicOnRead   bool
	terminateGate chan struct{}

	eofOnce    sync.Once
	eof        chan struct{}
	doneOnce   sync.Once
	done       chan struct{}
	exitCode   atomic.Int32
	terminated atomic.Int32
}

func newFakeProcess(cols, rows int) *fakeProcess {
	p := &fakeProcess{
		output: make(chan []byte, 16),
		cols:   cols,
		rows:   rows,
		eof:    make(chan struct{}),
		done:   make(chan struct{}),
	}
	p.exitCode.Store(-1)
	return p
}

func (p *fakeProcess) Read(b []byte) (int, error) {
	p.reads.Add(1)
	if p.panicOnRead {
		panic("read exploded")
	}
	select {
	case chunk := <-p.output:
		return copy(b, chunk), nil
	default:
	}
	select {
	case chunk := <-p.output:
		return copy(b, chunk), nil
	case <-p.eof:
		return 0, io.EOF
	}
}

func (p *fakeProcess) Write(b []byte) (int, error) {
	select {
	case <-p.done:
		return 0, pty.ErrWriteFailed
	default:
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input.Write(b)
}

func (p *fakeProcess) Resize(cols, rows int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resizes = append(p.resizes, [2]int{cols, rows})
	p.cols, p.rows = cols, rows
	return nil
}

func (p *fakeProcess) Size() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cols, p.rows
}

// exit simulates the shell exiting. drained controls whether reads hit EOF
// or stay blocked as if a background job still held the terminal.
func (p *fakeProcess) exit(code int, drained bool) {
	p.doneOnce.Do(func() {
		p.exitCode.Store(int32(code))
		close(p.done)
	})
	if drained {
		p.eofOnce.Do(func() { close(p.eof) })
	}
}

func (p *fakeProcess) Terminate() error {
	p.terminated.Add(1)
	if p.terminateGate != nil {
		<-p.terminateGate
	}
	p.exit(-1, true)
	return nil
}

func (p *fakeProcess) Done() <-chan struct{} { return p.done }
func (p *fakeProcess) ExitCode() int         { return int(p.exitCode.Load()) }
func (p *fakeProcess) Pid() int              { return 4242 }

func (p *fakeProcess) written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input.String()
}

func (p *fakeProcess) appliedResizes() [][2]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][2]int(nil), p.resizes...)
}

// fakeSpawner hands out fakeProcesses and remembers what it was asked for.
type fakeSpawner struct {
	mu    sync.Mutex
	calls []pty.SpawnOptions
	procs []*fakeProcess
	err   error
}

func (s *fakeSpawner) Spawn(opts pty.SpawnOptions) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, opts)
	if s.err != nil {
		return nil, s.err
	}
	p := newFakeProcess(opts.Cols, opts.Rows)
	s.procs = append(s.procs, p)
	return p, nil
}

func (s *fakeSpawner) spawned() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *fakeSpawner) proc(i int) *fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[i]
}

func (s *fakeSpawner) options(i int) pty.SpawnOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[i]
}

type staticResolver struct {
	candidate shell.Candidate
	err       error
}

func (r staticResolver) Resolve() (shell.Candidate, error) {
	return r.candidate, r.err
}
