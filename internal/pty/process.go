package pty

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"
)

var (
	// ErrSpawnFailed is returned when the shell could not be started.
	ErrSpawnFailed = errors.New("failed to spawn shell")
	// ErrWriteFailed is returned when input cannot reach the shell.
	ErrWriteFailed = errors.New("failed to write to terminal")
	// ErrInvalidSize is returned for non-positive or oversized geometry.
	ErrInvalidSize = errors.New("invalid terminal size")
)

// MaxDimension is the largest column or row count a winsize can carry.
const MaxDimension = 65535

const defaultKillGrace = 2 * time.Second

// SpawnOptions describes the process to start on a new pseudo-terminal.
type SpawnOptions struct {
	Command  string
	Args     []string
	Cols     int
	Rows     int
	Dir      string
	Env      []string
	TermName string

	// KillGrace is how long Terminate waits after the hangup signal
	// before forcing the process group down.
	KillGrace time.Duration
}

// terminal is the platform half of a Process: the pseudo-console and the
// shell attached to it.
type terminal interface {
	io.ReadWriteCloser
	setSize(cols, rows int) error
	// wait blocks until the shell exits and returns its exit status.
	wait() int
	// hangup asks the shell and its jobs to exit; kill forces them.
	hangup() error
	kill() error
	pid() int
}

// Process is a shell running on the slave side of a pseudo-terminal.
type Process struct {
	term      terminal
	dir       string
	env       []string
	killGrace time.Duration

	mu   sync.Mutex
	cols int
	rows int

	done     chan struct{}
	exitCode int

	terminateOnce sync.Once
}

// Spawn starts opts.Command attached to a new pseudo-terminal of the
// requested size. TERM is appended to opts.Env.
func Spawn(opts SpawnOptions) (*Process, error) {
	if err := validSize(opts.Cols, opts.Rows); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}

	dir := opts.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
		}
		dir = wd
	}

	env := slices.Clone(opts.Env)
	if opts.TermName != "" {
		env = append(env, "TERM="+opts.TermName)
	}

	term, err := startTerminal(opts, dir, env)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSpawnFailed, opts.Command, err)
	}

	killGrace := opts.KillGrace
	if killGrace <= 0 {
		killGrace = defaultKillGrace
	}

	p := &Process{
		term:      term,
		dir:       dir,
		env:       env,
		killGrace: killGrace,
		cols:      opts.Cols,
		rows:      opts.Rows,
		done:      make(chan struct{}),
		exitCode:  -1,
	}
	go p.wait()

	return p, nil
}

func (p *Process) wait() {
	p.exitCode = p.term.wait()
	close(p.done)
}

// Read reads shell output. It returns io.EOF once the shell and every
// process holding the terminal are gone, or after Terminate.
func (p *Process) Read(b []byte) (int, error) {
	n, err := p.term.Read(b)
	if err != nil && errors.Is(err, os.ErrClosed) {
		err = io.EOF
	}
	return n, err
}

// Write sends input to the shell.
func (p *Process) Write(b []byte) (int, error) {
	if p.Exited() {
		return 0, fmt.Errorf("%w: %w", ErrWriteFailed, os.ErrProcessDone)
	}
	n, err := p.term.Write(b)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return n, nil
}

// Resize applies new terminal geometry. Resizing an exited process is a
// no-op.
func (p *Process) Resize(cols, rows int) error {
	if err := validSize(cols, rows); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Exited() {
		return nil
	}
	if p.cols == cols && p.rows == rows {
		return nil
	}

	if err := p.term.setSize(cols, rows); err != nil {
		return fmt.Errorf("failed to resize terminal: %w", err)
	}
	p.cols, p.rows = cols, rows
	return nil
}

// Size returns the last successfully applied geometry.
func (p *Process) Size() (cols, rows int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cols, p.rows
}

// Terminate hangs up the shell and its jobs, escalating to a kill if the
// shell is still alive after the grace period, then closes the terminal.
// Closing the terminal ends a pending Read even when a detached process
// still holds the slave. Once the shell has been reaped its pid may be
// reused, so nothing is signalled. Calling it more than once is safe.
func (p *Process) Terminate() error {
	var err error
	p.terminateOnce.Do(func() {
		if !p.Exited() {
			if hupErr := p.term.hangup(); hupErr != nil && !errors.Is(hupErr, os.ErrProcessDone) {
				err = hupErr
			}
			select {
			case <-p.done:
			case <-time.After(p.killGrace):
				if p.Exited() {
					break
				}
				if killErr := p.term.kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
					err = killErr
				}
			}
		}
		if closeErr := p.term.Close(); closeErr != nil && err == nil && !errors.Is(closeErr, os.ErrClosed) {
			err = closeErr
		}
	})
	return err
}

// Done is closed once the shell has been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the shell has been reaped.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the shell's exit status, or -1 while it is running or
// if it was killed by a signal.
func (p *Process) ExitCode() int {
	if !p.Exited() {
		return -1
	}
	return p.exitCode
}

// Pid returns the shell's process id.
func (p *Process) Pid() int {
	return p.term.pid()
}

// Dir returns the shell's working directory.
func (p *Process) Dir() string {
	return p.dir
}

// Env returns a copy of the environment the shell started with.
func (p *Process) Env() []string {
	return slices.Clone(p.env)
}

func validSize(cols, rows int) error {
	if cols <= 0 || rows <= 0 || cols > MaxDimension || rows > MaxDimension {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, cols, rows)
	}
	return nil
}
