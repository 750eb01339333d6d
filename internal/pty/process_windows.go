//go:build windows

package pty

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/UserExistsError/conpty"
	"golang.org/x/sys/windows"
)

// conptyTerminal is a shell on a Windows pseudo-console.
type conptyTerminal struct {
	cpty *conpty.ConPty
}

func startTerminal(opts SpawnOptions, dir string, env []string) (terminal, error) {
	if !conpty.IsConPtyAvailable() {
		return nil, conpty.ErrConPtyUnsupported
	}

	cmdline := windows.ComposeCommandLine(append([]string{opts.Command}, opts.Args...))
	cpty, err := conpty.Start(cmdline,
		conpty.ConPtyDimensions(opts.Cols, opts.Rows),
		conpty.ConPtyWorkDir(dir),
		conpty.ConPtyEnv(env),
	)
	if err != nil {
		return nil, err
	}
	return &conptyTerminal{cpty: cpty}, nil
}

func (t *conptyTerminal) Read(b []byte) (int, error) {
	n, err := t.cpty.Read(b)
	// The output pipe breaks once the pseudo-console is closed.
	if err != nil && (errors.Is(err, windows.ERROR_BROKEN_PIPE) || errors.Is(err, windows.ERROR_INVALID_HANDLE)) {
		err = io.EOF
	}
	return n, err
}

func (t *conptyTerminal) Write(b []byte) (int, error) {
	return t.cpty.Write(b)
}

// Close closes the pseudo-console, which also ends the processes attached
// to it.
func (t *conptyTerminal) Close() error {
	return t.cpty.Close()
}

func (t *conptyTerminal) setSize(cols, rows int) error {
	return t.cpty.Resize(cols, rows)
}

func (t *conptyTerminal) wait() int {
	code, err := t.cpty.Wait(context.Background())
	if err != nil {
		return -1
	}
	return int(code)
}

// Windows has no process groups to hang up, so both steps kill the shell.
func (t *conptyTerminal) hangup() error {
	return t.kill()
}

func (t *conptyTerminal) kill() error {
	proc, err := os.FindProcess(t.cpty.Pid())
	if err != nil {
		return os.ErrProcessDone
	}
	defer proc.Release()
	return proc.Kill()
}

func (t *conptyTerminal) pid() int {
	return t.cpty.Pid()
}
