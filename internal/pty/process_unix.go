//go:build !windows

package pty

import (
	"errors"
	"io"
	"os"
	"os/exec"

	ptylib "github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// ptyTerminal is a shell on a Unix pseudo-terminal. The shell leads its own
// session, so its pid is also the process group hangup and kill signal.
type ptyTerminal struct {
	cmd    *exec.Cmd
	master *os.File
}

func startTerminal(opts SpawnOptions, dir string, env []string) (terminal, error) {
	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = dir
	cmd.Env = env

	master, err := ptylib.StartWithSize(cmd, &ptylib.Winsize{
		Cols: uint16(opts.Cols),
		Rows: uint16(opts.Rows),
	})
	if err != nil {
		return nil, err
	}

	polled, err := pollable(master)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	return &ptyTerminal{cmd: cmd, master: polled}, nil
}

// pollable moves the master onto a non-blocking descriptor owned by the
// runtime poller, so Close interrupts a Read in progress. The master
// returned by StartWithSize has been put in blocking mode by Fd. The
// original file is closed.
func pollable(f *os.File) (*os.File, error) {
	defer f.Close()

	fd, err := unix.FcntlInt(f.Fd(), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return os.NewFile(uintptr(fd), f.Name()), nil
}

func (t *ptyTerminal) Read(b []byte) (int, error) {
	n, err := t.master.Read(b)
	// Linux reports a hung-up slave as EIO.
	if err != nil && errors.Is(err, unix.EIO) {
		err = io.EOF
	}
	return n, err
}

func (t *ptyTerminal) Write(b []byte) (int, error) {
	return t.master.Write(b)
}

func (t *ptyTerminal) Close() error {
	return t.master.Close()
}

// setSize goes through the raw connection; Fd would switch the master back
// to blocking mode.
func (t *ptyTerminal) setSize(cols, rows int) error {
	rc, err := t.master.SyscallConn()
	if err != nil {
		return err
	}
	var ioctlErr error
	if err := rc.Control(func(fd uintptr) {
		ioctlErr = unix.IoctlSetWinsize(int(fd), unix.TIOCSWINSZ, &unix.Winsize{
			Col: uint16(cols),
			Row: uint16(rows),
		})
	}); err != nil {
		return err
	}
	return ioctlErr
}

func (t *ptyTerminal) wait() int {
	_ = t.cmd.Wait()
	return t.cmd.ProcessState.ExitCode()
}

// hangup sends SIGHUP to the whole process group so background jobs the
// shell started go down with it.
func (t *ptyTerminal) hangup() error {
	return t.signalGroup(unix.SIGHUP)
}

func (t *ptyTerminal) kill() error {
	return t.signalGroup(unix.SIGKILL)
}

func (t *ptyTerminal) signalGroup(sig unix.Signal) error {
	if err := unix.Kill(-t.cmd.Process.Pid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	return nil
}

func (t *ptyTerminal) pid() int {
	return t.cmd.Process.Pid
}
