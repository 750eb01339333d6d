/*
Package pty runs a shell on a pseudo-terminal.

A Process owns the master side of the terminal and the child process. It is
an io.ReadWriter over the master plus geometry control and teardown:

	proc, err := pty.Spawn(pty.SpawnOptions{
		Command:  "/bin/bash",
		Cols:     80,
		Rows:     30,
		Env:      os.Environ(),
		TermName: "xterm-color",
	})
	if err != nil {
		return err // wraps pty.ErrSpawnFailed
	}
	defer proc.Terminate()

On POSIX hosts the shell runs on a creack/pty terminal whose master is
kept in non-blocking mode, and Terminate sends SIGHUP to the shell's
process group and SIGKILL after KillGrace. On Windows the shell runs on a
ConPTY pseudo-console and Terminate kills it.

Read returns io.EOF once the shell has exited and its output is drained,
or as soon as Terminate closes the terminal, even if a process that left
the shell's session still holds the slave open. Linux reports a hung-up
slave as EIO on the master, which is normalised here.

Resize is not safe to call from several goroutines expecting a particular
final size; callers serialise it.
*/
package pty
