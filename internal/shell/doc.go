/*
Package shell resolves which command interpreter a terminal session runs.

Windows hosts use the command interpreter named by %ComSpec%, falling back
to cmd.exe. Everything else tries /bin/bash and then /bin/sh. A configured
shell (TERM_SHELL) is tried before the platform list.

# Usage

	resolver := shell.NewResolver(runtime.GOOS, shell.WithOverride(cfg.Terminal.Shell))

	candidate, err := resolver.Resolve()
	if errors.Is(err, shell.ErrNoShellAvailable) {
		// tell the client and hang up
	}
*/
package shell
