/*
Package session bridges client connections to shells.

A Broker accepts a Transport, resolves a shell, spawns it on a
pseudo-terminal and runs a Session until either side goes away. Sessions
move through three states and never back:

	Active -> Closing -> Closed

Closing is entered on the first of: client disconnect, shell exit, a failed
write in either direction, an administrative Kill, or broker Shutdown.
Teardown then terminates the shell, closes the transport, waits for the
pumps and unregisters the session.

Each session runs two pumps. The input pump reads frames from the client,
decodes them into RawInput or Resize, and is the only goroutine that writes
to or resizes the terminal. The output pump copies terminal output to the
client as binary frames and does not read again until the previous write
completed, so a slow client slows the shell down rather than losing bytes.

Usage:

	broker := session.NewBroker(resolver, session.PTYSpawner, session.NewBrokerConfig(cfg.Terminal), logger, metrics)

	// per connection
	err := broker.Serve(ctx, transport, remoteAddr, session.WithSize(cols, rows))

	// on shutdown
	broker.Shutdown(ctx)
*/
package session
