/*
Package http provides the broker's HTTP endpoints.

	GET    /               terminal page (or a session, on WebSocket upgrade)
	GET    /health         liveness and live session count
	GET    /sessions       list live sessions
	GET    /sessions/:id   one session
	DELETE /sessions/:id   terminate a session

Session ids that are not well-formed get 400 before the broker is asked.

The terminal page is embedded in the binary and talks to /ws.
*/
package http
