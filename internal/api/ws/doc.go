/*
Package ws serves terminal sessions over WebSocket.

Each upgraded connection becomes one session. Client frames are handed to
the session unchanged: text frames may carry resize directives, binary
frames are always keystrokes. Terminal output is sent as binary frames.

	GET /ws?cols=120&rows=40

If no session can be started the client receives a text frame such as
"Error: No suitable shell found on the server.\r\n" followed by a close
frame.
*/
package ws
