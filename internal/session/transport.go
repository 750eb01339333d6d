package session

// FrameKind distinguishes text from binary transport frames.
type FrameKind int

const (
	FrameText FrameKind = iota + 1
	FrameBinary
)

func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// CloseStatus tells the transport why it is being closed. Transports map it
// to their own close codes.
type CloseStatus int

const (
	// CloseNormal ends a session that finished on its own.
	CloseNormal CloseStatus = iota
	// CloseGoingAway ends a session because the server is stopping.
	CloseGoingAway
	// CloseTryAgainLater refuses a connection over the session cap.
	CloseTryAgainLater
	// CloseInternalError ends a connection the server could not serve.
	CloseInternalError
)

// Transport is one client connection. A session owns its transport
// exclusively: ReadMessage is only called from the input pump and the
// Write methods only from the output pump, except for diagnostics sent
// before the session starts.
type Transport interface {
	// ReadMessage blocks until the next frame arrives.
	ReadMessage() (FrameKind, []byte, error)
	// WriteBinary delivers terminal output. It blocks until the frame is
	// handed to the network or the write deadline expires.
	WriteBinary(data []byte) error
	// WriteText delivers a human-readable diagnostic.
	WriteText(data []byte) error
	// Close sends a close frame carrying reason and releases the
	// connection. It unblocks pending reads and writes and is safe to
	// call more than once.
	Close(status CloseStatus, reason string) error
}
