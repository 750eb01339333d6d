// Package id generates the identifiers the broker hands out.
//
// IDs are prefixed ULIDs (sess_01J..., req_01J...): sortable by creation
// time and readable in logs. Session IDs double as the handle used by the
// /sessions endpoints, so they must never collide within a process.
package id

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrInvalidID is returned for a string that is not a well-formed ID.
var ErrInvalidID = errors.New("invalid id")

// SessionID identifies a terminal session
type SessionID string

// RequestID identifies an HTTP request
type RequestID string

const (
	SessionPrefix = "sess"
	RequestPrefix = "req"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand. Entropy is
// monotonic so IDs minted in the same millisecond still sort in order.
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewSessionID generates a new session ID
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

func (id SessionID) String() string { return string(id) }
func (id RequestID) String() string { return string(id) }

// ParseSessionID checks that s is a session ID this package could have
// minted: the session prefix followed by a canonical ULID.
func ParseSessionID(s string) (SessionID, error) {
	raw, ok := strings.CutPrefix(s, SessionPrefix+"_")
	if !ok {
		return "", fmt.Errorf("%w: %q lacks the %s_ prefix", ErrInvalidID, s, SessionPrefix)
	}
	if _, err := ulid.ParseStrict(raw); err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidID, s, err)
	}
	return SessionID(s), nil
}
