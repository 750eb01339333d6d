package session

import (
	"encoding/json"

	"github.com/bytedance/sonic"
)

// Message is an inbound client message: RawInput or Resize.
type Message interface {
	isMessage()
}

// RawInput is forwarded to the shell byte for byte.
type RawInput struct {
	Data []byte
}

// Resize changes the terminal geometry.
type Resize struct {
	Cols int
	Rows int
}

func (RawInput) isMessage() {}
func (Resize) isMessage()   {}

// Valid reports whether the directive should reach the terminal.
func (r Resize) Valid() bool {
	return r.Cols > 0 && r.Rows > 0
}

const maxDimension = 65535

// directiveAPI keeps numbers as json.Number so fractional or exponent
// dimensions can be told apart from integers.
var directiveAPI = sonic.Config{UseNumber: true}.Froze()

// Decode classifies one inbound frame. A text frame holding
// {"action":"resize","cols":C,"rows":R} with integer dimensions is a
// Resize; any other text frame, and every binary frame, is RawInput.
// Keys are matched exactly. Dimensions above 65535 are clamped.
func Decode(kind FrameKind, data []byte) Message {
	if kind != FrameText || !maybeObject(data) {
		return RawInput{Data: data}
	}

	var fields map[string]any
	if err := directiveAPI.Unmarshal(data, &fields); err != nil {
		return RawInput{Data: data}
	}
	if action, _ := fields["action"].(string); action != "resize" {
		return RawInput{Data: data}
	}
	cols, ok := dimension(fields["cols"])
	if !ok {
		return RawInput{Data: data}
	}
	rows, ok := dimension(fields["rows"])
	if !ok {
		return RawInput{Data: data}
	}

	return Resize{Cols: cols, Rows: rows}
}

func dimension(v any) (int, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil {
		return 0, false
	}
	switch {
	case i > maxDimension:
		i = maxDimension
	case i < -maxDimension:
		i = -maxDimension
	}
	return int(i), true
}

// maybeObject skips the JSON parser for keystrokes.
func maybeObject(data []byte) bool {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
