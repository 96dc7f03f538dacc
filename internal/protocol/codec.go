package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformed    = errors.New("malformed message")
	ErrUnknownEvent = errors.New("unknown signaling event")
)

// metadataFrame always carries name, size and mime, even when empty or zero.
type metadataFrame struct {
	Type ControlType `json:"type"`
	Metadata
}

func EncodeMetadata(m Metadata) (string, error) {
	if m.Size < 0 {
		return "", fmt.Errorf("%w: negative size %d", ErrMalformed, m.Size)
	}
	data, err := json.Marshal(metadataFrame{Type: ControlMetadata, Metadata: m})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func EncodeComplete() string {
	return `{"type":"complete"}`
}

// DecodeControl parses a text frame. Unknown types and negative sizes are rejected.
func DecodeControl(data []byte) (Control, error) {
	var c Control
	if err := json.Unmarshal(data, &c); err != nil {
		return Control{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch c.Type {
	case ControlMetadata:
		if c.Size < 0 {
			return Control{}, fmt.Errorf("%w: negative size %d", ErrMalformed, c.Size)
		}
	case ControlComplete:
	default:
		return Control{}, fmt.Errorf("%w: control type %q", ErrMalformed, c.Type)
	}
	return c, nil
}

func EncodeSignal(s Signal) ([]byte, error) {
	if !s.Event.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, s.Event)
	}
	return json.Marshal(s)
}

func DecodeSignal(data []byte) (Signal, error) {
	var s Signal
	if err := json.Unmarshal(data, &s); err != nil {
		return Signal{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !s.Event.Valid() {
		return Signal{}, fmt.Errorf("%w: %q", ErrUnknownEvent, s.Event)
	}
	return s, nil
}
