package protocol

import (
	"encoding/json"
	"fmt"
)

// Signal is the relay envelope. From is filled in by the relay backend and
// only used to drop a client's own messages.
type Signal struct {
	Event   Event           `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	From    string          `json:"from,omitempty"`
}

func NewSignal(event Event, payload any) (Signal, error) {
	sig := Signal{Event: event}
	if payload == nil {
		return sig, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Signal{}, fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	sig.Payload = raw
	return sig, nil
}

// Presence builds the presence-join envelope announced by from.
func Presence(from string) Signal {
	return Signal{Event: EventPresenceJoin, From: from}
}

func (s Signal) Decode(v any) error {
	if len(s.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", s.Event)
	}
	if err := json.Unmarshal(s.Payload, v); err != nil {
		return fmt.Errorf("%s: failed to decode payload: %w", s.Event, err)
	}
	return nil
}

// Metadata describes the file about to be streamed.
type Metadata struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime"`
}

// Control is a JSON text frame on the direct channel.
type Control struct {
	Type     ControlType `json:"type"`
	Name     string      `json:"name,omitempty"`
	Size     int64       `json:"size,omitempty"`
	MimeType string      `json:"mime,omitempty"`
}

func (c Control) Metadata() Metadata {
	return Metadata{Name: c.Name, Size: c.Size, MimeType: c.MimeType}
}
