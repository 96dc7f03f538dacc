package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeMetadata(t *testing.T) {
	text, err := EncodeMetadata(Metadata{Name: "a.txt", Size: 5, MimeType: "text/plain"})
	if err != nil {
		t.Fatalf("EncodeMetadata failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		t.Fatalf("metadata is not JSON: %v", err)
	}
	if raw["type"] != "metadata" {
		t.Errorf("expected type metadata, got %v", raw["type"])
	}
	if raw["name"] != "a.txt" {
		t.Errorf("expected name a.txt, got %v", raw["name"])
	}
	if raw["size"] != float64(5) {
		t.Errorf("expected size 5, got %v", raw["size"])
	}
	if raw["mime"] != "text/plain" {
		t.Errorf("expected mime text/plain, got %v", raw["mime"])
	}
}

func TestEncodeMetadataZeroSize(t *testing.T) {
	text, err := EncodeMetadata(Metadata{Name: "empty.bin", Size: 0})
	if err != nil {
		t.Fatalf("EncodeMetadata failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		t.Fatalf("metadata is not JSON: %v", err)
	}
	size, ok := raw["size"]
	if !ok {
		t.Fatalf("expected size field in %s", text)
	}
	if size != float64(0) {
		t.Errorf("expected size 0, got %v", size)
	}
	if mime, ok := raw["mime"]; !ok || mime != "" {
		t.Errorf("expected empty mime field in %s", text)
	}

	c, err := DecodeControl([]byte(text))
	if err != nil {
		t.Fatalf("DecodeControl failed: %v", err)
	}
	if m := c.Metadata(); m.Name != "empty.bin" || m.Size != 0 {
		t.Errorf("unexpected metadata %+v", m)
	}
}

func TestEncodeMetadataNegativeSize(t *testing.T) {
	if _, err := EncodeMetadata(Metadata{Name: "x", Size: -1}); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeControl(t *testing.T) {
	c, err := DecodeControl([]byte(`{"type":"metadata","name":"empty.bin","size":0,"mime":"application/octet-stream"}`))
	if err != nil {
		t.Fatalf("DecodeControl failed: %v", err)
	}
	if c.Type != ControlMetadata {
		t.Fatalf("expected metadata, got %q", c.Type)
	}
	m := c.Metadata()
	if m.Name != "empty.bin" || m.Size != 0 || m.MimeType != "application/octet-stream" {
		t.Errorf("unexpected metadata %+v", m)
	}

	c, err = DecodeControl([]byte(EncodeComplete()))
	if err != nil {
		t.Fatalf("DecodeControl complete failed: %v", err)
	}
	if c.Type != ControlComplete {
		t.Errorf("expected complete, got %q", c.Type)
	}
}

func TestDecodeControlRejects(t *testing.T) {
	inputs := []string{
		`not json`,
		`{"type":"chunk"}`,
		`{"name":"missing-type"}`,
		`{"type":"metadata","name":"a","size":-4}`,
	}
	for _, in := range inputs {
		if _, err := DecodeControl([]byte(in)); !errors.Is(err, ErrMalformed) {
			t.Errorf("DecodeControl(%q): expected ErrMalformed, got %v", in, err)
		}
	}
}

func TestSignalPayload(t *testing.T) {
	type sdp struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}

	sig, err := NewSignal(EventOffer, sdp{Type: "offer", SDP: "v=0"})
	if err != nil {
		t.Fatalf("NewSignal failed: %v", err)
	}

	data, err := EncodeSignal(sig)
	if err != nil {
		t.Fatalf("EncodeSignal failed: %v", err)
	}

	decoded, err := DecodeSignal(data)
	if err != nil {
		t.Fatalf("DecodeSignal failed: %v", err)
	}
	if decoded.Event != EventOffer {
		t.Errorf("expected offer, got %s", decoded.Event)
	}

	var got sdp
	if err := decoded.Decode(&got); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.SDP != "v=0" {
		t.Errorf("expected sdp v=0, got %q", got.SDP)
	}
}

func TestDecodeSignalUnknownEvent(t *testing.T) {
	if _, err := DecodeSignal([]byte(`{"event":"ready"}`)); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent, got %v", err)
	}
	if _, err := EncodeSignal(Signal{Event: "bogus"}); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestPresenceSignal(t *testing.T) {
	sig := Presence("peer-1")
	if sig.Event != EventPresenceJoin || sig.From != "peer-1" {
		t.Errorf("unexpected presence signal %+v", sig)
	}
	if err := sig.Decode(&struct{}{}); err == nil {
		t.Error("expected error decoding empty payload")
	}
}

func TestValidRoomCode(t *testing.T) {
	valid := []string{"482913", "100000", "999999", "000123"}
	for _, code := range valid {
		if !ValidRoomCode(code) {
			t.Errorf("expected %q to be valid", code)
		}
	}

	invalid := []string{"", "12345", "1234567", "48291a", "ABCD-1234", " 48291"}
	for _, code := range invalid {
		if ValidRoomCode(code) {
			t.Errorf("expected %q to be invalid", code)
		}
	}
}
