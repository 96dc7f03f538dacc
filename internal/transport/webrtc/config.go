package webrtc

import (
	"log/slog"
	"time"

	"github.com/pion/webrtc/v3"
)

const (
	DataChannelLabel   = "file-transfer"
	DefaultOpenTimeout = 30 * time.Second
)

var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
}

type Config struct {
	ICEServers []string
	// OpenTimeout bounds the wait for the data channel after the offer or answer is sent.
	OpenTimeout time.Duration
	Logger      *slog.Logger
	// SettingEngine tunes pion; nil uses its defaults.
	SettingEngine *webrtc.SettingEngine
}

func DefaultConfig() Config {
	return Config{
		ICEServers:  DefaultSTUNServers,
		OpenTimeout: DefaultOpenTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = DefaultOpenTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Configuration builds the peer connection configuration.
func (c Config) Configuration() webrtc.Configuration {
	config := webrtc.Configuration{
		ICETransportPolicy: webrtc.ICETransportPolicyAll,
	}
	if len(c.ICEServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{
			{URLs: c.ICEServers},
		}
	}
	return config
}

func DefaultDataChannelConfig() *webrtc.DataChannelInit {
	protocolName := DataChannelLabel
	ordered := true
	return &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: nil,
		Protocol:       &protocolName,
	}
}
