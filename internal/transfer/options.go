// Package transfer frames a single file over a transport.Channel and
// reassembles it on the other side.
package transfer

import (
	"log/slog"
	"time"

	"github.com/rudransh-shrivastava/privosend/internal/protocol"
)

const (
	DefaultLinger = 3 * time.Second

	highWaterChunks = 16
	lowWaterChunks  = 4
	inboundBuffer   = 64
	drainPoll       = 100 * time.Millisecond
)

type Options struct {
	ChunkSize int
	// HighWater is the buffered byte count above which sending pauses.
	HighWater uint64
	// LowWater is the buffered byte count the channel must drop to before sending resumes.
	LowWater uint64
	// Linger bounds how long the sender waits for the receiver to close after completion.
	Linger     time.Duration
	OnProgress func(Progress)
	Logger     *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = protocol.DefaultChunkSize
	}
	if o.HighWater == 0 {
		o.HighWater = uint64(o.ChunkSize) * highWaterChunks
	}
	if o.LowWater == 0 {
		o.LowWater = uint64(o.ChunkSize) * lowWaterChunks
	}
	if o.LowWater > o.HighWater {
		o.LowWater = o.HighWater
	}
	if o.Linger < 0 {
		o.Linger = 0
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
