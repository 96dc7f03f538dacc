package transfer

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/rudransh-shrivastava/privosend/internal/protocol"
	"github.com/rudransh-shrivastava/privosend/internal/transport"
)

type ReceiverState int

const (
	ReceiverConnected ReceiverState = iota
	ReceiverReceiving
	ReceiverCompleted
	ReceiverFailed
)

func (s ReceiverState) String() string {
	switch s {
	case ReceiverConnected:
		return "connected"
	case ReceiverReceiving:
		return "receiving"
	case ReceiverCompleted:
		return "completed"
	case ReceiverFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Artifact is the reassembled file. Verified is false when the byte count
// did not match the declared size.
type Artifact struct {
	Metadata protocol.Metadata
	Data     []byte
	Verified bool
}

// Receiver reassembles one file from channel frames. Frames after
// completion or failure are ignored.
type Receiver struct {
	mu         sync.Mutex
	state      ReceiverState
	meta       protocol.Metadata
	chunks     [][]byte
	received   int64
	progress   *progressTracker
	onProgress func(Progress)
}

func NewReceiver(onProgress func(Progress)) *Receiver {
	return &Receiver{onProgress: onProgress}
}

func (r *Receiver) State() ReceiverState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Handle applies one frame. It returns the artifact once the completion
// marker has been processed.
func (r *Receiver) Handle(msg transport.Message) (*Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == ReceiverCompleted || r.state == ReceiverFailed {
		return nil, nil
	}

	if !msg.IsString {
		return nil, r.appendChunk(msg.Data)
	}

	c, err := protocol.DecodeControl(msg.Data)
	if err != nil {
		return nil, r.fail(fmt.Errorf("%w: %v", ErrProtocol, err))
	}

	switch c.Type {
	case protocol.ControlMetadata:
		r.begin(c.Metadata())
		return nil, nil
	case protocol.ControlComplete:
		if r.state != ReceiverReceiving {
			return nil, r.fail(fmt.Errorf("%w: completion before metadata", ErrProtocol))
		}
		return r.finish()
	default:
		return nil, r.fail(fmt.Errorf("%w: control type %q", ErrProtocol, c.Type))
	}
}

// HandleClose reports a channel close. Closing before completion is a disconnect.
func (r *Receiver) HandleClose() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case ReceiverCompleted:
		return nil
	case ReceiverFailed:
		return ErrPeerDisconnected
	default:
		return r.fail(ErrPeerDisconnected)
	}
}

// Abort discards buffered data and marks the receiver failed.
func (r *Receiver) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != ReceiverCompleted {
		r.state = ReceiverFailed
	}
	r.chunks = nil
}

// begin starts a transfer. A repeated metadata frame restarts it from zero.
func (r *Receiver) begin(meta protocol.Metadata) {
	r.meta = meta
	r.chunks = nil
	r.received = 0
	r.state = ReceiverReceiving
	r.progress = newProgressTracker(meta.Size, r.onProgress)
	r.progress.update(0)
}

func (r *Receiver) appendChunk(data []byte) error {
	if r.state != ReceiverReceiving {
		return r.fail(fmt.Errorf("%w: chunk before metadata", ErrProtocol))
	}
	chunk := make([]byte, len(data))
	copy(chunk, data)
	r.chunks = append(r.chunks, chunk)
	r.received += int64(len(chunk))
	r.progress.update(r.received)
	return nil
}

func (r *Receiver) finish() (*Artifact, error) {
	var buf bytes.Buffer
	buf.Grow(int(r.received))
	for _, chunk := range r.chunks {
		buf.Write(chunk)
	}
	r.chunks = nil
	r.state = ReceiverCompleted

	art := &Artifact{
		Metadata: r.meta,
		Data:     buf.Bytes(),
		Verified: r.received == r.meta.Size,
	}
	r.progress.finish(r.received)

	if !art.Verified {
		return art, fmt.Errorf("%w: received %d bytes, expected %d", ErrSizeMismatch, r.received, r.meta.Size)
	}
	return art, nil
}

func (r *Receiver) fail(err error) error {
	r.state = ReceiverFailed
	r.chunks = nil
	return err
}

type inbound struct {
	msg    transport.Message
	closed bool
}

// Receive drives a Receiver from ch until the file completes or the
// transfer fails. Message and close callbacks are funnelled into one
// ordered stream so a single goroutine applies every transition.
func Receive(ctx context.Context, ch transport.Channel, opts Options) (*Artifact, error) {
	opts = opts.withDefaults()
	r := NewReceiver(opts.OnProgress)

	events := make(chan inbound, inboundBuffer)
	stop := make(chan struct{})
	defer close(stop)

	push := func(ev inbound) {
		select {
		case events <- ev:
		case <-stop:
		}
	}
	ch.OnMessage(func(m transport.Message) { push(inbound{msg: m}) })
	ch.OnClose(func() { push(inbound{closed: true}) })

	for {
		select {
		case <-ctx.Done():
			r.Abort()
			return nil, ctx.Err()
		case ev := <-events:
			if ev.closed {
				return nil, r.HandleClose()
			}
			art, err := r.Handle(ev.msg)
			if err != nil {
				if art == nil {
					opts.Logger.Debug("Transfer aborted", "error", err)
				}
				return art, err
			}
			if art != nil {
				opts.Logger.Debug("Transfer complete", "name", art.Metadata.Name, "bytes", len(art.Data))
				return art, nil
			}
		}
	}
}
