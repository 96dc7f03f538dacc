package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rudransh-shrivastava/privosend/internal/protocol"
	"github.com/rudransh-shrivastava/privosend/internal/transport"
)

type SenderState int

const (
	SenderIdle SenderState = iota
	SenderSending
	SenderCompleted
	SenderFailed
)

func (s SenderState) String() string {
	switch s {
	case SenderIdle:
		return "idle"
	case SenderSending:
		return "sending"
	case SenderCompleted:
		return "completed"
	case SenderFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Sender streams one file over an open channel.
type Sender struct {
	ch   transport.Channel
	opts Options

	mu    sync.Mutex
	state SenderState

	drained   chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

func NewSender(ch transport.Channel, opts Options) *Sender {
	s := &Sender{
		ch:      ch,
		opts:    opts.withDefaults(),
		drained: make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}

	ch.SetBufferedAmountLowThreshold(s.opts.LowWater)
	ch.OnBufferedAmountLow(func() {
		select {
		case s.drained <- struct{}{}:
		default:
		}
	})
	// The receiver never talks back; inbound frames are dropped.
	ch.OnMessage(func(transport.Message) {})
	ch.OnClose(func() {
		s.closeOnce.Do(func() { close(s.closed) })
	})

	return s
}

func (s *Sender) State() SenderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sender) setState(state SenderState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Send writes metadata, the contents of r in chunks, and the completion marker.
func (s *Sender) Send(ctx context.Context, meta protocol.Metadata, r io.Reader) error {
	s.setState(SenderSending)
	if err := s.send(ctx, meta, r); err != nil {
		s.setState(SenderFailed)
		return err
	}
	s.setState(SenderCompleted)
	return nil
}

func (s *Sender) send(ctx context.Context, meta protocol.Metadata, r io.Reader) error {
	text, err := protocol.EncodeMetadata(meta)
	if err != nil {
		return err
	}
	if err := s.ch.SendText(text); err != nil {
		return s.sendErr("metadata", err)
	}

	progress := newProgressTracker(meta.Size, s.opts.OnProgress)
	progress.update(0)

	var sent int64
	for {
		if err := s.check(ctx); err != nil {
			return err
		}

		chunk := make([]byte, s.opts.ChunkSize)
		n, readErr := io.ReadFull(r, chunk)
		if n > 0 {
			if err := s.waitForDrain(ctx); err != nil {
				return err
			}
			if err := s.ch.Send(chunk[:n]); err != nil {
				return s.sendErr("chunk", err)
			}
			sent += int64(n)
			progress.update(sent)
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return fmt.Errorf("failed to read source: %w", readErr)
		}
	}

	if sent != meta.Size {
		s.opts.Logger.Warn("Source length differs from metadata", "sent", sent, "declared", meta.Size)
	}

	if err := s.ch.SendText(protocol.EncodeComplete()); err != nil {
		return s.sendErr("completion", err)
	}
	progress.finish(sent)

	s.flush(ctx)
	return nil
}

func (s *Sender) check(ctx context.Context) error {
	select {
	case <-s.closed:
		return ErrPeerDisconnected
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// waitForDrain blocks while the channel holds more than HighWater bytes.
func (s *Sender) waitForDrain(ctx context.Context) error {
	if s.ch.BufferedAmount() <= s.opts.HighWater {
		return nil
	}

	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()

	for s.ch.BufferedAmount() > s.opts.HighWater {
		select {
		case <-s.drained:
		case <-ticker.C:
		case <-s.closed:
			return ErrPeerDisconnected
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// flush waits for the outbound buffer to empty, then lingers for the peer to close.
func (s *Sender) flush(ctx context.Context) {
	ticker := time.NewTicker(drainPoll / 4)
	defer ticker.Stop()

	for s.ch.BufferedAmount() > 0 {
		select {
		case <-ticker.C:
		case <-s.closed:
			return
		case <-ctx.Done():
			return
		}
	}

	if s.opts.Linger <= 0 {
		return
	}
	timer := time.NewTimer(s.opts.Linger)
	defer timer.Stop()

	select {
	case <-s.closed:
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (s *Sender) sendErr(what string, err error) error {
	select {
	case <-s.closed:
		return ErrPeerDisconnected
	default:
	}
	if errors.Is(err, transport.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return ErrPeerDisconnected
	}
	return fmt.Errorf("failed to send %s: %w", what, err)
}

// Send is a convenience for NewSender(ch, opts).Send(ctx, meta, r).
func Send(ctx context.Context, ch transport.Channel, meta protocol.Metadata, r io.Reader, opts Options) error {
	return NewSender(ch, opts).Send(ctx, meta, r)
}
