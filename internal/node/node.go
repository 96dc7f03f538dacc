// Package node sequences one transfer attempt: room code, relay,
// negotiation, then the transfer engine, with teardown on every exit path.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rudransh-shrivastava/privosend/internal/relay"
	"github.com/rudransh-shrivastava/privosend/internal/transfer"
	"github.com/rudransh-shrivastava/privosend/internal/transport"
	"github.com/rudransh-shrivastava/privosend/internal/transport/webrtc"
)

var (
	ErrUserCancelled = errors.New("transfer cancelled")
	ErrInvalidCode   = errors.New("invalid room code")
)

type Options struct {
	// NewRelay creates the relay client for each attempt.
	NewRelay relay.Factory
	WebRTC   webrtc.Config
	Transfer transfer.Options
	Logger   *slog.Logger
	// OnStatus and OnProgress observe every attempt started by the node.
	OnStatus   func(code string, status Status)
	OnProgress func(code string, p transfer.Progress)
}

// Node starts send and receive attempts. It holds no connection state of its
// own; every attempt owns its relay client, negotiator and channel.
type Node struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options) (*Node, error) {
	if opts.NewRelay == nil {
		return nil, errors.New("relay factory is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.WebRTC.Logger == nil {
		opts.WebRTC.Logger = log
	}
	if opts.Transfer.Logger == nil {
		opts.Transfer.Logger = log
	}
	return &Node{opts: opts, logger: log}, nil
}

// Send generates a room code and starts offering file in the background.
// The returned Transfer's Code is ready to share immediately.
func (n *Node) Send(ctx context.Context, file File) (*Transfer, error) {
	if file.Reader == nil {
		return nil, errors.New("file has no reader")
	}
	if file.Size < 0 {
		return nil, fmt.Errorf("invalid file size %d", file.Size)
	}

	code, err := GenerateRoomCode()
	if err != nil {
		return nil, err
	}

	t := n.start(ctx, code, webrtc.RoleSender)
	go n.run(t, func(ctx context.Context, ch transport.Channel, opts transfer.Options) (*Result, error) {
		meta := file.Metadata()
		if err := transfer.Send(ctx, ch, meta, file.Reader, opts); err != nil {
			return nil, err
		}
		return &Result{Metadata: meta, Verified: true}, nil
	})
	return t, nil
}

// SendFile opens path and sends it. The file is closed once the attempt ends.
func (n *Node) SendFile(ctx context.Context, path string) (*Transfer, error) {
	file, f, err := OpenFile(path)
	if err != nil {
		return nil, err
	}

	t, err := n.Send(ctx, file)
	if err != nil {
		f.Close()
		return nil, err
	}
	go func() {
		<-t.Done()
		f.Close()
	}()
	return t, nil
}

// Receive joins code and waits for the sender's offer.
func (n *Node) Receive(ctx context.Context, code string) (*Transfer, error) {
	if !ValidRoomCode(code) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}

	t := n.start(ctx, code, webrtc.RoleReceiver)
	go n.run(t, func(ctx context.Context, ch transport.Channel, opts transfer.Options) (*Result, error) {
		art, err := transfer.Receive(ctx, ch, opts)
		if art == nil {
			return nil, err
		}
		return &Result{Metadata: art.Metadata, Data: art.Data, Verified: art.Verified}, err
	})
	return t, nil
}

func (n *Node) start(ctx context.Context, code string, role webrtc.Role) *Transfer {
	ctx, cancel := context.WithCancelCause(ctx)
	t := &Transfer{
		Code:     code,
		Role:     role,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		logger:   n.logger.With("code", code, "role", role.String()),
		onStatus: n.opts.OnStatus,
	}
	t.setStatus(StatusWaitingForPeer)
	return t
}

type work func(ctx context.Context, ch transport.Channel, opts transfer.Options) (*Result, error)

func (n *Node) run(t *Transfer, do work) {
	defer close(t.done)
	defer t.cancel(nil)

	t.logger.Info("Transfer started")

	neg := webrtc.New(t.Role, n.opts.NewRelay(), n.opts.WebRTC)
	defer neg.Close()

	neg.OnStateChange(func(s webrtc.State) {
		switch s {
		case webrtc.StateAwaitingPeer:
			t.setStatus(StatusWaitingForPeer)
		case webrtc.StateOfferSent, webrtc.StateOfferReceived:
			t.setStatus(StatusConnecting)
		}
	})

	ch, err := neg.Connect(t.ctx, t.Code)
	if err != nil {
		t.finish(nil, err)
		return
	}
	defer ch.Close()

	t.setStatus(StatusTransferring)

	opts := n.opts.Transfer
	opts.OnProgress = func(p transfer.Progress) {
		t.setProgress(p)
		if n.opts.OnProgress != nil {
			n.opts.OnProgress(t.Code, p)
		}
	}

	res, err := do(t.ctx, ch, opts)
	if res != nil {
		res.Code = t.Code
	}
	t.finish(res, err)
}
