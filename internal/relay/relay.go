// Package relay implements the rendezvous pub/sub used to exchange
// negotiation messages before the direct channel exists.
package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/rudransh-shrivastava/privosend/internal/protocol"
)

var (
	ErrRelayUnavailable = errors.New("relay unavailable")
	ErrNotJoined        = errors.New("topic not joined")
)

// Relay is a broadcast topic client keyed by room code.
//
// Handlers are invoked from one goroutine per topic, in delivery order.
// A client never receives its own broadcasts.
type Relay interface {
	Join(ctx context.Context, code string) error
	Broadcast(ctx context.Context, code string, sig protocol.Signal) error
	OnMessage(f func(protocol.Signal))
	OnPresence(f func())
	Leave(code string) error
}

// Factory creates a fresh relay client for one transfer attempt.
type Factory func() Relay

// handlers routes presence envelopes to OnPresence and everything else to OnMessage.
type handlers struct {
	mu         sync.Mutex
	onMessage  func(protocol.Signal)
	onPresence func()
}

func (h *handlers) OnMessage(f func(protocol.Signal)) {
	h.mu.Lock()
	h.onMessage = f
	h.mu.Unlock()
}

func (h *handlers) OnPresence(f func()) {
	h.mu.Lock()
	h.onPresence = f
	h.mu.Unlock()
}

func (h *handlers) dispatch(sig protocol.Signal) {
	h.mu.Lock()
	onMessage, onPresence := h.onMessage, h.onPresence
	h.mu.Unlock()

	if sig.Event == protocol.EventPresenceJoin {
		if onPresence != nil {
			onPresence()
		}
		return
	}
	if onMessage != nil {
		onMessage(sig)
	}
}
