package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rudransh-shrivastava/privosend/internal/protocol"
)

// Local is a Relay backed directly by an in-process Hub.
type Local struct {
	handlers
	hub *Hub
	id  string

	mu   sync.Mutex
	subs map[string]func()
}

var _ Relay = (*Local)(nil)

func NewLocal(hub *Hub) *Local {
	return &Local{
		hub:  hub,
		id:   uuid.New().String(),
		subs: make(map[string]func()),
	}
}

// LocalFactory returns a Factory producing Local clients on hub.
func LocalFactory(hub *Hub) Factory {
	return func() Relay { return NewLocal(hub) }
}

func (l *Local) ID() string {
	return l.id
}

func (l *Local) Join(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.subs[code]; ok {
		return nil
	}
	l.subs[code] = l.hub.Subscribe(code, l.id, l.dispatch)
	return nil
}

func (l *Local) Broadcast(_ context.Context, code string, sig protocol.Signal) error {
	l.mu.Lock()
	_, joined := l.subs[code]
	l.mu.Unlock()

	if !joined {
		return fmt.Errorf("%w: %s", ErrNotJoined, code)
	}
	l.hub.Publish(code, l.id, sig)
	return nil
}

func (l *Local) Leave(code string) error {
	l.mu.Lock()
	unsubscribe, ok := l.subs[code]
	delete(l.subs, code)
	l.mu.Unlock()

	if ok {
		unsubscribe()
	}
	return nil
}
