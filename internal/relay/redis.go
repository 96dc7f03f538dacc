package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rudransh-shrivastava/privosend/internal/protocol"
)

const topicPrefix = "privosend:room:"

// Topic returns the Redis channel for a room code.
func Topic(code string) string {
	return topicPrefix + code
}

// Redis is a Relay over Redis pub/sub. Presence is announced on join and
// re-announced once to each newly seen peer so earlier members learn of
// late joiners and late joiners learn of earlier members.
type Redis struct {
	handlers
	client *redis.Client
	id     string
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]*redisSub
}

type redisSub struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

var _ Relay = (*Redis)(nil)

func NewRedis(client *redis.Client, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		client: client,
		id:     uuid.New().String(),
		logger: logger,
		subs:   make(map[string]*redisSub),
	}
}

// RedisFactory returns a Factory producing Redis clients sharing client.
func RedisFactory(client *redis.Client, logger *slog.Logger) Factory {
	return func() Relay { return NewRedis(client, logger) }
}

func (r *Redis) ID() string {
	return r.id
}

func (r *Redis) Join(ctx context.Context, code string) error {
	r.mu.Lock()
	_, joined := r.subs[code]
	r.mu.Unlock()
	if joined {
		return nil
	}

	pubsub := r.client.Subscribe(ctx, Topic(code))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.subs[code] = &redisSub{pubsub: pubsub, cancel: cancel}
	r.mu.Unlock()

	go r.listen(listenCtx, code, pubsub)

	if err := r.publish(ctx, code, protocol.Presence(r.id)); err != nil {
		_ = r.Leave(code)
		return fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
	}

	r.logger.Debug("Joined redis topic", "topic", Topic(code), "id", r.id)
	return nil
}

func (r *Redis) Broadcast(ctx context.Context, code string, sig protocol.Signal) error {
	r.mu.Lock()
	_, joined := r.subs[code]
	r.mu.Unlock()
	if !joined {
		return fmt.Errorf("%w: %s", ErrNotJoined, code)
	}
	return r.publish(ctx, code, sig)
}

func (r *Redis) publish(ctx context.Context, code string, sig protocol.Signal) error {
	sig.From = r.id
	data, err := protocol.EncodeSignal(sig)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, Topic(code), data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", sig.Event, err)
	}
	return nil
}

func (r *Redis) Leave(code string) error {
	r.mu.Lock()
	sub, ok := r.subs[code]
	delete(r.subs, code)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	sub.cancel()
	return sub.pubsub.Close()
}

func (r *Redis) listen(ctx context.Context, code string, pubsub *redis.PubSub) {
	seen := make(map[string]bool)
	messages := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			sig, err := protocol.DecodeSignal([]byte(msg.Payload))
			if err != nil {
				r.logger.Warn("Ignoring invalid relay message", "topic", msg.Channel, "error", err)
				continue
			}
			if sig.From == r.id {
				continue
			}
			if sig.Event == protocol.EventPresenceJoin {
				if seen[sig.From] {
					continue
				}
				seen[sig.From] = true
				if err := r.publish(ctx, code, protocol.Presence(r.id)); err != nil {
					r.logger.Warn("Failed to re-announce presence", "error", err)
				}
			}
			r.dispatch(sig)
		}
	}
}
