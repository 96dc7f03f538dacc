package relay

import (
	"log/slog"
	"sync"

	"github.com/rudransh-shrivastava/privosend/internal/protocol"
)

const memberQueueSize = 256

// Hub is an in-process topic registry. Each member receives envelopes on
// its own goroutine so a slow member never blocks a publisher.
type Hub struct {
	mu     sync.Mutex
	topics map[string]map[string]*member
	logger *slog.Logger
}

type member struct {
	id      string
	queue   chan protocol.Signal
	deliver func(protocol.Signal)
	done    chan struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		topics: make(map[string]map[string]*member),
		logger: logger,
	}
}

// Subscribe adds id to topic. Existing members are told about the newcomer
// and the newcomer is told about each existing member.
func (h *Hub) Subscribe(topic, id string, deliver func(protocol.Signal)) (unsubscribe func()) {
	m := &member{
		id:      id,
		queue:   make(chan protocol.Signal, memberQueueSize),
		deliver: deliver,
		done:    make(chan struct{}),
	}
	go m.run()

	h.mu.Lock()
	members, ok := h.topics[topic]
	if !ok {
		members = make(map[string]*member)
		h.topics[topic] = members
	}
	for _, other := range members {
		h.enqueue(topic, other, protocol.Presence(id))
		h.enqueue(topic, m, protocol.Presence(other.id))
	}
	members[id] = m
	count := len(members)
	h.mu.Unlock()

	h.logger.Debug("Member joined topic", "topic", topic, "member", id, "members", count)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			if members, ok := h.topics[topic]; ok && members[id] == m {
				delete(members, id)
				if len(members) == 0 {
					delete(h.topics, topic)
				}
			}
			h.mu.Unlock()
			close(m.done)
			h.logger.Debug("Member left topic", "topic", topic, "member", id)
		})
	}
}

// Publish delivers sig to every member of topic except from.
func (h *Hub) Publish(topic, from string, sig protocol.Signal) {
	sig.From = from

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, m := range h.topics[topic] {
		if id == from {
			continue
		}
		h.enqueue(topic, m, sig)
	}
}

// Members returns the number of subscribers on topic.
func (h *Hub) Members(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

func (h *Hub) enqueue(topic string, m *member, sig protocol.Signal) {
	select {
	case m.queue <- sig:
	default:
		h.logger.Warn("Dropping relay message, member queue full", "topic", topic, "member", m.id, "event", sig.Event.String())
	}
}

func (m *member) run() {
	for {
		select {
		case sig := <-m.queue:
			m.deliver(sig)
		case <-m.done:
			return
		}
	}
}
