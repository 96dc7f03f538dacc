// Package webrtc negotiates a pion data channel over a rendezvous relay.
package webrtc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/privosend/internal/protocol"
	"github.com/rudransh-shrivastava/privosend/internal/relay"
	"github.com/rudransh-shrivastava/privosend/internal/transport"
)

const eventQueueSize = 64

type eventKind int

const (
	evPresence eventKind = iota
	evSignal
	evLocalCandidate
	evOpen
	evFailed
)

type event struct {
	kind      eventKind
	signal    protocol.Signal
	candidate webrtc.ICECandidateInit
	channel   *dataChannel
	pcState   webrtc.PeerConnectionState
}

// Negotiator turns relay signaling into one open data channel. All pion and
// relay callbacks are posted to a single event loop, so state transitions
// are applied one at a time.
type Negotiator struct {
	cfg    Config
	role   Role
	relay  relay.Relay
	api    *webrtc.API
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	pc      *webrtc.PeerConnection
	channel *dataChannel
	code    string
	pending []webrtc.ICECandidateInit
	onState func(State)

	events    chan event
	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

func New(role Role, rl relay.Relay, cfg Config) *Negotiator {
	cfg = cfg.withDefaults()

	var api *webrtc.API
	if cfg.SettingEngine != nil {
		api = webrtc.NewAPI(webrtc.WithSettingEngine(*cfg.SettingEngine))
	} else {
		api = webrtc.NewAPI()
	}

	return &Negotiator{
		cfg:    cfg,
		role:   role,
		relay:  rl,
		api:    api,
		logger: cfg.Logger.With("role", role.String()),
		events: make(chan event, eventQueueSize),
		done:   make(chan struct{}),
	}
}

func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// OnStateChange registers f to observe state transitions. It is called from
// the negotiation goroutine.
func (n *Negotiator) OnStateChange(f func(State)) {
	n.mu.Lock()
	n.onState = f
	n.mu.Unlock()
}

func (n *Negotiator) setState(s State) {
	n.mu.Lock()
	prev := n.state
	n.state = s
	onState := n.onState
	n.mu.Unlock()

	if prev == s {
		return
	}
	n.logger.Debug("Negotiation state", "from", prev.String(), "to", s.String())
	if onState != nil {
		onState(s)
	}
}

// Connect joins the relay topic for code and blocks until the data channel
// is open, the open timeout expires, negotiation fails, or ctx ends. The
// relay topic is left on every path; on failure the peer connection is
// closed as well.
func (n *Negotiator) Connect(ctx context.Context, code string) (transport.Channel, error) {
	if err := n.setup(code); err != nil {
		n.fail()
		return nil, err
	}

	if err := n.relay.Join(ctx, code); err != nil {
		n.fail()
		return nil, err
	}
	if n.role == RoleSender {
		n.setState(StateAwaitingPeer)
	}

	ch, err := n.loop(ctx)
	if err != nil {
		n.fail()
		return nil, err
	}

	_ = n.relay.Leave(code)
	return ch, nil
}

func (n *Negotiator) setup(code string) error {
	n.mu.Lock()
	if n.pc != nil {
		n.mu.Unlock()
		return errors.New("negotiator already started")
	}
	n.code = code
	n.mu.Unlock()

	pc, err := n.api.NewPeerConnection(n.cfg.Configuration())
	if err != nil {
		return fmt.Errorf("%w: failed to create peer connection: %v", ErrNegotiation, err)
	}

	n.mu.Lock()
	n.pc = pc
	n.mu.Unlock()

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		n.post(event{kind: evLocalCandidate, candidate: c.ToJSON()})
	})
	pc.OnConnectionStateChange(n.onConnectionState)

	switch n.role {
	case RoleSender:
		dc, err := pc.CreateDataChannel(DataChannelLabel, DefaultDataChannelConfig())
		if err != nil {
			return fmt.Errorf("%w: failed to create data channel: %v", ErrNegotiation, err)
		}
		n.watch(dc)
	case RoleReceiver:
		pc.OnDataChannel(n.watch)
	}

	n.relay.OnMessage(func(sig protocol.Signal) {
		n.post(event{kind: evSignal, signal: sig})
	})
	n.relay.OnPresence(func() {
		n.post(event{kind: evPresence})
	})
	return nil
}

func (n *Negotiator) watch(dc *webrtc.DataChannel) {
	ch := newDataChannel(dc)
	dc.OnOpen(func() {
		n.post(event{kind: evOpen, channel: ch})
	})
}

func (n *Negotiator) post(ev event) {
	select {
	case n.events <- ev:
	case <-n.done:
	}
}

func (n *Negotiator) stopLoop() {
	n.doneOnce.Do(func() { close(n.done) })
}

func (n *Negotiator) loop(ctx context.Context) (transport.Channel, error) {
	defer n.stopLoop()

	var timer *time.Timer
	var timeout <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, fmt.Errorf("%w: channel not open after %s", ErrNegotiationTimeout, n.cfg.OpenTimeout)
		case ev := <-n.events:
			ch, err := n.handle(ctx, ev)
			if err != nil {
				return nil, err
			}
			if ch != nil {
				return ch, nil
			}
			if timer == nil && n.State().awaitingOpen() {
				timer = time.NewTimer(n.cfg.OpenTimeout)
				timeout = timer.C
			}
		}
	}
}

func (n *Negotiator) handle(ctx context.Context, ev event) (transport.Channel, error) {
	switch ev.kind {
	case evPresence:
		return nil, n.onPresence(ctx)
	case evSignal:
		return nil, n.onSignal(ctx, ev.signal)
	case evLocalCandidate:
		n.broadcastCandidate(ctx, ev.candidate)
		return nil, nil
	case evOpen:
		n.mu.Lock()
		n.channel = ev.channel
		n.mu.Unlock()
		n.setState(StateConnected)
		n.logger.Info("Data channel open")
		return ev.channel, nil
	case evFailed:
		return nil, fmt.Errorf("%w: peer connection %s", ErrNegotiation, ev.pcState)
	default:
		return nil, nil
	}
}

func (n *Negotiator) onPresence(ctx context.Context) error {
	if n.role != RoleSender || n.State() != StateAwaitingPeer {
		n.logger.Debug("Ignoring presence", "state", n.State().String())
		return nil
	}

	offer, err := n.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("%w: failed to create offer: %v", ErrNegotiation, err)
	}
	if err := n.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("%w: failed to set local description: %v", ErrNegotiation, err)
	}
	if err := n.broadcast(ctx, protocol.EventOffer, offer); err != nil {
		return err
	}

	n.setState(StateOfferSent)
	n.setState(StateAwaitingAnswer)
	return nil
}

func (n *Negotiator) onSignal(ctx context.Context, sig protocol.Signal) error {
	switch sig.Event {
	case protocol.EventOffer:
		return n.onOffer(ctx, sig)
	case protocol.EventAnswer:
		return n.onAnswer(sig)
	case protocol.EventICECandidate:
		return n.onRemoteCandidate(sig)
	default:
		return nil
	}
}

func (n *Negotiator) onOffer(ctx context.Context, sig protocol.Signal) error {
	if n.role != RoleReceiver || n.State() != StateIdle {
		n.logger.Debug("Ignoring offer", "state", n.State().String())
		return nil
	}

	var offer webrtc.SessionDescription
	if err := sig.Decode(&offer); err != nil {
		return fmt.Errorf("%w: %v", ErrNegotiation, err)
	}
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := n.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("%w: failed to set remote description: %v", ErrNegotiation, err)
	}
	n.setState(StateOfferReceived)

	if err := n.flushCandidates(); err != nil {
		return err
	}

	answer, err := n.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("%w: failed to create answer: %v", ErrNegotiation, err)
	}
	if err := n.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("%w: failed to set local description: %v", ErrNegotiation, err)
	}
	if err := n.broadcast(ctx, protocol.EventAnswer, answer); err != nil {
		return err
	}

	n.setState(StateAnswerSent)
	n.setState(StateAwaitingOpen)
	return nil
}

func (n *Negotiator) onAnswer(sig protocol.Signal) error {
	if n.role != RoleSender || n.State() != StateAwaitingAnswer || n.pc.RemoteDescription() != nil {
		n.logger.Debug("Ignoring answer", "state", n.State().String())
		return nil
	}

	var answer webrtc.SessionDescription
	if err := sig.Decode(&answer); err != nil {
		return fmt.Errorf("%w: %v", ErrNegotiation, err)
	}
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}
	if err := n.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("%w: failed to set remote description: %v", ErrNegotiation, err)
	}
	return n.flushCandidates()
}

// onRemoteCandidate applies a candidate, or holds it until a remote description exists.
func (n *Negotiator) onRemoteCandidate(sig protocol.Signal) error {
	var candidate webrtc.ICECandidateInit
	if err := sig.Decode(&candidate); err != nil {
		return fmt.Errorf("%w: %v", ErrNegotiation, err)
	}

	if n.pc.RemoteDescription() == nil {
		n.mu.Lock()
		n.pending = append(n.pending, candidate)
		n.mu.Unlock()
		return nil
	}

	if err := n.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("%w: failed to add ICE candidate: %v", ErrNegotiation, err)
	}
	return nil
}

func (n *Negotiator) flushCandidates() error {
	n.mu.Lock()
	pending := n.pending
	n.pending = nil
	n.mu.Unlock()

	for _, candidate := range pending {
		if err := n.pc.AddICECandidate(candidate); err != nil {
			return fmt.Errorf("%w: failed to add ICE candidate: %v", ErrNegotiation, err)
		}
	}
	return nil
}

func (n *Negotiator) broadcastCandidate(ctx context.Context, candidate webrtc.ICECandidateInit) {
	if err := n.broadcast(ctx, protocol.EventICECandidate, candidate); err != nil {
		n.logger.Warn("Failed to send ICE candidate", "error", err)
	}
}

func (n *Negotiator) broadcast(ctx context.Context, event protocol.Event, payload any) error {
	sig, err := protocol.NewSignal(event, payload)
	if err != nil {
		return err
	}
	if err := n.relay.Broadcast(ctx, n.code, sig); err != nil {
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}

// onConnectionState reports terminal peer connection states. Before the
// channel opens only failure matters; afterwards any disconnect closes it.
func (n *Negotiator) onConnectionState(s webrtc.PeerConnectionState) {
	n.mu.Lock()
	ch := n.channel
	n.mu.Unlock()

	switch s {
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
		if ch != nil {
			n.logger.Debug("Peer connection ended", "state", s.String())
			ch.markClosed()
			return
		}
		if s == webrtc.PeerConnectionStateFailed {
			n.post(event{kind: evFailed, pcState: s})
		}
	}
}

func (n *Negotiator) fail() {
	n.setState(StateFailed)
	_ = n.Close()
}

// Close leaves the relay topic, closes the channel and the peer connection,
// and drops buffered candidates. It is safe to call more than once and from
// any state.
func (n *Negotiator) Close() error {
	n.closeOnce.Do(func() {
		n.stopLoop()

		n.mu.Lock()
		pc, ch, code := n.pc, n.channel, n.code
		n.pending = nil
		n.mu.Unlock()

		if code != "" {
			_ = n.relay.Leave(code)
		}
		if ch != nil {
			_ = ch.Close()
		}
		if pc != nil {
			n.closeErr = pc.Close()
		}
	})
	return n.closeErr
}
