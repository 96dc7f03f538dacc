package webrtc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/privosend/internal/logger"
	"github.com/rudransh-shrivastava/privosend/internal/protocol"
	"github.com/rudransh-shrivastava/privosend/internal/relay"
	"github.com/rudransh-shrivastava/privosend/internal/transport"
)

const testCode = "482913"

func loopbackConfig(timeout time.Duration) Config {
	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(true)
	return Config{
		OpenTimeout:   timeout,
		Logger:        logger.Discard(),
		SettingEngine: &se,
	}
}

type connectResult struct {
	ch  transport.Channel
	err error
}

func connectAsync(ctx context.Context, n *Negotiator) <-chan connectResult {
	out := make(chan connectResult, 1)
	go func() {
		ch, err := n.Connect(ctx, testCode)
		out <- connectResult{ch, err}
	}()
	return out
}

func awaitResult(t *testing.T, results <-chan connectResult) connectResult {
	t.Helper()
	select {
	case res := <-results:
		return res
	case <-time.After(20 * time.Second):
		t.Fatal("Connect did not return")
	}
	return connectResult{}
}

func TestNegotiatorConnects(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping peer connection test in short mode")
	}

	hub := relay.NewHub(logger.Discard())
	ctx := context.Background()

	sender := New(RoleSender, relay.NewLocal(hub), loopbackConfig(15*time.Second))
	receiver := New(RoleReceiver, relay.NewLocal(hub), loopbackConfig(15*time.Second))
	defer sender.Close()
	defer receiver.Close()

	sendRes := connectAsync(ctx, sender)
	recvRes := connectAsync(ctx, receiver)

	s := awaitResult(t, sendRes)
	if s.err != nil {
		t.Fatalf("sender Connect failed: %v", s.err)
	}
	r := awaitResult(t, recvRes)
	if r.err != nil {
		t.Fatalf("receiver Connect failed: %v", r.err)
	}

	if sender.State() != StateConnected || receiver.State() != StateConnected {
		t.Fatalf("expected both connected, got %s and %s", sender.State(), receiver.State())
	}
	if got := hub.Members(testCode); got != 0 {
		t.Errorf("expected relay topic to be left, %d members remain", got)
	}

	got := make(chan transport.Message, 1)
	r.ch.OnMessage(func(m transport.Message) { got <- m })
	if err := s.ch.SendText("hello"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}

	select {
	case m := <-got:
		if !m.IsString || string(m.Data) != "hello" {
			t.Errorf("unexpected frame %+v", m)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("frame not delivered")
	}
}

func TestNegotiatorSenderTimeout(t *testing.T) {
	hub := relay.NewHub(logger.Discard())
	ctx := context.Background()

	silent := relay.NewLocal(hub)
	if err := silent.Join(ctx, testCode); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	defer silent.Leave(testCode)

	offers := make(chan protocol.Signal, 4)
	silent.OnMessage(func(sig protocol.Signal) {
		if sig.Event == protocol.EventOffer {
			offers <- sig
		}
	})

	sender := New(RoleSender, relay.NewLocal(hub), loopbackConfig(300*time.Millisecond))
	start := time.Now()
	res := awaitResult(t, connectAsync(ctx, sender))

	if !errors.Is(res.err, ErrNegotiationTimeout) {
		t.Fatalf("expected ErrNegotiationTimeout, got %v", res.err)
	}
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Errorf("timed out too early after %s", elapsed)
	}
	if sender.State() != StateFailed {
		t.Errorf("expected failed state, got %s", sender.State())
	}
	if got := hub.Members(testCode); got != 1 {
		t.Errorf("expected sender to leave the topic, %d members", got)
	}
	if sender.pc.ConnectionState() != webrtc.PeerConnectionStateClosed {
		t.Errorf("expected peer connection closed, got %s", sender.pc.ConnectionState())
	}

	select {
	case <-offers:
	default:
		t.Error("expected the sender to publish an offer")
	}
}

func TestNegotiatorReceiverTimeout(t *testing.T) {
	hub := relay.NewHub(logger.Discard())
	ctx := context.Background()

	// The fake sender offers but never applies the answer.
	offerer, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("NewPeerConnection failed: %v", err)
	}
	defer offerer.Close()
	if _, err := offerer.CreateDataChannel(DataChannelLabel, nil); err != nil {
		t.Fatalf("CreateDataChannel failed: %v", err)
	}
	offer, err := offerer.CreateOffer(nil)
	if err != nil {
		t.Fatalf("CreateOffer failed: %v", err)
	}
	if err := offerer.SetLocalDescription(offer); err != nil {
		t.Fatalf("SetLocalDescription failed: %v", err)
	}

	fake := relay.NewLocal(hub)
	answers := make(chan protocol.Signal, 1)
	fake.OnMessage(func(sig protocol.Signal) {
		if sig.Event == protocol.EventAnswer {
			answers <- sig
		}
	})
	fake.OnPresence(func() {
		sig, _ := protocol.NewSignal(protocol.EventOffer, offer)
		_ = fake.Broadcast(ctx, testCode, sig)
	})
	if err := fake.Join(ctx, testCode); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	defer fake.Leave(testCode)

	receiver := New(RoleReceiver, relay.NewLocal(hub), loopbackConfig(300*time.Millisecond))
	res := awaitResult(t, connectAsync(ctx, receiver))

	if !errors.Is(res.err, ErrNegotiationTimeout) {
		t.Fatalf("expected ErrNegotiationTimeout, got %v", res.err)
	}
	if receiver.State() != StateFailed {
		t.Errorf("expected failed state, got %s", receiver.State())
	}

	select {
	case sig := <-answers:
		var answer webrtc.SessionDescription
		if err := sig.Decode(&answer); err != nil {
			t.Fatalf("Decode answer failed: %v", err)
		}
		if answer.Type != webrtc.SDPTypeAnswer || answer.SDP == "" {
			t.Errorf("unexpected answer %+v", answer)
		}
	default:
		t.Error("expected the receiver to publish an answer")
	}
}

func TestNegotiatorMalformedOffer(t *testing.T) {
	hub := relay.NewHub(logger.Discard())
	ctx := context.Background()

	fake := relay.NewLocal(hub)
	fake.OnPresence(func() {
		sig := protocol.Signal{
			Event:   protocol.EventOffer,
			Payload: json.RawMessage(`{"type":"offer","sdp":"not an sdp"}`),
		}
		_ = fake.Broadcast(ctx, testCode, sig)
	})
	if err := fake.Join(ctx, testCode); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	defer fake.Leave(testCode)

	receiver := New(RoleReceiver, relay.NewLocal(hub), loopbackConfig(5*time.Second))
	res := awaitResult(t, connectAsync(ctx, receiver))

	if !errors.Is(res.err, ErrNegotiation) {
		t.Fatalf("expected ErrNegotiation, got %v", res.err)
	}
	if receiver.State() != StateFailed {
		t.Errorf("expected failed state, got %s", receiver.State())
	}
}

func TestNegotiatorBuffersEarlyCandidates(t *testing.T) {
	hub := relay.NewHub(logger.Discard())
	n := New(RoleReceiver, relay.NewLocal(hub), loopbackConfig(time.Second))

	if err := n.setup(testCode); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	candidate := "candidate:1 1 udp 2130706431 127.0.0.1 50000 typ host"
	sig, err := protocol.NewSignal(protocol.EventICECandidate, webrtc.ICECandidateInit{Candidate: candidate})
	if err != nil {
		t.Fatalf("NewSignal failed: %v", err)
	}
	if err := n.onSignal(context.Background(), sig); err != nil {
		t.Fatalf("onSignal failed: %v", err)
	}

	n.mu.Lock()
	pending := len(n.pending)
	n.mu.Unlock()
	if pending != 1 {
		t.Fatalf("expected 1 buffered candidate, got %d", pending)
	}

	if err := n.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if n.pending != nil {
		t.Error("expected buffered candidates to be dropped on close")
	}
}

func TestNegotiatorIgnoresOutOfStateSignals(t *testing.T) {
	hub := relay.NewHub(logger.Discard())
	ctx := context.Background()

	n := New(RoleSender, relay.NewLocal(hub), loopbackConfig(time.Second))
	defer n.Close()
	if err := n.setup(testCode); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	// A sender never answers offers, and an answer before any offer is ignored.
	offer, _ := protocol.NewSignal(protocol.EventOffer, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"})
	if err := n.onSignal(ctx, offer); err != nil {
		t.Errorf("offer to sender should be ignored, got %v", err)
	}
	answer, _ := protocol.NewSignal(protocol.EventAnswer, webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"})
	if err := n.onSignal(ctx, answer); err != nil {
		t.Errorf("early answer should be ignored, got %v", err)
	}
	if n.State() != StateIdle {
		t.Errorf("expected idle state, got %s", n.State())
	}
}

func TestNegotiatorJoinFailure(t *testing.T) {
	hub := relay.NewHub(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := New(RoleSender, relay.NewLocal(hub), loopbackConfig(time.Second))
	_, err := n.Connect(ctx, testCode)
	if !errors.Is(err, relay.ErrRelayUnavailable) {
		t.Fatalf("expected ErrRelayUnavailable, got %v", err)
	}
	if n.State() != StateFailed {
		t.Errorf("expected failed state, got %s", n.State())
	}
}

func TestNegotiatorCloseIdempotent(t *testing.T) {
	n := New(RoleReceiver, relay.NewLocal(relay.NewHub(logger.Discard())), Config{})
	if err := n.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := n.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
