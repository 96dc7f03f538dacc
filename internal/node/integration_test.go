package node_test

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	pion "github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/privosend/internal/logger"
	"github.com/rudransh-shrivastava/privosend/internal/node"
	"github.com/rudransh-shrivastava/privosend/internal/relay"
	"github.com/rudransh-shrivastava/privosend/internal/server"
	"github.com/rudransh-shrivastava/privosend/internal/transport/webrtc"
)

// network is a relay server plus nodes that signal through it over WebSocket.
type network struct {
	t      *testing.T
	hub    *relay.Hub
	server *httptest.Server
	wsURL  string
}

func newNetwork(t *testing.T) *network {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := relay.NewHub(logger.Discard())
	srv := server.New(server.Options{Hub: hub, Logger: logger.Discard()})
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)

	return &network{
		t:      t,
		hub:    hub,
		server: httpSrv,
		wsURL:  "ws" + strings.TrimPrefix(httpSrv.URL, "http"),
	}
}

func (n *network) newNode(timeout time.Duration) *node.Node {
	n.t.Helper()

	se := pion.SettingEngine{}
	se.SetIncludeLoopbackCandidate(true)

	nd, err := node.New(node.Options{
		NewRelay: relay.WebSocketFactory(n.wsURL, logger.Discard()),
		WebRTC: webrtc.Config{
			OpenTimeout:   timeout,
			SettingEngine: &se,
		},
		Logger: logger.Discard(),
	})
	if err != nil {
		n.t.Fatalf("Failed to create node: %v", err)
	}
	return nd
}

func (n *network) waitMembers(code string, want int) {
	n.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for n.hub.Members(code) != want {
		if time.Now().After(deadline) {
			n.t.Fatalf("expected %d members in %s, got %d", want, code, n.hub.Members(code))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTransferOverWebSocketRelay(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping peer connection test in short mode")
	}

	net := newNetwork(t)
	sender := net.newNode(15 * time.Second)
	receiver := net.newNode(15 * time.Second)
	ctx := context.Background()

	data := bytes.Repeat([]byte("privosend "), 5000)
	send, err := sender.Send(ctx, node.File{Name: "notes.txt", Size: int64(len(data)), MimeType: "text/plain", Reader: bytes.NewReader(data)})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	net.waitMembers(send.Code, 1)

	recv, err := receiver.Receive(ctx, send.Code)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	res, err := recv.Wait()
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if !bytes.Equal(res.Data, data) || !res.Verified {
		t.Fatalf("received %d bytes, verified=%v", len(res.Data), res.Verified)
	}
	if _, err := send.Wait(); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	net.waitMembers(send.Code, 0)
}

func TestNegotiationTimeoutReleasesRelay(t *testing.T) {
	net := newNetwork(t)
	sender := net.newNode(300 * time.Millisecond)
	ctx := context.Background()

	send, err := sender.Send(ctx, node.File{Name: "a.txt", Size: 5, Reader: strings.NewReader("hello")})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	net.waitMembers(send.Code, 1)

	// A peer that joins but never answers leaves the sender waiting for an answer.
	silent := relay.NewWebSocket(net.wsURL, logger.Discard())
	if err := silent.Join(ctx, send.Code); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	defer silent.Leave(send.Code)

	select {
	case <-send.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("sender did not time out")
	}
	if _, err := send.Wait(); !errors.Is(err, webrtc.ErrNegotiationTimeout) {
		t.Fatalf("expected ErrNegotiationTimeout, got %v", err)
	}
	if send.Status() != node.StatusFailed {
		t.Errorf("expected failed status, got %s", send.Status())
	}
	net.waitMembers(send.Code, 1)
}

func TestReceiveRelayUnavailable(t *testing.T) {
	nd, err := node.New(node.Options{
		NewRelay: relay.WebSocketFactory("ws://127.0.0.1:1", logger.Discard()),
		Logger:   logger.Discard(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	recv, err := nd.Receive(context.Background(), "482913")
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if _, err := recv.Wait(); !errors.Is(err, relay.ErrRelayUnavailable) {
		t.Fatalf("expected ErrRelayUnavailable, got %v", err)
	}
	if recv.Status() != node.StatusFailed {
		t.Errorf("expected failed status, got %s", recv.Status())
	}
}
