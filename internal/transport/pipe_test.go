package transport

import (
	"errors"
	"testing"
	"time"
)

func collect(t *testing.T, end *PipeEnd) (<-chan Message, <-chan struct{}) {
	t.Helper()
	msgs := make(chan Message, 64)
	closed := make(chan struct{})
	end.OnMessage(func(m Message) { msgs <- m })
	end.OnClose(func() { close(closed) })
	return msgs, closed
}

func TestPipeDeliversInOrder(t *testing.T) {
	a, b := Pipe()
	defer func() { _ = a.Close() }()

	if err := a.SendText("hello"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if err := a.Send([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// Registered after sending: held frames are replayed.
	msgs, _ := collect(t, b)

	first := <-msgs
	if !first.IsString || string(first.Data) != "hello" {
		t.Errorf("expected text frame hello, got %+v", first)
	}
	second := <-msgs
	if second.IsString || len(second.Data) != 3 {
		t.Errorf("expected 3-byte binary frame, got %+v", second)
	}
}

func TestPipeBufferedAmount(t *testing.T) {
	a, b := Pipe()
	defer func() { _ = a.Close() }()
	msgs, _ := collect(t, b)

	low := make(chan struct{}, 1)
	a.SetBufferedAmountLowThreshold(4)
	a.OnBufferedAmountLow(func() { low <- struct{}{} })

	a.Pause()
	for i := 0; i < 4; i++ {
		if err := a.Send(make([]byte, 10)); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	if got := a.BufferedAmount(); got != 40 {
		t.Fatalf("expected 40 buffered bytes while paused, got %d", got)
	}

	a.Resume()
	select {
	case <-low:
	case <-time.After(2 * time.Second):
		t.Fatal("low threshold callback did not fire")
	}
	for i := 0; i < 4; i++ {
		<-msgs
	}
	if got := a.BufferedAmount(); got != 0 {
		t.Errorf("expected empty buffer after delivery, got %d", got)
	}
}

func TestPipeCloseAfterPending(t *testing.T) {
	a, b := Pipe()
	if err := a.SendText("last"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	_ = a.Close()

	msgs, closed := collect(t, b)
	select {
	case m := <-msgs:
		if string(m.Data) != "last" {
			t.Errorf("expected pending frame before close, got %q", m.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending frame was not delivered")
	}
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close was not reported to peer")
	}

	if err := b.Send([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}
	if !a.Closed() || !b.Closed() {
		t.Error("expected both ends closed")
	}
}

func TestDispatcherIgnoresAfterClose(t *testing.T) {
	var d Dispatcher
	var got []string
	d.OnMessage(func(m Message) { got = append(got, string(m.Data)) })

	d.Deliver(Message{Data: []byte("a")})
	d.Close()
	d.Deliver(Message{Data: []byte("b")})

	fired := 0
	d.OnClose(func() { fired++ })
	d.Close()

	if len(got) != 1 || got[0] != "a" {
		t.Errorf("expected only frame a, got %v", got)
	}
	if fired != 1 {
		t.Errorf("expected close handler once, got %d", fired)
	}
}
