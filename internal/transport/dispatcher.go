package transport

import "sync"

// Dispatcher fans inbound frames out to handlers registered at any time.
type Dispatcher struct {
	mu         sync.Mutex
	onMessage  func(Message)
	onClose    func()
	pending    []Message
	closed     bool
	closeFired bool
}

func (d *Dispatcher) Deliver(m Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	if d.onMessage == nil {
		d.pending = append(d.pending, m)
		return
	}
	d.onMessage(m)
}

// Close records the close event. It fires after every held message.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	d.fireClose()
}

func (d *Dispatcher) OnMessage(f func(Message)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.onMessage = f
	if f == nil {
		return
	}
	for _, m := range d.pending {
		f(m)
	}
	d.pending = nil
	d.fireClose()
}

func (d *Dispatcher) OnClose(f func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.onClose = f
	d.fireClose()
}

func (d *Dispatcher) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Dispatcher) fireClose() {
	if !d.closed || d.closeFired || d.onClose == nil || len(d.pending) > 0 {
		return
	}
	d.closeFired = true
	d.onClose()
}
