package transport

import "sync"

// PipeEnd is one side of an in-memory Channel pair. Bytes count as buffered
// from Send until the peer has been handed the frame.
type PipeEnd struct {
	peer  *PipeEnd
	inbox Dispatcher

	mu        sync.Mutex
	cond      *sync.Cond
	queue     []Message
	buffered  uint64
	threshold uint64
	onLow     func()
	paused    bool
	closed    bool
}

var _ Channel = (*PipeEnd)(nil)

// Pipe returns two connected ends.
func Pipe() (*PipeEnd, *PipeEnd) {
	a, b := newPipeEnd(), newPipeEnd()
	a.peer, b.peer = b, a
	go a.deliverLoop()
	go b.deliverLoop()
	return a, b
}

func newPipeEnd() *PipeEnd {
	e := &PipeEnd{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func (e *PipeEnd) Send(data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	return e.enqueue(Message{Data: buf})
}

func (e *PipeEnd) SendText(text string) error {
	return e.enqueue(Message{Data: []byte(text), IsString: true})
}

func (e *PipeEnd) enqueue(m Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	e.queue = append(e.queue, m)
	e.buffered += uint64(len(m.Data))
	e.cond.Signal()
	return nil
}

func (e *PipeEnd) BufferedAmount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffered
}

func (e *PipeEnd) SetBufferedAmountLowThreshold(threshold uint64) {
	e.mu.Lock()
	e.threshold = threshold
	e.mu.Unlock()
}

func (e *PipeEnd) OnBufferedAmountLow(f func()) {
	e.mu.Lock()
	e.onLow = f
	e.mu.Unlock()
}

func (e *PipeEnd) OnMessage(f func(Message)) {
	e.inbox.OnMessage(f)
}

func (e *PipeEnd) OnClose(f func()) {
	e.inbox.OnClose(f)
}

// Pause stops handing this end's frames to the peer, simulating a slow link.
func (e *PipeEnd) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
}

func (e *PipeEnd) Resume() {
	e.mu.Lock()
	e.paused = false
	e.cond.Broadcast()
	e.mu.Unlock()
}

// Close shuts both directions. Frames already sent are still delivered.
func (e *PipeEnd) Close() error {
	e.shut()
	e.peer.shut()
	return nil
}

func (e *PipeEnd) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *PipeEnd) shut() {
	e.mu.Lock()
	e.closed = true
	e.cond.Broadcast()
	e.mu.Unlock()
}

func (e *PipeEnd) deliverLoop() {
	for {
		e.mu.Lock()
		for !e.closed && (len(e.queue) == 0 || e.paused) {
			e.cond.Wait()
		}
		if len(e.queue) == 0 {
			e.mu.Unlock()
			e.peer.inbox.Close()
			return
		}
		m := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()

		e.peer.inbox.Deliver(m)

		e.mu.Lock()
		before := e.buffered
		e.buffered -= uint64(len(m.Data))
		fire := before > e.threshold && e.buffered <= e.threshold
		onLow := e.onLow
		e.mu.Unlock()

		if fire && onLow != nil {
			onLow()
		}
	}
}
