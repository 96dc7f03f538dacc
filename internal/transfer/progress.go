package transfer

import "sync"

// Progress reports bytes moved against the declared size.
type Progress struct {
	Bytes   int64
	Total   int64
	Percent float64
}

// progressTracker emits non-decreasing percentages capped at 100.
type progressTracker struct {
	mu      sync.Mutex
	total   int64
	last    float64
	emitted bool
	fn      func(Progress)
}

func newProgressTracker(total int64, fn func(Progress)) *progressTracker {
	return &progressTracker{total: total, fn: fn}
}

func (p *progressTracker) update(bytes int64) {
	var percent float64
	if p.total > 0 {
		percent = float64(bytes) * 100 / float64(p.total)
	}
	p.emit(bytes, percent)
}

func (p *progressTracker) finish(bytes int64) {
	p.emit(bytes, 100)
}

func (p *progressTracker) emit(bytes int64, percent float64) {
	if percent > 100 {
		percent = 100
	}

	p.mu.Lock()
	if p.emitted && percent <= p.last {
		p.mu.Unlock()
		return
	}
	p.last = percent
	p.emitted = true
	fn := p.fn
	p.mu.Unlock()

	if fn != nil {
		fn(Progress{Bytes: bytes, Total: p.total, Percent: percent})
	}
}
