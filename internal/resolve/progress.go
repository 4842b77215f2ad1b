package resolve

import "sync"

// progressTracker forwards only increasing percentages.
type progressTracker struct {
	mu   sync.Mutex
	last int
	fn   func(int)
}

func newProgressTracker(fn func(int)) *progressTracker {
	return &progressTracker{last: -1, fn: fn}
}

func (p *progressTracker) report(percent int) {
	percent = max(0, min(100, percent))
	p.mu.Lock()
	defer p.mu.Unlock()
	if percent <= p.last {
		return
	}
	p.last = percent
	if p.fn != nil {
		p.fn(percent)
	}
}

// span is a slice [lo, hi] of the overall 0..100 range.
type span struct {
	lo, hi float64
}

// at maps a provider-local percentage into the span.
func (s span) at(percent int) int {
	percent = max(0, min(100, percent))
	return int(s.lo + (s.hi-s.lo)*float64(percent)/100)
}

// split divides the span into n equal parts.
func (s span) split(n int) []span {
	if n <= 0 {
		return nil
	}
	out := make([]span, n)
	width := (s.hi - s.lo) / float64(n)
	for i := range out {
		out[i] = span{lo: s.lo + width*float64(i), hi: s.lo + width*float64(i+1)}
	}
	return out
}
