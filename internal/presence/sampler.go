package presence

import (
	"sync"
	"time"
)

// Sampler rate-limits outgoing cursor positions. The first move in a quiet period
// is emitted at once; later moves within the interval collapse into the latest one,
// emitted when the interval ends. A zero interval emits every move.
type Sampler struct {
	interval time.Duration
	emit     func(x, y float64)

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	x, y    float64
	stopped bool
}

// NewSampler returns a sampler calling emit at most once per interval.
func NewSampler(interval time.Duration, emit func(x, y float64)) *Sampler {
	return &Sampler{interval: interval, emit: emit}
}

// Move offers a new local cursor position.
func (s *Sampler) Move(x, y float64) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if s.interval <= 0 {
		s.mu.Unlock()
		s.emit(x, y)
		return
	}
	if s.timer != nil {
		s.x, s.y, s.pending = x, y, true
		s.mu.Unlock()
		return
	}
	s.timer = time.AfterFunc(s.interval, s.tick)
	s.mu.Unlock()
	s.emit(x, y)
}

func (s *Sampler) tick() {
	s.mu.Lock()
	if !s.pending || s.stopped {
		s.timer = nil
		s.mu.Unlock()
		return
	}
	x, y := s.x, s.y
	s.pending = false
	s.timer.Reset(s.interval)
	s.mu.Unlock()
	s.emit(x, y)
}

// Stop discards any pending position. Moves after Stop are ignored.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.pending = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
