package projectsync

import (
	"sync"
	"time"
)

// DefaultQuietWindow is how long the graph must stay unchanged before a
// sync is attempted.
const DefaultQuietWindow = time.Second

// Scheduler debounces values: every Schedule restarts the quiet window and
// replaces the pending value, and fire runs once with the last value after
// the window elapses uninterrupted.
type Scheduler[T any] struct {
	mu      sync.Mutex
	clock   Clock
	window  time.Duration
	fire    func(T)
	timer   Timer
	value   T
	pending bool
	gen     uint64
}

// NewScheduler creates a scheduler. A nil clock means the system clock and a
// non-positive window means DefaultQuietWindow.
func NewScheduler[T any](window time.Duration, clock Clock, fire func(T)) *Scheduler[T] {
	if clock == nil {
		clock = SystemClock{}
	}
	if window <= 0 {
		window = DefaultQuietWindow
	}
	return &Scheduler[T]{clock: clock, window: window, fire: fire}
}

// Schedule records v as the latest value and restarts the timer.
func (s *Scheduler[T]) Schedule(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.value = v
	s.pending = true
	s.timer = s.clock.AfterFunc(s.window, func() { s.elapsed(gen) })
}

// elapsed runs on the timer goroutine. A stale generation means the timer
// was superseded after it had already started to fire.
func (s *Scheduler[T]) elapsed(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.pending {
		s.mu.Unlock()
		return
	}
	v := s.take()
	s.mu.Unlock()

	s.fire(v)
}

// Cancel drops the pending value without firing and returns it.
func (s *Scheduler[T]) Cancel() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	had := s.pending
	v := s.take()
	return v, had
}

// Flush fires the pending value immediately on the calling goroutine.
// It reports whether anything was pending.
func (s *Scheduler[T]) Flush() bool {
	s.mu.Lock()
	if !s.pending {
		s.mu.Unlock()
		return false
	}
	v := s.take()
	s.mu.Unlock()

	s.fire(v)
	return true
}

// Pending reports whether a value is waiting for its quiet window.
func (s *Scheduler[T]) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// take clears pending state; callers hold mu.
func (s *Scheduler[T]) take() T {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	v := s.value
	var zero T
	s.value = zero
	s.pending = false
	return v
}
