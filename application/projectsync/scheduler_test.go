package projectsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduler_CoalescesBurst(t *testing.T) {
	// Arrange
	clock := newFakeClock()
	var fired []int
	s := NewScheduler(time.Second, clock, func(v int) { fired = append(fired, v) })

	// Act
	for i := 1; i <= 10; i++ {
		s.Schedule(i)
		clock.Advance(999 * time.Millisecond)
	}
	assert.Empty(t, fired, "window restarts on every call")
	clock.Advance(time.Millisecond)

	// Assert
	assert.Equal(t, []int{10}, fired)
	assert.False(t, s.Pending())
	assert.Zero(t, clock.activeTimers())
}

func TestScheduler_SeparateQuietWindowsFireSeparately(t *testing.T) {
	clock := newFakeClock()
	var fired []string
	s := NewScheduler(time.Second, clock, func(v string) { fired = append(fired, v) })

	s.Schedule("a")
	clock.Advance(time.Second)
	s.Schedule("b")
	clock.Advance(time.Second)

	assert.Equal(t, []string{"a", "b"}, fired)
}

func TestScheduler_Cancel(t *testing.T) {
	// Arrange
	clock := newFakeClock()
	calls := 0
	s := NewScheduler(time.Second, clock, func(string) { calls++ })
	s.Schedule("pending")

	// Act
	v, had := s.Cancel()
	clock.Advance(5 * time.Second)

	// Assert
	assert.True(t, had)
	assert.Equal(t, "pending", v)
	assert.Zero(t, calls)

	_, had = s.Cancel()
	assert.False(t, had)
}

func TestScheduler_Flush(t *testing.T) {
	clock := newFakeClock()
	var fired []string
	s := NewScheduler(time.Second, clock, func(v string) { fired = append(fired, v) })

	assert.False(t, s.Flush(), "nothing pending")

	s.Schedule("x")
	assert.True(t, s.Flush())
	clock.Advance(2 * time.Second)

	assert.Equal(t, []string{"x"}, fired, "flushed value does not fire again")
}

func TestScheduler_Defaults(t *testing.T) {
	s := NewScheduler[int](0, nil, func(int) {})

	assert.Equal(t, DefaultQuietWindow, s.window)
	assert.IsType(t, SystemClock{}, s.clock)
}

func TestScheduler_SystemClock(t *testing.T) {
	done := make(chan int, 1)
	s := NewScheduler(10*time.Millisecond, SystemClock{}, func(v int) { done <- v })

	s.Schedule(1)
	s.Schedule(2)

	select {
	case v := <-done:
		assert.Equal(t, 2, v)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never fired")
	}
}
