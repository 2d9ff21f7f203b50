package projectsync

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"todoflow/application/notify"
	"todoflow/domain/core/entities"
)

// fakeClock fires timers synchronously from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward by d, firing due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		due := make([]*fakeTimer, 0)
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			break
		}
		sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
		next := due[0]
		next.fired = true
		if c.now.Before(next.at) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.f()
		c.mu.Lock()
	}
	if c.now.Before(target) {
		c.now = target
	}
	c.mu.Unlock()
}

// activeTimers counts timers that would still fire.
func (c *fakeClock) activeTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type mockProjectAPI struct {
	mock.Mock
}

func (m *mockProjectAPI) GetProject(ctx context.Context, id string) (*entities.Project, error) {
	args := m.Called(ctx, id)
	if p, ok := args.Get(0).(*entities.Project); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProjectAPI) PatchProject(ctx context.Context, id string, patch entities.GraphPatch) (*entities.Project, error) {
	args := m.Called(ctx, id, patch)
	if fn, ok := args.Get(0).(func(context.Context, string, entities.GraphPatch) *entities.Project); ok {
		return fn(ctx, id, patch), args.Error(1)
	}
	if p, ok := args.Get(0).(*entities.Project); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []notify.Notification
}

func (r *recordingNotifier) Notify(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *recordingNotifier) ofType(t notify.Type) []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Notification
	for _, n := range r.items {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}
