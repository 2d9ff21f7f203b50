package httpclient

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// RefreshState is the state of the token refresh coordinator.
type RefreshState int32

const (
	StateIdle RefreshState = iota
	StateRefreshing
)

func (s RefreshState) String() string {
	if s == StateRefreshing {
		return "REFRESHING"
	}
	return "IDLE"
}

// refresher makes sure concurrent 401s cause a single refresh call. Every
// caller that arrives while a refresh is running shares its outcome.
type refresher struct {
	group singleflight.Group
	state atomic.Int32
	do    func(ctx context.Context) (string, error)
}

func newRefresher(do func(ctx context.Context) (string, error)) *refresher {
	return &refresher{do: do}
}

// refresh returns the new bearer token. The refresh call outlives the
// cancellation of the caller that started it.
func (r *refresher) refresh(ctx context.Context) (string, error) {
	ch := r.group.DoChan("refresh", func() (any, error) {
		r.state.Store(int32(StateRefreshing))
		defer r.state.Store(int32(StateIdle))
		return r.do(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *refresher) State() RefreshState {
	return RefreshState(r.state.Load())
}
