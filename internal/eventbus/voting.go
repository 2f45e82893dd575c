package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/openchargingcloud/wwcp/core/monitoring"
)

// Voter decides whether a pending change may be committed.
type Voter[T any] func(ctx context.Context, ev T) bool

// Voting is a cancelable notification: voters may veto a change before it is
// committed, notifiees are told once it was.
type Voting[T any] struct {
	mu     sync.RWMutex
	voters []Voter[T]
	Event[T]
}

// OnVote registers a voter.
func (v *Voting[T]) OnVote(fn Voter[T]) {
	v.mu.Lock()
	v.voters = append(v.voters, fn)
	v.mu.Unlock()
}

// OnNotify registers a handler called after the change was committed.
func (v *Voting[T]) OnNotify(h Handler[T]) (unsubscribe func()) {
	return v.Subscribe(h)
}

// Vote asks all voters in order and returns false on the first veto.
// A panicking voter counts as a veto.
func (v *Voting[T]) Vote(ctx context.Context, ev T) bool {
	v.mu.RLock()
	vs := v.voters
	v.mu.RUnlock()
	for _, fn := range vs {
		if !ask(ctx, fn, ev) {
			return false
		}
	}
	return true
}

// Notify informs all notifiees.
func (v *Voting[T]) Notify(ctx context.Context, ev T) { v.Fire(ctx, ev) }

func ask[T any](ctx context.Context, fn Voter[T], ev T) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.CaptureException(fmt.Errorf("voter panic: %v", r), map[string]string{"module": "eventbus"})
			ok = false
		}
	}()
	return fn(ctx, ev)
}
