package charging

import (
	"context"
	"fmt"
	"sync"

	"github.com/openchargingcloud/wwcp/core/ids"
	"github.com/openchargingcloud/wwcp/internal/eventbus"
	"github.com/openchargingcloud/wwcp/internal/reactive"
)

// RemoveOption modifies a RemoveX call.
type RemoveOption func(*removeConfig)

type removeConfig struct {
	force bool
}

// Force removes an entity even if it still has children.
func Force() RemoveOption {
	return func(c *removeConfig) { c.force = true }
}

func removeOptions(opts []RemoveOption) removeConfig {
	var c removeConfig
	for _, o := range opts {
		o(&c)
	}
	return c
}

// links keeps the unsubscribe functions of attached children.
type links[K comparable] struct {
	mu sync.Mutex
	m  map[K]func()
}

func (l *links[K]) set(k K, unsubscribe func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.m == nil {
		l.m = make(map[K]func())
	}
	if old, ok := l.m[k]; ok {
		old()
	}
	l.m[k] = unsubscribe
}

func (l *links[K]) drop(k K) {
	l.mu.Lock()
	u, ok := l.m[k]
	delete(l.m, k)
	l.mu.Unlock()
	if ok {
		u()
	}
}

type key interface {
	comparable
	fmt.Stringer
}

type childID interface {
	key
	IsZero() bool
	OperatorID() ids.OperatorID
}

// checkChildID rejects zero ids and ids of another operator.
func checkChildID[K childID](op ids.OperatorID, id K) error {
	if id.IsZero() {
		return ids.ErrEmptyID
	}
	if !ids.MatchesOperator(op, id) {
		return fmt.Errorf("%w: %s does not belong to %s", ErrOperatorMismatch, id, op)
	}
	return nil
}

// addChild runs the addition vote and commits v into set.
func addChild[K key, V any](ctx context.Context, set *reactive.Set[K, V], vote *eventbus.Voting[V], k K, v V) error {
	if set.Has(k) {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, k)
	}
	if !vote.Vote(ctx, v) {
		return fmt.Errorf("%w: %s", ErrAdditionVetoed, k)
	}
	if !set.Add(ctx, k, v) {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, k)
	}
	vote.Notify(ctx, v)
	return nil
}

// removeChild runs the removal vote and deletes k from set. hasChildren
// reports whether v still holds entities of its own.
func removeChild[K key, V any](ctx context.Context, set *reactive.Set[K, V], vote *eventbus.Voting[V], k K, hasChildren func(V) bool, opts []RemoveOption) (V, error) {
	var zero V
	v, ok := set.Get(k)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrNotFound, k)
	}
	if hasChildren != nil && hasChildren(v) && !removeOptions(opts).force {
		return zero, fmt.Errorf("%w: %s", ErrHasChildren, k)
	}
	if !vote.Vote(ctx, v) {
		return zero, fmt.Errorf("%w: %s", ErrRemovalVetoed, k)
	}
	if v, ok = set.Remove(ctx, k); !ok {
		return zero, fmt.Errorf("%w: %s", ErrNotFound, k)
	}
	vote.Notify(ctx, v)
	return v, nil
}

// lookup is the outcome of resolving a request location.
type lookup int

const (
	found lookup = iota
	unknownLocation
	noneAvailable
)

func lessString[K fmt.Stringer](a, b K) bool { return a.String() < b.String() }
