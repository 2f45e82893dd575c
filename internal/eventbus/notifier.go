package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/openchargingcloud/wwcp/core/monitoring"
)

// Handler receives events of type T.
type Handler[T any] func(ctx context.Context, ev T)

type handlerEntry[T any] struct {
	id uint64
	fn Handler[T]
}

// Event is a synchronous list of delegates. Handlers run on the caller's
// goroutine in subscription order.
type Event[T any] struct {
	mu       sync.RWMutex
	next     uint64
	handlers []handlerEntry[T]
}

// Subscribe adds h and returns a function removing it again.
func (e *Event[T]) Subscribe(h Handler[T]) (unsubscribe func()) {
	e.mu.Lock()
	e.next++
	id := e.next
	e.handlers = append(e.handlers, handlerEntry[T]{id: id, fn: h})
	e.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { e.remove(id) }) }
}

func (e *Event[T]) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, h := range e.handlers {
		if h.id == id {
			e.handlers = append(e.handlers[:i:i], e.handlers[i+1:]...)
			return
		}
	}
}

// Len returns the number of subscribed handlers.
func (e *Event[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers)
}

// Fire calls every handler. A panicking handler is reported to the monitor
// and does not prevent the remaining handlers from running.
func (e *Event[T]) Fire(ctx context.Context, ev T) {
	e.mu.RLock()
	hs := e.handlers
	e.mu.RUnlock()
	for _, h := range hs {
		call(ctx, h.fn, ev)
	}
}

func call[T any](ctx context.Context, fn Handler[T], ev T) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.CaptureException(fmt.Errorf("event handler panic: %v", r), map[string]string{"module": "eventbus"})
		}
	}()
	fn(ctx, ev)
}
