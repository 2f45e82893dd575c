// Package monitoring holds the process wide error reporter.
package monitoring

import (
	"fmt"
	"sync"
	"time"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Flush(time.Duration)                       {}

var (
	mu      sync.RWMutex
	current Monitor = NopMonitor{}
)

// Init sets the global monitor implementation. nil is ignored.
func Init(m Monitor) {
	if m == nil {
		return
	}
	mu.Lock()
	current = m
	mu.Unlock()
}

func get() Monitor {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// CaptureException records the error with optional tags. nil errors are dropped.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	get().CaptureException(err, tags)
}

// Recover reports a recovered panic value and re-panics. Call it with the
// result of recover() from a deferred function.
func Recover(r any) {
	if r == nil {
		return
	}
	get().CaptureException(fmt.Errorf("panic: %v", r), map[string]string{"module": "goroutine"})
	get().Flush(2 * time.Second)
	panic(r)
}

// Go runs fn on a new goroutine. A panic in fn is reported before the
// process crashes.
func Go(fn func()) {
	go func() {
		defer func() { Recover(recover()) }()
		fn()
	}()
}

// Flush flushes buffered events.
func Flush(d time.Duration) {
	get().Flush(d)
}
