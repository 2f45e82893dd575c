package status

import (
	"sync"
	"time"
)

// DefaultMaxHistory is the number of entries kept by a Schedule.
const DefaultMaxHistory = 15

// Timestamped couples a value with the time it became effective.
type Timestamped[T comparable] struct {
	Value     T         `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Schedule is a bounded history of timestamped values ordered newest first.
// The newest entry is the current value.
type Schedule[T comparable] struct {
	mu      sync.RWMutex
	max     int
	entries []Timestamped[T]
}

// NewSchedule creates a Schedule holding at most max entries. A non-positive
// max selects DefaultMaxHistory.
func NewSchedule[T comparable](max int) *Schedule[T] {
	if max <= 0 {
		max = DefaultMaxHistory
	}
	return &Schedule[T]{max: max}
}

// NewScheduleWith creates a Schedule seeded with an initial value.
func NewScheduleWith[T comparable](max int, v T, ts time.Time) *Schedule[T] {
	s := NewSchedule[T](max)
	s.entries = append(s.entries, Timestamped[T]{Value: v, Timestamp: ts})
	return s
}

// Insert records v at ts and reports the previous current entry and whether
// the current value changed. Entries older than the current one only extend
// the history.
func (s *Schedule[T]) Insert(v T, ts time.Time) (Timestamped[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var old Timestamped[T]
	hadCurrent := len(s.entries) > 0
	if hadCurrent {
		old = s.entries[0]
	}

	e := Timestamped[T]{Value: v, Timestamp: ts}
	pos := len(s.entries)
	for i, cur := range s.entries {
		if !ts.Before(cur.Timestamp) {
			pos = i
			break
		}
	}
	s.entries = append(s.entries, Timestamped[T]{})
	copy(s.entries[pos+1:], s.entries[pos:])
	s.entries[pos] = e
	if len(s.entries) > s.max {
		s.entries = s.entries[:s.max]
	}

	if pos != 0 {
		return old, false
	}
	return old, !hadCurrent || old.Value != v
}

// Current returns the newest entry. ok is false for an empty schedule.
func (s *Schedule[T]) Current() (Timestamped[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return Timestamped[T]{}, false
	}
	return s.entries[0], true
}

// Value returns the current value or the zero value.
func (s *Schedule[T]) Value() T {
	c, _ := s.Current()
	return c.Value
}

// History returns a copy of all entries, newest first.
func (s *Schedule[T]) History() []Timestamped[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Timestamped[T], len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Schedule[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Max returns the history bound.
func (s *Schedule[T]) Max() int { return s.max }
