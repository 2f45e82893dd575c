// Package reactive implements observable collections.
package reactive

import (
	"context"
	"sort"
	"sync"

	"github.com/openchargingcloud/wwcp/internal/eventbus"
)

// Entry is the payload of the Added and Removed events.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// Set is a keyed collection raising Added and Removed after each successful
// change. Iteration order is defined by the less function given to NewSet.
type Set[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
	less  func(a, b K) bool

	Added   eventbus.Event[Entry[K, V]]
	Removed eventbus.Event[Entry[K, V]]
}

// NewSet creates an empty Set. less orders Keys and Values.
func NewSet[K comparable, V any](less func(a, b K) bool) *Set[K, V] {
	return &Set[K, V]{items: make(map[K]V), less: less}
}

// Add inserts v under k. It returns false if k is already present.
func (s *Set[K, V]) Add(ctx context.Context, k K, v V) bool {
	s.mu.Lock()
	if _, ok := s.items[k]; ok {
		s.mu.Unlock()
		return false
	}
	s.items[k] = v
	s.mu.Unlock()
	s.Added.Fire(ctx, Entry[K, V]{Key: k, Value: v})
	return true
}

// Remove deletes k and returns the removed value.
func (s *Set[K, V]) Remove(ctx context.Context, k K) (V, bool) {
	s.mu.Lock()
	v, ok := s.items[k]
	if ok {
		delete(s.items, k)
	}
	s.mu.Unlock()
	if ok {
		s.Removed.Fire(ctx, Entry[K, V]{Key: k, Value: v})
	}
	return v, ok
}

func (s *Set[K, V]) Get(k K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[k]
	return v, ok
}

func (s *Set[K, V]) Has(k K) bool {
	_, ok := s.Get(k)
	return ok
}

func (s *Set[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Keys returns the keys in order.
func (s *Set[K, V]) Keys() []K {
	s.mu.RLock()
	keys := make([]K, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	if s.less != nil {
		sort.Slice(keys, func(i, j int) bool { return s.less(keys[i], keys[j]) })
	}
	return keys
}

// Values returns the values in key order.
func (s *Set[K, V]) Values() []V {
	keys := s.Keys()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		if v, ok := s.items[k]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Range calls fn for each entry in key order until fn returns false.
func (s *Set[K, V]) Range(fn func(K, V) bool) {
	keys := s.Keys()
	for _, k := range keys {
		v, ok := s.Get(k)
		if !ok {
			continue
		}
		if !fn(k, v) {
			return
		}
	}
}
