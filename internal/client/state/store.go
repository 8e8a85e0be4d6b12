// Package state provides the copy-on-write map the client core keeps its
// shared state in. Readers load an immutable snapshot; writers build a new
// map and publish it with compare-and-swap, so a reader never observes a
// partially applied update and concurrent writers never lose one another's
// entries.
package state

import "sync/atomic"

// Store maps keys to values. Values are replaced whole; callers must not
// mutate a value after handing it to the store or reading it from one.
type Store[K comparable, V any] struct {
	p atomic.Pointer[map[K]V]
}

// New returns an empty store.
func New[K comparable, V any]() *Store[K, V] {
	s := &Store[K, V]{}
	empty := map[K]V{}
	s.p.Store(&empty)
	return s
}

func (s *Store[K, V]) load() map[K]V {
	if m := s.p.Load(); m != nil {
		return *m
	}
	return nil
}

// Get returns the value for k.
func (s *Store[K, V]) Get(k K) (V, bool) {
	v, ok := s.load()[k]
	return v, ok
}

// Len is the number of entries.
func (s *Store[K, V]) Len() int { return len(s.load()) }

// Snapshot returns the current map. It is shared and must be treated as
// read-only.
func (s *Store[K, V]) Snapshot() map[K]V { return s.load() }

// Update replaces the entry for k with fn's result. fn receives the current
// value and whether it exists; returning keep=false deletes the entry. fn may
// run more than once under contention and must not have side effects.
func (s *Store[K, V]) Update(k K, fn func(cur V, ok bool) (next V, keep bool)) V {
	for {
		oldp := s.p.Load()
		var old map[K]V
		if oldp != nil {
			old = *oldp
		}
		cur, ok := old[k]
		next, keep := fn(cur, ok)

		m := make(map[K]V, len(old)+1)
		for kk, vv := range old {
			m[kk] = vv
		}
		if keep {
			m[k] = next
		} else {
			delete(m, k)
		}
		if s.p.CompareAndSwap(oldp, &m) {
			return next
		}
	}
}

// Set stores v under k.
func (s *Store[K, V]) Set(k K, v V) {
	s.Update(k, func(V, bool) (V, bool) { return v, true })
}

// Delete removes k.
func (s *Store[K, V]) Delete(k K) {
	s.Update(k, func(cur V, _ bool) (V, bool) { return cur, false })
}

// DeleteFunc removes every entry for which drop returns true.
func (s *Store[K, V]) DeleteFunc(drop func(K, V) bool) {
	for {
		oldp := s.p.Load()
		m := make(map[K]V)
		if oldp != nil {
			for k, v := range *oldp {
				if !drop(k, v) {
					m[k] = v
				}
			}
		}
		if s.p.CompareAndSwap(oldp, &m) {
			return
		}
	}
}

// Reset empties the store.
func (s *Store[K, V]) Reset() {
	empty := map[K]V{}
	s.p.Store(&empty)
}
