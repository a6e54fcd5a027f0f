// Package optimistic keeps confirmed values alongside locally applied but
// unconfirmed ones, so a caller can show an edit before the backend accepts
// it and roll back when it does not.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPending is returned by Mutate when the key already has a mutation in
// flight.
var ErrPending = errors.New("mutation already pending")

// CommitFunc persists a value and returns what the backend stored.
type CommitFunc[V any] func(ctx context.Context, value V) (V, error)

// Store holds at most one pending value per key.
type Store[K comparable, V any] struct {
	mu        sync.Mutex
	confirmed map[K]V
	pending   map[K]V
	nextSub   int
	subs      map[int]func(K)
}

// New creates an empty store.
func New[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{
		confirmed: make(map[K]V),
		pending:   make(map[K]V),
		subs:      make(map[int]func(K)),
	}
}

// Set records a confirmed value, for example one just loaded from the
// backend. It does not touch a pending value.
func (s *Store[K, V]) Set(key K, value V) {
	s.mu.Lock()
	s.confirmed[key] = value
	s.mu.Unlock()
	s.notify(key)
}

// Get returns the value to display: the pending one if any, else the
// confirmed one.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.pending[key]; ok {
		return v, true
	}
	v, ok := s.confirmed[key]
	return v, ok
}

// Confirmed returns the last value the backend accepted.
func (s *Store[K, V]) Confirmed(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.confirmed[key]
	return v, ok
}

// IsPending reports whether key has an unconfirmed mutation.
func (s *Store[K, V]) IsPending(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

// Remove drops a key entirely.
func (s *Store[K, V]) Remove(key K) {
	s.mu.Lock()
	delete(s.confirmed, key)
	delete(s.pending, key)
	s.mu.Unlock()
	s.notify(key)
}

// Mutate makes next visible immediately and then runs commit. On success the
// committed value becomes confirmed; on failure the pending value is dropped
// and the previous confirmed value is visible again.
func (s *Store[K, V]) Mutate(ctx context.Context, key K, next V, commit CommitFunc[V]) error {
	s.mu.Lock()
	if _, busy := s.pending[key]; busy {
		s.mu.Unlock()
		return fmt.Errorf("%v: %w", key, ErrPending)
	}
	s.pending[key] = next
	s.mu.Unlock()
	s.notify(key)

	stored, err := commit(ctx, next)

	s.mu.Lock()
	delete(s.pending, key)
	if err == nil {
		s.confirmed[key] = stored
	}
	s.mu.Unlock()
	s.notify(key)

	if err != nil {
		return fmt.Errorf("commit rolled back: %w", err)
	}
	return nil
}

// Subscribe registers fn to be called with the key after every visible
// change. The returned function unsubscribes.
func (s *Store[K, V]) Subscribe(fn func(K)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store[K, V]) notify(key K) {
	s.mu.Lock()
	subs := make([]func(K), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(key)
	}
}
