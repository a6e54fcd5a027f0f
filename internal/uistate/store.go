// Package uistate holds presentation state that several views share.
// A Store is created once and passed to whoever needs it.
package uistate

import "sync"

// State is a snapshot of the store.
type State struct {
	SidebarOpen bool
	ActiveModal string
}

// Store is safe for concurrent use. Subscribers are called synchronously
// after each change, outside the lock.
type Store struct {
	mu      sync.Mutex
	state   State
	nextSub int
	subs    map[int]func(State)
}

// New creates a store with the sidebar open and no modal.
func New() *Store {
	return &Store{
		state: State{SidebarOpen: true},
		subs:  make(map[int]func(State)),
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) SidebarOpen() bool {
	return s.Snapshot().SidebarOpen
}

func (s *Store) SetSidebarOpen(open bool) {
	s.update(func(st *State) bool {
		if st.SidebarOpen == open {
			return false
		}
		st.SidebarOpen = open
		return true
	})
}

// ToggleSidebar flips the sidebar and returns the new value.
func (s *Store) ToggleSidebar() bool {
	var open bool
	s.update(func(st *State) bool {
		st.SidebarOpen = !st.SidebarOpen
		open = st.SidebarOpen
		return true
	})
	return open
}

// ActiveModal returns the open modal's name, or "" when none is open.
func (s *Store) ActiveModal() string {
	return s.Snapshot().ActiveModal
}

// OpenModal shows the named modal, replacing any other.
func (s *Store) OpenModal(name string) {
	s.update(func(st *State) bool {
		if st.ActiveModal == name {
			return false
		}
		st.ActiveModal = name
		return true
	})
}

func (s *Store) CloseModal() {
	s.OpenModal("")
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) update(apply func(*State) bool) {
	s.mu.Lock()
	if !apply(&s.state) {
		s.mu.Unlock()
		return
	}
	snapshot := s.state
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}
