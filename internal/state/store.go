package state

import (
	"sync"

	"distill-client/internal/model"
)

// Store is the single writer of State. Dispatch is safe for concurrent use;
// subscribers are called in dispatch order and must not call Dispatch.
type Store struct {
	dispatchMu sync.Mutex
	mu         sync.RWMutex
	state      State

	subs   map[int]func(State)
	nextID int
}

func NewStore() *Store {
	return &Store{
		state: State{Sessions: []model.Session{}},
		subs:  make(map[int]func(State)),
	}
}

// Dispatch applies actions in order and returns the resulting snapshot.
func (s *Store) Dispatch(actions ...Action) State {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	next := s.state
	for _, a := range actions {
		next = Reduce(next, a)
	}
	s.state = next
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(clone(next))
	}
	return clone(next)
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.state)
}

// Active returns the active session, if any.
func (s *Store) Active() (model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := indexOf(s.state.Sessions, s.state.ActiveSessionID)
	if i < 0 {
		return model.Session{}, false
	}
	return s.state.Sessions[i].Clone(), true
}

func (s *Store) Session(id string) (model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := indexOf(s.state.Sessions, id)
	if i < 0 {
		return model.Session{}, false
	}
	return s.state.Sessions[i].Clone(), true
}

// Subscribe registers fn for every future snapshot and returns a function
// that removes it.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
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

func clone(st State) State {
	out := st
	out.Sessions = make([]model.Session, len(st.Sessions))
	for i, session := range st.Sessions {
		out.Sessions[i] = session.Clone()
	}
	return out
}
