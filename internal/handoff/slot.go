// Package handoff moves structured results from the conversation flow to
// the view that consumes them. Each kind holds at most one pending value.
package handoff

import (
	"sync"

	"distill-client/internal/model"
)

type Slot struct {
	mu      sync.Mutex
	pending map[model.HandoffKind]model.Handoff
	notify  func(model.HandoffKind)
}

func NewSlot() *Slot {
	return &Slot{pending: make(map[model.HandoffKind]model.Handoff)}
}

// OnPut registers a callback run after every Put, outside the lock.
func (s *Slot) OnPut(fn func(model.HandoffKind)) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

// Put stores h, replacing any pending value of the same kind.
func (s *Slot) Put(h model.Handoff) {
	s.mu.Lock()
	s.pending[h.Kind] = h
	notify := s.notify
	s.mu.Unlock()

	if notify != nil {
		notify(h.Kind)
	}
}

// Take returns and clears the pending value of kind.
func (s *Slot) Take(kind model.HandoffKind) (model.Handoff, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.pending[kind]
	if ok {
		delete(s.pending, kind)
	}
	return h, ok
}

// Peek returns the pending value of kind without clearing it.
func (s *Slot) Peek(kind model.HandoffKind) (model.Handoff, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.pending[kind]
	return h, ok
}

// Dismiss drops the pending value of kind, if any.
func (s *Slot) Dismiss(kind model.HandoffKind) {
	s.mu.Lock()
	delete(s.pending, kind)
	s.mu.Unlock()
}

// Pending lists the kinds currently holding a value.
func (s *Slot) Pending() []model.HandoffKind {
	s.mu.Lock()
	defer s.mu.Unlock()

	kinds := make([]model.HandoffKind, 0, len(s.pending))
	for _, kind := range []model.HandoffKind{model.HandoffQuiz, model.HandoffFlashcards} {
		if _, ok := s.pending[kind]; ok {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}
