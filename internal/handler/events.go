package handler

import (
	"sync"

	"distill-client/internal/model"
	"distill-client/internal/state"
)

// event is one item on the bridge's SSE stream.
type event struct {
	Name string
	Data any
}

// hub fans store snapshots and handoff notices out to SSE subscribers.
// Slow subscribers drop events rather than block the dispatcher.
type hub struct {
	mu     sync.Mutex
	subs   map[int]chan event
	nextID int
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan event)}
}

func (h *hub) subscribe() (<-chan event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan event, 16)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

func (h *hub) publish(ev event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *hub) publishState(st state.State) {
	h.publish(event{Name: "state", Data: st})
}

func (h *hub) publishHandoff(kind model.HandoffKind) {
	h.publish(event{Name: "handoff", Data: map[string]any{"kind": kind}})
}
