package task

import (
	"sync"

	"orchestrator/internal/domain"
)

// subscriber buffer; a slow observer loses events rather than blocking the
// state machine.
const eventBuffer = 16

// Hub is an in-process domain.TaskBroadcaster fanning task events out to
// owner-scoped subscribers so multiple observers converge without polling.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan domain.TaskEvent
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]chan domain.TaskEvent)}
}

// Publish delivers the event to every live subscriber of the event's owner.
// Delivery is non-blocking.
func (h *Hub) Publish(event domain.TaskEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[event.OwnerID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers an observer for the owner's task events. The returned
// cancel function unregisters and closes the channel; it is safe to call more
// than once.
func (h *Hub) Subscribe(ownerID string) (<-chan domain.TaskEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	ch := make(chan domain.TaskEvent, eventBuffer)
	if h.subs[ownerID] == nil {
		h.subs[ownerID] = make(map[int]chan domain.TaskEvent)
	}
	h.subs[ownerID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[ownerID], id)
			if len(h.subs[ownerID]) == 0 {
				delete(h.subs, ownerID)
			}
			close(ch)
		})
	}
	return ch, cancel
}

var _ domain.TaskBroadcaster = (*Hub)(nil)
