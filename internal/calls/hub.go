package calls

import "sync"

// Hub fans server messages out to the call's subscribers. Slow subscribers
// lose messages instead of stalling the call.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan any
	next   int
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan any)}
}

// Publish delivers msg to every subscriber without blocking.
func (h *Hub) Publish(msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribe returns a channel of messages and a func that unsubscribes. The
// channel is closed on unsubscribe or when the hub closes.
func (h *Hub) Subscribe(buffer int) (<-chan any, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan any, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
