// internal/broadcast/hub.go
//
// Fan-out sink for a single game session.
// Responsibilities:
//   - Implement game.Sink so a session can emit without knowing its viewers.
//   - Deliver every event to all current subscribers (WebSocket clients).
//   - Run the completion hook off the session's goroutine.
//
// Emit never blocks: a subscriber whose buffer is full misses the event and
// is expected to resync from a snapshot.

package broadcast

import (
	"sync"

	"github.com/robalobadob/concentration/internal/game"
)

// Hub is a game.Sink that broadcasts to subscribers.
type Hub struct {
	mu         sync.Mutex
	subs       map[chan game.Event]struct{}
	onComplete func(game.Stats)
	dropped    int
}

// New returns an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[chan game.Event]struct{})}
}

// OnComplete registers a hook run once per finished round.
func (h *Hub) OnComplete(f func(game.Stats)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onComplete = f
}

// Subscribe returns a channel of future events and a cancel func that
// unregisters and closes it. buffer < 1 is treated as 1.
func (h *Hub) Subscribe(buffer int) (<-chan game.Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan game.Event, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped reports how many deliveries were skipped on full buffers.
func (h *Hub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Emit implements game.Sink.
func (h *Hub) Emit(ev game.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped++
		}
	}

	if ev.Kind == game.EventComplete && ev.Stats != nil && h.onComplete != nil {
		go h.onComplete(*ev.Stats)
	}
}

// Close unregisters and closes every subscriber channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
