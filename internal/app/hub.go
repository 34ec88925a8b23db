package app

import (
	"sync"

	"quiz-progression-service/internal/domain"
)

// UpdateHub fans progression updates out to subscribers. The engine
// publishes one update per committed operation; transports decide how
// to deliver them (websocket push, polling, etc).
type UpdateHub struct {
	mu   sync.RWMutex
	subs map[int]map[chan domain.ProgressionUpdate]struct{}
}

func NewUpdateHub() *UpdateHub {
	return &UpdateHub{
		subs: make(map[int]map[chan domain.ProgressionUpdate]struct{}),
	}
}

// Subscribe returns a channel receiving updates for one player. The
// caller must invoke the returned cancel function to avoid leaks.
func (h *UpdateHub) Subscribe(playerID int) (<-chan domain.ProgressionUpdate, func()) {
	ch := make(chan domain.ProgressionUpdate, 8)

	h.mu.Lock()
	if h.subs[playerID] == nil {
		h.subs[playerID] = make(map[chan domain.ProgressionUpdate]struct{})
	}
	h.subs[playerID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[playerID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subs, playerID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an update to the player's subscribers. Slow
// subscribers lose their oldest buffered update instead of blocking
// the publisher.
func (h *UpdateHub) Publish(update domain.ProgressionUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[update.PlayerID] {
		select {
		case ch <- update:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- update
		}
	}
}
