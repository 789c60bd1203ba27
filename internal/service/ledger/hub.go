package ledger

import (
	"sync"

	redisrepo "github.com/kirinyoku/tripslot/internal/repository/redis"
)

// Hub fans slot changes out to in-process subscribers of a listing.
// Slow subscribers drop changes instead of blocking the publisher.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan redisrepo.SlotChange]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[chan redisrepo.SlotChange]struct{}{}}
}

// Subscribe returns a change stream for listingID and a func that ends it.
func (h *Hub) Subscribe(listingID string) (<-chan redisrepo.SlotChange, func()) {
	ch := make(chan redisrepo.SlotChange, 16)

	h.mu.Lock()
	if h.subs[listingID] == nil {
		h.subs[listingID] = map[chan redisrepo.SlotChange]struct{}{}
	}
	h.subs[listingID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[listingID], ch)
			if len(h.subs[listingID]) == 0 {
				delete(h.subs, listingID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Broadcast(change redisrepo.SlotChange) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[change.ListingID] {
		select {
		case ch <- change:
		default:
		}
	}
}
