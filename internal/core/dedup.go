package core

import (
	"sync"

	"github.com/veselov/meetsync/internal/domain"
)

// Deduplicator is a bounded recency cache of message ids. At capacity the
// oldest entry is evicted FIFO; the window is a memory/correctness tradeoff,
// not an exactly-once guarantee over unbounded session lifetimes.
type Deduplicator struct {
	mu       sync.Mutex
	capacity int
	order    []domain.MessageID
	seen     map[domain.MessageID]struct{}
}

func NewDeduplicator(capacity int) *Deduplicator {
	if capacity <= 0 {
		capacity = 100
	}
	return &Deduplicator{
		capacity: capacity,
		order:    make([]domain.MessageID, 0, capacity),
		seen:     make(map[domain.MessageID]struct{}, capacity),
	}
}

func (d *Deduplicator) Seen(id domain.MessageID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[id]
	return ok
}

func (d *Deduplicator) MarkSeen(id domain.MessageID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return
	}
	if len(d.order) >= d.capacity {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
	d.order = append(d.order, id)
	d.seen[id] = struct{}{}
}

func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}
