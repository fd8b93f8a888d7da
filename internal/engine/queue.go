package engine

import (
	"sync"
	"time"

	"pushplan/internal/models"
)

// deliveryQueue is the in-memory near-term queue: an insertion-sorted
// slice ascending by scheduled time, with id membership to keep
// re-promotion from duplicating entries. Promotion inserts and dispatch
// pops under the same lock.
type deliveryQueue struct {
	mu      sync.Mutex
	entries []*models.Instance
	ids     map[string]bool
}

func newDeliveryQueue() *deliveryQueue {
	return &deliveryQueue{ids: make(map[string]bool)}
}

// Insert places the instance in sorted position. Returns false when the
// id is already queued.
func (q *deliveryQueue) Insert(inst *models.Instance) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ids[inst.ID] {
		return false
	}

	pos := len(q.entries)
	for i, e := range q.entries {
		if inst.ScheduledTime.Before(e.ScheduledTime) {
			pos = i
			break
		}
	}
	q.entries = append(q.entries, nil)
	copy(q.entries[pos+1:], q.entries[pos:])
	q.entries[pos] = inst
	q.ids[inst.ID] = true
	return true
}

// Contains reports id membership.
func (q *deliveryQueue) Contains(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ids[id]
}

// PopDue removes and returns every instance with scheduled time at or
// before now, in ascending order.
func (q *deliveryQueue) PopDue(now time.Time) []*models.Instance {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for n < len(q.entries) && !q.entries[n].ScheduledTime.After(now) {
		n++
	}
	if n == 0 {
		return nil
	}

	due := make([]*models.Instance, n)
	copy(due, q.entries[:n])
	q.entries = q.entries[n:]
	for _, inst := range due {
		delete(q.ids, inst.ID)
	}
	return due
}

// Len reports the number of queued instances.
func (q *deliveryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
