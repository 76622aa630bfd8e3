package task

import (
	"sync"

	"github.com/mailest/mailestd/pkg/types"
)

// Kanban is the fixed-size pool of rfc822 task slots that bounds the
// number of in-flight Draft/PutDb tasks (spec.md §4.1, the "kanban
// bound"). Slots are preallocated at startup; a draft is scheduled only
// by acquiring a slot, and the slot returns to the free list when its
// PutDb completes. A message that cannot acquire a slot is parked on
// the pending list until one frees up.
type Kanban struct {
	mu      sync.Mutex
	free    []uint64
	inUse   map[uint64]*types.Msg
	pending []*types.Msg
	max     int
}

// NewKanban preallocates max slots into the free list.
func NewKanban(max int) *Kanban {
	free := make([]uint64, max)
	for i := range free {
		free[i] = uint64(i)
	}
	return &Kanban{
		free:  free,
		inUse: make(map[uint64]*types.Msg, max),
		max:   max,
	}
}

// Acquire takes a free slot for msg. If none is free, msg is parked on
// the pending list and ok is false.
func (k *Kanban) Acquire(msg *types.Msg) (slot uint64, ok bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if len(k.free) == 0 {
		k.pending = append(k.pending, msg)
		return 0, false
	}

	slot = k.free[len(k.free)-1]
	k.free = k.free[:len(k.free)-1]
	k.inUse[slot] = msg
	return slot, true
}

// Release returns slot to the free list. If a message was parked
// waiting for a slot, it is popped off the pending list and immediately
// assigned the freed slot, matching spec.md's "the DB worker reschedules
// from rfc822_pendings" on PUT completion.
func (k *Kanban) Release(slot uint64) (rescheduled *types.Msg, slotReused bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	delete(k.inUse, slot)

	if len(k.pending) == 0 {
		k.free = append(k.free, slot)
		return nil, false
	}

	rescheduled = k.pending[0]
	k.pending = k.pending[1:]
	k.inUse[slot] = rescheduled
	return rescheduled, true
}

// InUse returns the number of slots currently checked out.
func (k *Kanban) InUse() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.inUse)
}

// Free returns the number of slots currently available.
func (k *Kanban) Free() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.free)
}

// Pending returns the number of messages parked awaiting a slot.
func (k *Kanban) Pending() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.pending)
}

// Max returns the configured slot count (rfc822_task_max).
func (k *Kanban) Max() int {
	return k.max
}
