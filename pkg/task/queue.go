// Package task implements the per-worker task queue, the reactor loop
// that drains it, and the kanban slot pool that bounds in-flight
// message parses. It is the Go-native replacement for the source's
// event-loop-per-thread macros and paired wake-socket idiom (spec.md
// §9 design note): the wake socket becomes a capacity-1 channel.
package task

import (
	"sync"

	"github.com/mailest/mailestd/pkg/types"
)

// Queue is one worker's inbound FIFO, with high-priority head-insertion
// and a suspend mode that defers low-priority work.
//
// Submit/Pop follow spec.md §4.1: a high-priority task is inserted
// after any existing run of high-priority tasks at the head, which
// preserves FIFO order among high-priority tasks while still jumping
// every low-priority task already queued.
type Queue struct {
	mu        sync.Mutex
	items     []*types.Task
	suspended bool
	wake      chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		wake: make(chan struct{}, 1),
	}
}

// Wake returns the channel a worker's reactor loop selects on. A single
// pending signal is coalesced: the reactor is expected to drain the
// queue fully on each wake, mirroring the drain-then-pop discipline of
// the wake-socket design.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Submit enqueues t, placing it at the head if high-priority (after any
// existing high-priority run) or at the tail otherwise, then wakes the
// worker.
func (q *Queue) Submit(t *types.Task) {
	q.mu.Lock()
	if t.HighPriority {
		i := 0
		for i < len(q.items) && q.items[i].HighPriority {
			i++
		}
		q.items = append(q.items, nil)
		copy(q.items[i+1:], q.items[i:])
		q.items[i] = t
	} else {
		q.items = append(q.items, t)
	}
	q.mu.Unlock()

	q.signal()
}

// Pop dequeues the next runnable task. While suspended, only a task at
// the head that is high-priority is returned; since high-priority tasks
// are always inserted ahead of low-priority ones, a low-priority head
// means no high-priority work remains.
func (q *Queue) Pop() (*types.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	if q.suspended && !q.items[0].HighPriority {
		return nil, false
	}

	t := q.items[0]
	q.items = q.items[1:]
	return t, true
}

// SetSuspended toggles suspend mode.
func (q *Queue) SetSuspended(v bool) {
	q.mu.Lock()
	q.suspended = v
	q.mu.Unlock()
	if !v {
		q.signal()
	}
}

// Suspended reports the current suspend state.
func (q *Queue) Suspended() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.suspended
}

// Len returns the number of tasks currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns every remaining task, freeing the queue.
// Used on Stop to account for "no outstanding task left behind"
// (spec.md §8 invariant 3).
func (q *Queue) Drain() []*types.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
