// Package ids allocates the monotonically increasing task and gather
// identifiers that flow through mailestd's task queues.
package ids

import "sync/atomic"

// Counter is a goroutine-safe monotonic id allocator. The zero value
// hands out ids starting at 1.
type Counter struct {
	n uint64
}

// Next returns the next id in sequence.
func (c *Counter) Next() uint64 {
	return atomic.AddUint64(&c.n, 1)
}
