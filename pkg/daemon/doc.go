// Package daemon is mailestd's arena-style shared-state facade: it
// owns the catalogue, the index, the three task workers and their
// queues, the kanban slot pool, the inform bus, and the control
// socket listener, wiring them together the way the source's
// mailestd_this struct does — minus the cyclic back-pointers, since
// every worker here is handed a stable pointer at construction
// instead (Design Note, spec.md §9).
package daemon
