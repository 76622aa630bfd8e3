// Package dbworker implements the DB worker: the sole owner of the
// external index handle (spec.md §4.2). It drains a task.Queue of
// SyncDb, Gather, Rfc822PutDb, Rfc822DelDb, Search, and Smew tasks,
// lazily opening and closing the index around them, and recovers from
// a failed index operation by suspending the whole daemon (§4.7).
package dbworker
