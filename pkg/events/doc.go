// Package events is the Inform routing bus between mailestd's DB and
// monitor workers and the main worker's client sessions.
//
// Unlike a broadcast event bus, delivery here is targeted: a client
// session subscribes under the task id it is monitoring (a Search,
// Smew, or Update request), and only informs published against that
// id reach it. Publish is non-blocking; a session whose buffer is full
// is assumed to have stopped draining and the inform is dropped rather
// than stalling the publishing worker.
package events
