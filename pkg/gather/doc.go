// Package gather implements the folder-scan reconciliation walk
// (spec.md §4.3): expanding a user-supplied folder argument into one or
// more concrete subtrees, then diffing each subtree against the
// catalogue to produce the set of messages to put and to delete.
package gather
