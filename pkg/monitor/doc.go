// Package monitor watches the maildir tree for inode-level changes and
// turns bursts of filesystem activity into debounced Gather requests
// (spec.md §4.5), on top of github.com/fsnotify/fsnotify.
package monitor
